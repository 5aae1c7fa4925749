package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

const redacted = "<redacted>"

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Create config.yaml in the keeper home with the default settings. An
existing file is kept unless --force is given.`,
	Example: `  keeper config init
  keeper --home /srv/keeper config init --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after the file, environment and flags are
applied. The pricing API key is never printed.`,
	RunE: runConfigShow,
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate a shell completion script",
	Example: `  source <(keeper completion bash)
  keeper completion zsh > "${fpath[1]}/_keeper"`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(w)
		case "zsh":
			return cmd.Root().GenZshCompletion(w)
		case "fish":
			return cmd.Root().GenFishCompletion(w, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(w)
		}
	},
}

type configInitResponse struct {
	Path string `json:"path"`
}

func (r *configInitResponse) RenderText(w io.Writer) error {
	out(w, "Configuration written to %s\n", r.Path)
	return nil
}

// configView is the effective configuration keyed as in config.yaml.
type configView map[string]any

func (v configView) RenderText(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any(v)); err != nil {
		return err
	}
	return enc.Close()
}

// newConfigView round-trips cfg through YAML so JSON output carries the
// same keys as the file.
func newConfigView(cfg *config.Config) (configView, error) {
	c := *cfg
	if c.Pricing.APIKey != "" {
		c.Pricing.APIKey = redacted
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return nil, kkerr.WithCause(kkerr.ErrConfigInvalid, err)
	}
	var view configView
	if err := yaml.Unmarshal(data, &view); err != nil {
		return nil, kkerr.WithCause(kkerr.ErrConfigInvalid, err)
	}
	return view, nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	path := config.Path(cc.Cfg.Home)

	if _, err := os.Stat(path); err == nil && !configForce {
		return kkerr.WithSuggestion(
			kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"file": path, "reason": "already exists"}),
			"use --force to overwrite it")
	}

	defaults := config.Defaults()
	defaults.Home = cc.Cfg.Home
	if err := config.Save(defaults, path); err != nil {
		return kkerr.WithDetails(kkerr.WithCause(kkerr.ErrStorage, err), map[string]string{"file": path})
	}
	cc.Log.Info("configuration written to %s", path)
	return cc.Fmt.Print(&configInitResponse{Path: path})
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	view, err := newConfigView(cc.Cfg)
	if err != nil {
		return err
	}
	return cc.Fmt.Print(view)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd, completionCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing configuration file")
}
