package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/catalog"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/output"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

var (
	pathNote       string
	pathScriptType string
	pathType       string
	pathCurve      string
	pathAccount    string
	pathMaster     string
	pathNetworks   []string
	pathScripts    []string
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Manage the tracked derivation paths",
	Long: `Paths are global: every device is frontloaded for every tracked path.
The built-in catalog is added on the first frontload.`,
}

var pathsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked paths",
	RunE:  runPathsList,
}

var pathsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Track a new derivation path",
	Example: `  keeper paths add --note "Bitcoin account 1" --script-type p2wpkh \
    --account "m/84'/0'/1'" --network bip122:000000000019d6689c085ae165831e93`,
	RunE: runPathsAdd,
}

var pathsDeleteCmd = &cobra.Command{
	Use:   "delete <note>",
	Short: "Stop tracking a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runPathsDelete,
}

type pathsResponse struct {
	Paths []catalog.Path `json:"paths"`
}

func (r *pathsResponse) RenderText(w io.Writer) error {
	if len(r.Paths) == 0 {
		outln(w, "No paths tracked yet. Run 'keeper frontload' to add the built-in catalog.")
		return nil
	}
	t := output.NewTable("NOTE", "TYPE", "SCRIPT", "ACCOUNT", "NETWORKS")
	for _, p := range r.Paths {
		t.AddRow(p.Note, p.PathType, p.ScriptType, device.FormatPath(p.AddressNList), strings.Join(p.Networks, ","))
	}
	return t.Render(w)
}

type pathChangeResponse struct {
	Note    string `json:"note"`
	Added   bool   `json:"added,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

func (r *pathChangeResponse) RenderText(w io.Writer) error {
	switch {
	case r.Added:
		out(w, "Added path %q\n", r.Note)
	case r.Deleted:
		out(w, "Deleted path %q\n", r.Note)
	default:
		out(w, "Path %q is already tracked\n", r.Note)
	}
	return nil
}

func runPathsList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	paths, err := store.Paths(cmd.Context())
	if err != nil {
		return err
	}
	return cc.Fmt.Print(&pathsResponse{Paths: paths})
}

// pathFromFlags builds a catalog entry from the add flags. The master path
// defaults to the first receive address of the account.
func pathFromFlags() (catalog.Path, error) {
	p := catalog.Path{
		Note:                 strings.TrimSpace(pathNote),
		ScriptType:           pathScriptType,
		PathType:             pathType,
		Curve:                pathCurve,
		Networks:             pathNetworks,
		AvailableScriptTypes: pathScripts,
	}
	if p.PathType != catalog.TypeXpub && p.PathType != catalog.TypeAddress {
		return catalog.Path{}, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"type":    p.PathType,
			"allowed": catalog.TypeXpub + ", " + catalog.TypeAddress,
		})
	}
	var err error
	if p.AddressNList, err = device.ParsePath(pathAccount); err != nil {
		return catalog.Path{}, kkerr.Wrap(err, "--account")
	}
	if pathMaster != "" {
		if p.AddressNListMaster, err = device.ParsePath(pathMaster); err != nil {
			return catalog.Path{}, kkerr.Wrap(err, "--master")
		}
	} else {
		p.AddressNListMaster = append(append([]uint32{}, p.AddressNList...), 0, 0)
	}
	if err := p.Validate(); err != nil {
		return catalog.Path{}, err
	}
	return p, nil
}

func runPathsAdd(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	p, err := pathFromFlags()
	if err != nil {
		return err
	}

	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	added, err := store.AddPath(cmd.Context(), p)
	if err != nil {
		return err
	}
	cc.Log.Info("path %q added=%t", p.Note, added)
	return cc.Fmt.Print(&pathChangeResponse{Note: p.Note, Added: added})
}

func runPathsDelete(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	store, err := cc.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeletePath(cmd.Context(), args[0]); err != nil {
		return err
	}
	cc.Log.Info("path %q deleted", args[0])
	return cc.Fmt.Print(&pathChangeResponse{Note: args[0], Deleted: true})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(pathsCmd)
	pathsCmd.AddCommand(pathsListCmd, pathsAddCmd, pathsDeleteCmd)

	f := pathsAddCmd.Flags()
	f.StringVar(&pathNote, "note", "", "unique name of the path")
	f.StringVar(&pathScriptType, "script-type", device.ScriptP2WPKH, "script type: p2pkh, p2sh-p2wpkh, p2wpkh")
	f.StringVar(&pathType, "type", catalog.TypeXpub, "what to cache: xpub or address")
	f.StringVar(&pathCurve, "curve", "secp256k1", "signing curve")
	f.StringVar(&pathAccount, "account", "", "account path, e.g. m/84'/0'/0'")
	f.StringVar(&pathMaster, "master", "", "single-address path (default: account/0/0)")
	f.StringSliceVar(&pathNetworks, "network", nil, "network id served by the path (repeatable)")
	f.StringSliceVar(&pathScripts, "available-script-type", nil, "script types the account may use (repeatable)")
	_ = pathsAddCmd.MarkFlagRequired("note")
	_ = pathsAddCmd.MarkFlagRequired("account")
	_ = pathsAddCmd.MarkFlagRequired("network")
}
