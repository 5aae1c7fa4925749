package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/config"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/output"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/pricing"
)

// testEnv is a command context over a temporary home with JSON output
// captured in stdout and prompts in stderr.
type testEnv struct {
	cc     *CommandContext
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	cfg := config.Defaults()
	cfg.Home = home
	cfg.Database.Path = filepath.Join(home, "cache.db")
	cfg.Device.DetectAttempts = 1
	cfg.Device.TimeoutSeconds = 2

	stdout := &bytes.Buffer{}
	return &testEnv{
		cc: &CommandContext{
			Cfg:     cfg,
			Log:     config.NullLogger(),
			Fmt:     output.NewFormatter(output.FormatJSON, stdout),
			Metrics: &metrics.Metrics{},
		},
		stdout: stdout,
		stderr: &bytes.Buffer{},
	}
}

// withDevice registers ch as the only device.
func (e *testEnv) withDevice(ch device.Channel) *testEnv {
	e.cc.Opener = device.OpenerFunc(func(context.Context) (device.Channel, error) { return ch, nil })
	return e
}

// withPricing points the pricing client at a test server.
func (e *testEnv) withPricing(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e.cc.PricingClient = pricing.NewClient(&pricing.ClientOptions{
		BaseURL:     srv.URL,
		HTTPClient:  srv.Client(),
		RateLimiter: chain.NewRateLimiter(1000, 1000),
		Metrics:     e.cc.Metrics,
	})
	return e
}

func (e *testEnv) cmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(e.stdout)
	cmd.SetErr(e.stderr)
	SetCmdContext(cmd, e.cc)
	return cmd
}

// seed opens the env's cache, runs fn and closes it again.
func (e *testEnv) seed(t *testing.T, fn func(ctx context.Context, store *cache.Store)) {
	t.Helper()
	store, err := e.cc.openStore()
	require.NoError(t, err)
	fn(context.Background(), store)
	require.NoError(t, store.Close())
}

// store opens the env's cache for seeding or inspection.
func (e *testEnv) store(t *testing.T) *cache.Store {
	t.Helper()
	store, err := e.cc.openStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func decode[T any](t *testing.T, buf *bytes.Buffer) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v), buf.String())
	buf.Reset()
	return v
}

// withPrompts scripts the secret prompt answers and the confirmation
// answer, restoring the real prompts on cleanup.
func withPrompts(t *testing.T, confirm bool, answers ...string) *[]string {
	t.Helper()
	origSecret, origConfirm := promptSecretFn, promptConfirmFn
	t.Cleanup(func() {
		promptSecretFn, promptConfirmFn = origSecret, origConfirm
	})

	var asked []string
	promptSecretFn = func(prompt string) (string, error) {
		asked = append(asked, prompt)
		if len(answers) == 0 {
			t.Errorf("unexpected prompt %q", prompt)
			return "", context.Canceled
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
	promptConfirmFn = func(string) bool { return confirm }
	return &asked
}
