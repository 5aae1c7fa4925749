package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cache"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device/devicetest"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/version"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// withReleaseFeed points the update check at a test server.
func withReleaseFeed(t *testing.T, status int, body string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	orig := newVersionClient
	t.Cleanup(func() { newVersionClient = orig })
	newVersionClient = func() *version.Client {
		return version.NewClient(version.WithBaseURL(srv.URL), version.WithHTTPClient(srv.Client()))
	}
}

func setDeviceFlags(t *testing.T, id string, checkUpdates bool) {
	t.Helper()
	t.Cleanup(func() { deviceFlagID, deviceCheckUpdates = "", false })
	deviceFlagID, deviceCheckUpdates = id, checkUpdates
}

func TestDeviceInfo_FromCache(t *testing.T) {
	setDeviceFlags(t, "", false)
	env := newTestEnv(t)
	env.seed(t, func(ctx context.Context, store *cache.Store) {
		f := features()
		f.Label = "vault"
		require.NoError(t, store.SaveFeatures(ctx, "C0FFEE", f))
	})

	require.NoError(t, runDeviceInfo(env.cmd(), nil))
	resp := decode[deviceInfoResponse](t, env.stdout)
	assert.True(t, resp.Cached)
	assert.Equal(t, "C0FFEE", resp.DeviceID)
	assert.Equal(t, "7.9.0", resp.Firmware)
	assert.Equal(t, "vault", resp.Features.Label)
	assert.Nil(t, resp.Update)
}

func TestDeviceInfo_NothingCached(t *testing.T) {
	setDeviceFlags(t, "", false)
	env := newTestEnv(t)

	err := runDeviceInfo(env.cmd(), nil)
	require.ErrorIs(t, err, kkerr.ErrNotFound)
}

func TestDeviceInfo_ConnectedWithUpdateCheck(t *testing.T) {
	setDeviceFlags(t, "", true)
	withReleaseFeed(t, http.StatusOK, `{"tag_name":"v7.10.0","html_url":"https://example.com/v7.10.0"}`)

	ch := devicetest.NewScripted(t, devicetest.Expect[*device.GetFeatures](features()))
	env := newTestEnv(t).withDevice(ch)

	require.NoError(t, runDeviceInfo(env.cmd(), nil))
	ch.AssertDone()

	resp := decode[deviceInfoResponse](t, env.stdout)
	assert.False(t, resp.Cached)
	assert.Equal(t, "C0FFEE", resp.DeviceID)
	require.NotNil(t, resp.Update)
	assert.True(t, resp.Update.UpdateAvailable)
	assert.Equal(t, "7.10.0", resp.Update.Latest)

	// The features are cached for offline commands.
	env.seed(t, func(ctx context.Context, store *cache.Store) {
		ids, err := store.Devices(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"C0FFEE"}, ids)
	})
}

func TestDeviceInfo_UpdateCheckFailureIsNotFatal(t *testing.T) {
	setDeviceFlags(t, "", true)
	withReleaseFeed(t, http.StatusInternalServerError, "down")

	ch := devicetest.NewScripted(t, devicetest.Expect[*device.GetFeatures](features()))
	env := newTestEnv(t).withDevice(ch)

	require.NoError(t, runDeviceInfo(env.cmd(), nil))
	resp := decode[deviceInfoResponse](t, env.stdout)
	assert.Nil(t, resp.Update)
	assert.Equal(t, "7.9.0", resp.Firmware)
}
