// Package version compares device firmware versions and looks up the latest
// published firmware release.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Release lookup defaults.
const (
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 15 * time.Second

	// FirmwareOwner and FirmwareRepo locate the firmware release feed.
	FirmwareOwner = "keepkey"
	FirmwareRepo  = "keepkey-firmware"

	maxErrorBodySize    = 1024
	maxResponseBodySize = 64 * 1024
)

// Release is a published firmware release.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	HTMLURL     string    `json:"html_url"`
}

// Version returns the release tag without its leading "v".
func (r *Release) Version() string {
	return Normalize(r.TagName)
}

// Status compares a device's firmware with the latest release.
type Status struct {
	Current         string `json:"current"`
	Latest          string `json:"latest"`
	UpdateAvailable bool   `json:"update_available"`
	Bootloader      bool   `json:"bootloader_mode"`
	ReleaseURL      string `json:"release_url,omitempty"`
}

// Client fetches firmware releases.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a release client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  fmt.Sprintf("keeper (%s/%s)", runtime.GOOS, runtime.GOARCH),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestFirmware fetches the newest non-draft firmware release.
func (c *Client) LatestFirmware(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, FirmwareOwner, FirmwareRepo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, kkerr.WithCause(kkerr.ErrGeneral, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL is built from the configured release API root
	if err != nil {
		return nil, kkerr.WithDetails(kkerr.WithCause(kkerr.ErrTransport, err), map[string]string{"url": url})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, kkerr.WithDetails(kkerr.ErrTransport, map[string]string{
			"url":    url,
			"status": strconv.Itoa(resp.StatusCode),
			"body":   strings.TrimSpace(string(body)),
		})
	}

	var release Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&release); err != nil {
		return nil, kkerr.WithDetails(kkerr.WithCause(kkerr.ErrMalformedInput, err), map[string]string{"url": url})
	}
	if release.TagName == "" {
		return nil, kkerr.WithDetails(kkerr.ErrMalformedInput, map[string]string{"url": url, "reason": "release has no tag"})
	}
	return &release, nil
}

// Check compares the firmware in f with the latest release.
func (c *Client) Check(ctx context.Context, f *device.Features) (*Status, error) {
	release, err := c.LatestFirmware(ctx)
	if err != nil {
		return nil, err
	}
	current := Firmware(f)
	return &Status{
		Current:         current,
		Latest:          release.Version(),
		UpdateAvailable: Compare(release.Version(), current) > 0,
		Bootloader:      f.BootloaderMode,
		ReleaseURL:      release.HTMLURL,
	}, nil
}

// Firmware formats the firmware version triple of f.
func Firmware(f *device.Features) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", f.MajorVersion, f.MinorVersion, f.PatchVersion)
}

// Compare orders two versions: 1 if a > b, -1 if a < b, 0 if equal.
// Missing components count as zero and an unparseable version sorts first.
func Compare(a, b string) int {
	pa, okA := parse(a)
	pb, okB := parse(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	for i := range 3 {
		if pa[i] != pb[i] {
			if pa[i] > pb[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// Normalize trims whitespace, any leading "v" and pre-release or build
// suffixes.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimLeft(v, "vV")
	if i := strings.IndexAny(v, "-+ "); i != -1 {
		v = v[:i]
	}
	return v
}

func parse(v string) ([3]int, bool) {
	var out [3]int
	v = Normalize(v)
	if v == "" {
		return out, false
	}
	parts := strings.Split(v, ".")
	if len(parts) > 3 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
