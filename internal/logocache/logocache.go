// Package logocache keeps station logos on disk so browse surfaces do not
// refetch them from upstream on every listing. The cache is opportunistic:
// every file is re-creatable, and write races resolve as last-write-wins.
package logocache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/mashiroka/radigw/internal/log"
)

const maxLogoBytes = 4 << 20

// Cache is a write-once-per-logo disk cache. An empty dir disables it.
type Cache struct {
	dir    string
	http   *http.Client
	logger zerolog.Logger
}

// New creates a logo cache rooted at dir. The directory is created on
// first use.
func New(dir string, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Cache{
		dir:    dir,
		http:   &http.Client{Timeout: timeout},
		logger: log.WithComponent("logocache"),
	}
}

// Enabled reports whether a cache directory is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.dir != ""
}

// Path returns the on-disk location for a station's logo.
func (c *Cache) Path(stationID string) string {
	return filepath.Join(c.dir, stationID+"_logo.png")
}

// Get returns the cached logo path, fetching it from srcURL on a miss. An
// already-existing file is a success regardless of who wrote it.
func (c *Cache) Get(ctx context.Context, stationID, srcURL string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("logo cache disabled")
	}
	path := c.Path(stationID)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if srcURL == "" {
		return "", fmt.Errorf("station %s has no logo url", stationID)
	}
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return "", fmt.Errorf("logo dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch logo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch logo: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
	if err != nil {
		return "", fmt.Errorf("read logo: %w", err)
	}

	// Atomic write: a concurrent writer of the same file is fine, last one
	// wins and both contents are valid.
	if err := renameio.WriteFile(path, data, 0o640); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
		return "", fmt.Errorf("write logo: %w", err)
	}

	c.logger.Debug().
		Str("event", "logo.cached").
		Str(log.FieldStationID, stationID).
		Int("bytes", len(data)).
		Msg("logo cached")
	return path, nil
}
