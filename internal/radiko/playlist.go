package radiko

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ResolvePlaylist fetches a top-level playlist and returns the first chunk
// playlist URL: a line beginning with https and ending in .m3u8. The
// request carries the current auth token; an expired token typically yields
// an empty body, which surfaces as ErrResolvePlaylist so the caller can
// Refresh and retry.
func (c *Client) ResolvePlaylist(ctx context.Context, rawURL string) (string, error) {
	extra := http.Header{}
	if tok := c.Token(); tok != "" {
		extra.Set("X-Radiko-AuthToken", tok)
	}

	body, err := c.getText(ctx, "playlist", rawURL, extra)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "https") && strings.HasSuffix(line, ".m3u8") {
			return line, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrResolvePlaylist, rawURL)
}

// ResolveLive resolves the chunk playlist for a station's live stream.
func (c *Client) ResolveLive(ctx context.Context, stationID string) (string, error) {
	return c.ResolvePlaylist(ctx, c.endpoints.LiveURL(stationID))
}

// ResolveTimefree resolves the chunk playlist for a time-shifted interval
// given in 14-digit wall-clock form.
func (c *Client) ResolveTimefree(ctx context.Context, stationID, ft14, to14 string) (string, error) {
	return c.ResolvePlaylist(ctx, c.endpoints.TimefreeURL(stationID, ft14, to14))
}
