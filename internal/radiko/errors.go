package radiko

import "errors"

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrAuth            = errors.New("radiko: token handshake failed")
	ErrLogin           = errors.New("radiko: premium login failed")
	ErrUpstream        = errors.New("radiko: upstream request failed")
	ErrResolvePlaylist = errors.New("radiko: no playable url in playlist")
)
