package daemon

import "errors"

var (
	// ErrPortInUse reports that the configured listen port could not be
	// bound. Surfaced at startup, before any goroutine is spawned.
	ErrPortInUse = errors.New("daemon: listen port already in use")

	// ErrShutdown aggregates failures collected during graceful shutdown.
	ErrShutdown = errors.New("daemon: shutdown completed with errors")

	// ErrNotStarted is returned by Shutdown when Start never ran.
	ErrNotStarted = errors.New("daemon: manager not started")
)
