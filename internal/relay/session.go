// Package relay realizes one HTTP audio-stream request: resolve the chunk
// playlist, spawn the transcoder in its own process group, pipe its stdout
// to the client and tear everything down on disconnect.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/metrics"
	"github.com/mashiroka/radigw/internal/procgroup"
)

var (
	// ErrSpawn reports a transcoder that could not be launched.
	ErrSpawn = errors.New("relay: transcoder spawn failed")
	// ErrFutureInterval reports a time-shift request entirely in the future.
	ErrFutureInterval = errors.New("relay: requested interval is in the future")
	// ErrOutsideWindow reports a time-shift request older than the permitted
	// past window.
	ErrOutsideWindow = errors.New("relay: requested interval is outside the time-shift window")
)

// Mode names for logging and metrics.
const (
	ModeLive     = "live"
	ModeTimefree = "timefree"
)

// Resolver is the slice of the upstream client a session needs.
type Resolver interface {
	Token() string
	Refresh(ctx context.Context) error
	ResolveLive(ctx context.Context, stationID string) (string, error)
	ResolveTimefree(ctx context.Context, stationID, ft14, to14 string) (string, error)
}

// Request describes one stream request. A zero FT means live; otherwise FT
// and TO bound a time-shifted interval and SeekSec advances the start.
type Request struct {
	StationID string
	FT        time.Time
	TO        time.Time
	SeekSec   int
}

// Live reports whether the request asks for the live stream.
func (r Request) Live() bool {
	return r.FT.IsZero()
}

// Options holds session tunables.
type Options struct {
	FFmpegPath  string
	MaxAttempts int           // playlist resolve attempts, refresh between
	KillGrace   time.Duration // SIGTERM to SIGKILL escalation
	PastDays    int           // permitted time-shift history
}

func (o Options) withDefaults() Options {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 2
	}
	if o.KillGrace <= 0 {
		o.KillGrace = time.Second
	}
	if o.PastDays <= 0 {
		o.PastDays = 7
	}
	return o
}

// Session is one listener's stream. It exclusively owns its transcoder
// child and the stdout pipe.
type Session struct {
	ID       string
	Mode     string
	req      Request
	resolver Resolver
	clock    *airtime.Clock
	opts     Options
	logger   zerolog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *lineRing

	closeOnce sync.Once
	closed    chan struct{} // closed exactly once by Close
	done      chan struct{} // closed when the child has been reaped
}

// NewSession prepares a session; nothing runs until Start.
func NewSession(resolver Resolver, clock *airtime.Clock, req Request, opts Options) *Session {
	id := uuid.NewString()
	mode := ModeTimefree
	if req.Live() {
		mode = ModeLive
	}
	return &Session{
		ID:       id,
		Mode:     mode,
		req:      req,
		resolver: resolver,
		clock:    clock,
		opts:     opts.withDefaults(),
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "relay").
				Str(log.FieldSessionID, id).
				Str(log.FieldStationID, req.StationID).
				Str(log.FieldMode, mode)
		}),
		stderr: newLineRing(64),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start resolves the playlist and spawns the transcoder. On error nothing
// is running and the caller can still answer the request with a status
// code.
func (s *Session) Start(ctx context.Context) error {
	playlist, err := s.resolve(ctx)
	if err != nil {
		metrics.IncStreamStart(s.Mode, false)
		return err
	}
	if err := s.spawn(ctx, playlist); err != nil {
		metrics.IncStreamStart(s.Mode, false)
		return err
	}
	metrics.IncStreamStart(s.Mode, true)
	metrics.SessionStarted()
	return nil
}

// resolve decides live versus time-shift, applies the window rule and
// fetches the chunk playlist, refreshing the token between attempts.
func (s *Session) resolve(ctx context.Context) (string, error) {
	live := s.req.Live()
	ft, to := s.req.FT, s.req.TO

	if !live {
		now := s.clock.BroadcastNow()
		switch {
		case ft.After(now):
			return "", fmt.Errorf("%w: starts %s", ErrFutureInterval, airtime.Format14(ft))
		case ft.Before(now.AddDate(0, 0, -s.opts.PastDays)):
			return "", fmt.Errorf("%w: %s is more than %dd ago", ErrOutsideWindow, airtime.Format14(ft), s.opts.PastDays)
		case !to.After(now):
			// fully in the past: normal time-shift
		default:
			// The interval contains the live pointer: serve live instead.
			live = true
			s.Mode = ModeLive
		}
	}
	if !live && s.req.SeekSec > 0 {
		// Absolute-offset resume: advance the start instead of parsing
		// chunk boundaries.
		ft = ft.Add(time.Duration(s.req.SeekSec) * time.Second)
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		var (
			url string
			err error
		)
		if live {
			url, err = s.resolver.ResolveLive(ctx, s.req.StationID)
		} else {
			url, err = s.resolver.ResolveTimefree(ctx, s.req.StationID, airtime.Format14(ft), airtime.Format14(to))
		}
		if err == nil {
			return url, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < s.opts.MaxAttempts {
			// A stale token commonly yields an empty playlist; force a
			// fresh handshake before the next try.
			s.logger.Warn().
				Str("event", "relay.resolve.retry").
				Int("attempt", attempt).
				Err(err).
				Msg("playlist resolve failed, refreshing token")
			if rerr := s.resolver.Refresh(ctx); rerr != nil {
				lastErr = rerr
				break
			}
		}
	}
	return "", lastErr
}

func (s *Session) spawn(ctx context.Context, playlist string) error {
	// Deliberately not exec.CommandContext: cancellation must kill the
	// whole process group, which Close does itself.
	cmd := exec.Command(s.opts.FFmpegPath, ffmpegArgs(playlist, s.resolver.Token())...) // #nosec G204 -- binary path from operator config
	procgroup.Set(cmd)
	cmd.Stderr = s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	s.cmd = cmd
	s.stdout = stdout

	go s.reap()

	s.logger.Info().
		Str("event", "relay.spawned").
		Int("pid", cmd.Process.Pid).
		Msg("transcoder started")

	// Disconnect watcher: the request context ending is the primary
	// cancellation signal and must reach the child within a second.
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()
	return nil
}

// reap runs once Close has been initiated: give the SIGTERM'd child the
// grace period, escalate to SIGKILL, then collect its exit status. Waiting
// only after the stream stopped reading keeps cmd.Wait away from the
// stdout pipe while it is in use.
func (s *Session) reap() {
	<-s.closed

	waitDone := make(chan struct{})
	go func() {
		_ = s.cmd.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(s.opts.KillGrace):
		if err := procgroup.Kill(s.cmd, syscall.SIGKILL); err != nil {
			s.logger.Warn().
				Str("event", "relay.kill.failed").
				Err(err).
				Msg("SIGKILL escalation failed")
		}
		<-waitDone
	}
	close(s.done)
}

// Stream pipes transcoder stdout to w until the child exits, the client
// disconnects or a write fails. Headers must be sent by the caller first.
func (s *Session) Stream(w io.Writer) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32<<10)
	var written int64

	defer func() {
		metrics.AddStreamBytes(written)
		s.logger.Info().
			Str("event", "relay.stream.end").
			Int64("bytes", written).
			Strs("stderr_tail", s.stderr.LastN(5)).
			Msg("stream ended")
	}()

	for {
		n, rerr := s.stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.Close()
				return werr
			}
			written += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			select {
			case <-s.closed:
				return nil // closed on purpose
			default:
				return rerr
			}
		}
	}
}

// Close tears the session down: SIGTERM to the process group, SIGKILL via
// reap if the grace period elapses. Idempotent; ESRCH is success.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)

		if s.cmd != nil {
			if err := procgroup.Kill(s.cmd, syscall.SIGTERM); err != nil {
				s.logger.Warn().
					Str("event", "relay.term.failed").
					Err(err).
					Msg("SIGTERM failed")
			}
			<-s.done
			metrics.SessionEnded()
		}
		s.logger.Info().
			Str("event", "relay.closed").
			Msg("session closed")
	})
}

// Done reports the channel closed once the child has been reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
