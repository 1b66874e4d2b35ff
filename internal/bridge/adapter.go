// Package bridge is the narrow surface toward the host player. It is the
// only package that speaks player vocabulary: browse lists, queue URIs,
// toast messages and the now-playing push.
package bridge

import (
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/config"
	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/relay"
)

// Toast severity levels understood by the host player.
const (
	ToastInfo    = "info"
	ToastSuccess = "success"
	ToastWarn    = "warn"
	ToastError   = "error"
)

// ToastFunc emits a transient notification in the host player.
type ToastFunc func(level, title, body string)

// PushFunc delivers a now-playing update to the host player.
type PushFunc func(np NowPlaying)

// NowPlaying is the player-facing playback state. Seconds everywhere else;
// milliseconds only here, at the boundary.
type NowPlaying struct {
	StationID   string
	Title       string
	Artist      string
	AlbumArt    string
	DurationSec int
	SeekMS      int64
}

// Options wires the adapter's collaborators.
type Options struct {
	Store    *catalog.Store
	Clock    *airtime.Clock
	Registry *relay.Registry
	AAType   string // config.AATypeBanner, AATypeLogo or AATypeProgramThenLogo
	DelaySec int    // aligns the ticker with the delayed live pointer
	Toast    ToastFunc
	Push     PushFunc
}

// Adapter translates between the catalog/relay world and the host player.
type Adapter struct {
	store    *catalog.Store
	clock    *airtime.Clock
	registry *relay.Registry
	aaType   string
	delaySec int
	toast    ToastFunc
	push     PushFunc
	logger   zerolog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ticker *tickerState
}

// New creates the adapter. Nil callbacks are replaced with no-ops so the
// adapter is usable headless (tests, metrics-only deployments).
func New(opts Options) *Adapter {
	if opts.Toast == nil {
		opts.Toast = func(string, string, string) {}
	}
	if opts.Push == nil {
		opts.Push = func(NowPlaying) {}
	}
	if opts.AAType == "" {
		opts.AAType = config.AATypeProgramThenLogo
	}
	return &Adapter{
		store:    opts.Store,
		clock:    opts.Clock,
		registry: opts.Registry,
		aaType:   opts.AAType,
		delaySec: opts.DelaySec,
		toast:    opts.Toast,
		push:     opts.Push,
		logger:   log.WithComponent("bridge"),
	}
}

// Toast forwards a notification to the host player.
func (a *Adapter) Toast(level, title, body string) {
	a.toast(level, title, body)
}

// albumArt picks the artwork for a station/program pair per the configured
// aaType policy.
func (a *Adapter) albumArt(st catalog.Station, p *catalog.Program) string {
	switch a.aaType {
	case config.AATypeBanner:
		return st.BannerURL
	case config.AATypeLogo:
		return st.LogoURL
	default: // program-then-logo
		if p != nil && p.Img != "" {
			return p.Img
		}
		return st.LogoURL
	}
}
