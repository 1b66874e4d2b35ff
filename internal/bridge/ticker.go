package bridge

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/metrics"
	"github.com/mashiroka/radigw/internal/relay"
)

// tickerState tracks the program interval the last push covered. The next
// push happens when that interval elapses, or immediately when forced.
type tickerState struct {
	stationID string
	until     time.Time
	forced    bool
}

// StartTicker begins the once-per-minute now-playing push for a stream.
// The schedule fires at second (delay+1)%60 so the push lands just after
// the delayed live pointer crosses a minute boundary. Live mode pushes on
// every program change; timefree pushes once and stops itself.
func (a *Adapter) StartTicker(stationID, mode string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cron != nil {
		a.stopLocked()
	}

	if mode == relay.ModeTimefree {
		// Timefree gets exactly one push, via PushTimefree at stream
		// start; there is nothing to schedule.
		return nil
	}

	a.ticker = &tickerState{stationID: stationID, forced: true}

	c := cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("%d * * * * *", (a.delaySec+1)%60)
	if _, err := c.AddFunc(spec, a.tick); err != nil {
		a.ticker = nil
		return fmt.Errorf("bridge: ticker schedule: %w", err)
	}
	a.cron = c
	c.Start()

	a.logger.Debug().
		Str("event", "bridge.ticker_started").
		Str(log.FieldStationID, stationID).
		Str("spec", spec).
		Msg("now-playing ticker started")

	// First push immediately, not at the next minute boundary.
	a.tickLocked()
	return nil
}

// StopTicker halts the push schedule. Idempotent.
func (a *Adapter) StopTicker() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *Adapter) stopLocked() {
	if a.cron != nil {
		a.cron.Stop()
		a.cron = nil
		a.logger.Debug().Str("event", "bridge.ticker_stopped").Msg("now-playing ticker stopped")
	}
	a.ticker = nil
}

func (a *Adapter) tick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tickLocked()
}

// tickLocked runs one push cycle. Caller holds a.mu.
func (a *Adapter) tickLocked() {
	st := a.ticker
	if st == nil {
		return
	}

	// The ticker only runs while a stream is actually playing.
	if a.registry != nil && a.registry.Active() == 0 {
		a.stopLocked()
		return
	}

	now := a.clock.BroadcastNow()
	if !st.forced && now.Before(st.until) {
		return
	}
	st.forced = false

	station, err := a.store.Station(st.stationID)
	if err != nil {
		return
	}

	np := NowPlaying{StationID: st.stationID, Artist: station.Name}

	p, err := a.store.FindCurrent(st.stationID, now)
	switch {
	case err != nil || p.Filler():
		np.Title = Lookup("nowplaying.dead_air")
		np.AlbumArt = a.albumArt(station, nil)
		// Retry next tick rather than sleeping until an unknown end.
		st.until = now
	default:
		np.Title = p.Title
		if p.Pfm != "" {
			np.Artist = p.Pfm
		}
		np.AlbumArt = a.albumArt(station, &p)
		np.DurationSec = int(p.TO.Sub(p.FT) / time.Second)
		np.SeekMS = now.Sub(p.FT).Milliseconds()
		st.until = p.TO
	}

	a.push(np)
	metrics.IncNowPlayingPush()
	a.logger.Debug().
		Str("event", "bridge.nowplaying_push").
		Str(log.FieldStationID, st.stationID).
		Str("title", np.Title).
		Int64("seek_ms", np.SeekMS).
		Msg("now-playing pushed")
}

// PushTimefree delivers the single push for a time-shifted stream: full
// interval duration, seek preset to the request's offset.
func (a *Adapter) PushTimefree(stationID string, ft, to time.Time, seekSec int) {
	station, err := a.store.Station(stationID)
	if err != nil {
		return
	}
	np := NowPlaying{
		StationID:   stationID,
		Artist:      station.Name,
		DurationSec: int(to.Sub(ft) / time.Second),
		SeekMS:      int64(seekSec) * 1000,
	}
	if p, err := a.store.FindAt(stationID, ft); err == nil && !p.Filler() {
		np.Title = p.Title
		if p.Pfm != "" {
			np.Artist = p.Pfm
		}
		np.AlbumArt = a.albumArt(station, &p)
	} else {
		np.Title = Lookup("nowplaying.dead_air")
		np.AlbumArt = a.albumArt(station, nil)
	}
	a.push(np)
	metrics.IncNowPlayingPush()
}
