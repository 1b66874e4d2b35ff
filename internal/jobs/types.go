// Package jobs acquires station and program feeds and populates the
// catalog store: the startup bootstrap, the 04:59 daily refresh and the
// lazy single-station fetch for time-shift lookups.
package jobs

import (
	"context"
	"time"

	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/radiko"
)

// Upstream is the slice of the radiko client the fetcher consumes. Tests
// substitute a hand mock.
type Upstream interface {
	AreaID() string
	PremiumActive() bool
	RegionFull(ctx context.Context) (*radiko.RegionDocument, error)
	StationsByArea(ctx context.Context, areaID string) (*radiko.AreaDocument, error)
	ProgramsToday(ctx context.Context, areaID string) (*radiko.ProgramDocument, error)
	ProgramsByDate(ctx context.Context, date8, areaID string) (*radiko.ProgramDocument, error)
	ProgramsDailyStation(ctx context.Context, date8, stationID string) (*radiko.ProgramDocument, error)
}

// Store is the catalog surface the fetcher writes to.
type Store interface {
	SetStations(stations []catalog.Station)
	SetAreas(areas []catalog.Area)
	Stations() []catalog.Station
	UpsertProgram(p catalog.Program) error
	PurgeBefore(t time.Time) int
	Count() int
}

// Status is a snapshot of the last refresh run, served on /healthz.
type Status struct {
	LastRun  time.Time `json:"last_run"`
	Duration int64     `json:"duration_ms"`
	Programs int       `json:"programs"`
	Errors   []string  `json:"errors,omitempty"`
}

// Config holds fetcher tunables.
type Config struct {
	EnabledAreas      []string // extra areas for premium multi-area setups
	TimeshiftPastDays int
	Concurrency       int // parallel per-area fetches, default 5
}
