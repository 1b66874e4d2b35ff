package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/metrics"
	"github.com/mashiroka/radigw/internal/radiko"
)

const defaultConcurrency = 5

// Fetcher populates the catalog store from upstream feeds.
type Fetcher struct {
	upstream Upstream
	store    Store
	clock    *airtime.Clock
	cfg      Config
	logger   zerolog.Logger

	running atomic.Bool // re-entrancy guard for refresh runs

	mu     sync.RWMutex
	status Status
}

// NewFetcher wires a catalog fetcher.
func NewFetcher(upstream Upstream, store Store, clock *airtime.Clock, cfg Config) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Fetcher{
		upstream: upstream,
		store:    store,
		clock:    clock,
		cfg:      cfg,
		logger:   log.WithComponent("jobs"),
	}
}

// Status returns a snapshot of the last refresh run.
func (f *Fetcher) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// targetAreas resolves which areas to fetch: always the handshake-resolved
// area, plus the user-enabled areas when the account is premium.
func (f *Fetcher) targetAreas() []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(f.upstream.AreaID())
	if f.upstream.PremiumActive() {
		for _, id := range f.cfg.EnabledAreas {
			add(id)
		}
	}
	return out
}

// Bootstrap builds the station/area maps and seeds today's programs. A
// per-URL failure is logged and skipped; the result is the union of what
// succeeded, and total failure leaves an empty catalog without aborting
// boot.
func (f *Fetcher) Bootstrap(ctx context.Context) error {
	areas := f.targetAreas()
	f.logger.Info().
		Str("event", "catalog.bootstrap.start").
		Strs("areas", areas).
		Msg("bootstrapping catalog")

	if err := f.buildStations(ctx, areas); err != nil {
		f.logger.Warn().
			Str("event", "catalog.bootstrap.stations_failed").
			Err(err).
			Msg("station directory fetch failed, catalog starts empty")
		return err
	}

	errs := f.fetchAreaPrograms(ctx, areas, "")
	f.recordRun(time.Now(), 0, errs)
	f.logger.Info().
		Str("event", "catalog.bootstrap.done").
		Int("programs", f.store.Count()).
		Int("failed_areas", len(errs)).
		Msg("catalog bootstrap completed")
	return nil
}

// RefreshDaily is the 04:59 task: it fetches the new broadcast date by
// explicit yyyymmdd so the day is queryable right after rollover, then
// purges everything past the time-shift window. A second call while one
// run is in flight is a no-op.
func (f *Fetcher) RefreshDaily(ctx context.Context) {
	if !f.running.CompareAndSwap(false, true) {
		f.logger.Warn().
			Str("event", "catalog.refresh.skipped").
			Msg("refresh already in progress")
		return
	}
	defer f.running.Store(false)

	start := time.Now()
	date8 := airtime.FormatDate8(f.clock.BroadcastDate())
	areas := f.targetAreas()
	f.logger.Info().
		Str("event", "catalog.refresh.start").
		Str("date", date8).
		Strs("areas", areas).
		Msg("starting daily refresh")

	errs := f.fetchAreaPrograms(ctx, areas, date8)

	cutoff := f.clock.Now().AddDate(0, 0, -f.cfg.TimeshiftPastDays)
	purged := f.store.PurgeBefore(cutoff)

	elapsed := time.Since(start)
	f.recordRun(start, elapsed.Milliseconds(), errs)
	metrics.CatalogRefreshDuration.Observe(elapsed.Seconds())
	if len(errs) == 0 {
		metrics.CatalogRefreshTotal.WithLabelValues("success").Inc()
	} else {
		metrics.CatalogRefreshTotal.WithLabelValues("partial").Inc()
	}

	f.logger.Info().
		Str("event", "catalog.refresh.done").
		Str("date", date8).
		Int("programs", f.store.Count()).
		Int("purged", purged).
		Int("failed_areas", len(errs)).
		Dur("duration", elapsed).
		Msg("daily refresh completed")
}

// FetchStation lazily loads one station's schedule for one broadcast date,
// used when a time-shift lookup misses the cached window.
func (f *Fetcher) FetchStation(ctx context.Context, stationID string, date time.Time) error {
	date8 := airtime.FormatDate8(date)
	doc, err := f.upstream.ProgramsDailyStation(ctx, date8, stationID)
	if err != nil {
		return err
	}
	for _, st := range doc.Stations {
		if st.ID != stationID {
			continue
		}
		progs, err := mapPrograms(stationID, st)
		if err != nil {
			return err
		}
		f.insert(progs)
	}
	f.logger.Debug().
		Str("event", "catalog.fetch_station").
		Str(log.FieldStationID, stationID).
		Str("date", date8).
		Msg("lazy station fetch completed")
	return nil
}

// buildStations fetches the full region directory plus the per-area
// documents and installs the admitted stations and the area maps.
func (f *Fetcher) buildStations(ctx context.Context, areas []string) error {
	region, err := f.upstream.RegionFull(ctx)
	if err != nil {
		return fmt.Errorf("region directory: %w", err)
	}

	areaDocs := make(map[string]catalog.Area, len(areas))
	resolvedSet := map[string]bool{}
	resolvedArea := f.upstream.AreaID()
	areaNames := map[string]string{}

	for _, areaID := range areas {
		doc, err := f.upstream.StationsByArea(ctx, areaID)
		if err != nil {
			f.logger.Warn().
				Str("event", "catalog.area.skipped").
				Str(log.FieldAreaID, areaID).
				Err(err).
				Msg("area document fetch failed")
			continue
		}
		ids := make([]string, 0, len(doc.Stations))
		for _, st := range doc.Stations {
			ids = append(ids, st.ID)
			if areaID == resolvedArea {
				resolvedSet[st.ID] = true
			}
		}
		areaDocs[areaID] = catalog.Area{ID: areaID, Name: normalizeText(doc.AreaName), StationIDs: ids}
		areaNames[areaID] = normalizeText(doc.AreaName)
	}

	enabled := map[string]bool{}
	for _, id := range f.cfg.EnabledAreas {
		enabled[id] = true
	}
	premium := f.upstream.PremiumActive()

	var stations []catalog.Station
	for _, reg := range region.Regions {
		for _, sx := range reg.Stations {
			st := mapStation(sx, reg.RegionName, areaNames[sx.AreaID])
			if admitStation(st, premium, resolvedSet, enabled) {
				stations = append(stations, st)
			}
		}
	}

	f.store.SetStations(stations)
	areaList := make([]catalog.Area, 0, len(areaDocs))
	for _, a := range areaDocs {
		areaList = append(areaList, a)
	}
	f.store.SetAreas(areaList)

	f.logger.Info().
		Str("event", "catalog.stations.built").
		Int("stations", len(stations)).
		Int("areas", len(areaList)).
		Bool("premium", premium).
		Msg("station directory built")
	return nil
}

// fetchAreaPrograms fans out per-area program fetches with a concurrency
// cap. date8 empty means the "today" feed. It returns one error per failed
// area; successes are already inserted.
func (f *Fetcher) fetchAreaPrograms(ctx context.Context, areas []string, date8 string) []error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)

	for _, areaID := range areas {
		areaID := areaID
		g.Go(func() error {
			var (
				pdoc *radiko.ProgramDocument
				err  error
			)
			if date8 == "" {
				pdoc, err = f.upstream.ProgramsToday(ctx, areaID)
			} else {
				pdoc, err = f.upstream.ProgramsByDate(ctx, date8, areaID)
			}
			if err != nil {
				f.logger.Warn().
					Str("event", "catalog.area.fetch_failed").
					Str(log.FieldAreaID, areaID).
					Err(err).
					Msg("program fetch failed, skipping area")
				mu.Lock()
				errs = append(errs, fmt.Errorf("area %s: %w", areaID, err))
				mu.Unlock()
				return nil // other areas proceed
			}
			for _, st := range pdoc.Stations {
				progs, err := mapPrograms(st.ID, st)
				if err != nil {
					f.logger.Warn().
						Str("event", "catalog.station.mapping_failed").
						Str(log.FieldStationID, st.ID).
						Err(err).
						Msg("program mapping failed, skipping station")
					continue
				}
				f.insert(progs)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (f *Fetcher) insert(progs []catalog.Program) {
	for _, p := range progs {
		if err := f.store.UpsertProgram(p); err != nil {
			f.logger.Warn().
				Str("event", "catalog.upsert.rejected").
				Str(log.FieldProgramID, p.ID).
				Err(err).
				Msg("program rejected")
		}
	}
}

func (f *Fetcher) recordRun(start time.Time, durationMS int64, errs []error) {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	f.mu.Lock()
	f.status = Status{
		LastRun:  start,
		Duration: durationMS,
		Programs: f.store.Count(),
		Errors:   msgs,
	}
	f.mu.Unlock()

	metrics.SetCatalogSize(f.store.Count(), len(f.store.Stations()))
}
