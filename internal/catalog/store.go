package catalog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/cache"
	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/metrics"
)

// currentCacheTTL bounds how long a FindCurrent hit may be reused. The key
// is minute-granular, so the TTL only has to outlive one key generation.
// It doubles as the janitor interval: stale minute keys are never queried
// again, so only the janitor reclaims them.
const currentCacheTTL = 90 * time.Second

// Store is the indexed in-memory catalog. One writer (the fetcher), many
// readers. Stations and areas are written during bootstrap and read freely
// afterwards; programs churn daily.
type Store struct {
	mu           sync.RWMutex
	programs     map[string]Program   // by program id
	byFT         map[string][]Program // per station, sorted by FT then TO
	stations     map[string]Station
	stationOrder []string
	areas        map[string]Area

	current cache.Cache   // FindCurrent memoization
	memoTTL time.Duration // per-entry lifetime of the memo
	logger  zerolog.Logger
}

// NewStore creates an empty catalog store.
func NewStore() *Store {
	return &Store{
		programs: make(map[string]Program),
		byFT:     make(map[string][]Program),
		stations: make(map[string]Station),
		areas:    make(map[string]Area),
		current:  cache.NewMemoryCache(currentCacheTTL),
		memoTTL:  currentCacheTTL,
		logger:   log.WithComponent("catalog"),
	}
}

// SetStations replaces the station map. Order is preserved for directory
// listings.
func (s *Store) SetStations(stations []Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations = make(map[string]Station, len(stations))
	s.stationOrder = s.stationOrder[:0]
	for _, st := range stations {
		if _, dup := s.stations[st.ID]; dup {
			continue
		}
		s.stations[st.ID] = st
		s.stationOrder = append(s.stationOrder, st.ID)
	}
	metrics.CatalogStations.Set(float64(len(s.stations)))
}

// Stations returns all stations in directory order.
func (s *Store) Stations() []Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Station, 0, len(s.stationOrder))
	for _, id := range s.stationOrder {
		out = append(out, s.stations[id])
	}
	return out
}

// Station looks up one station by id.
func (s *Store) Station(id string) (Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[id]
	if !ok {
		return Station{}, fmt.Errorf("%w: station %s", ErrNotFound, id)
	}
	return st, nil
}

// HasStation reports whether id names a known station.
func (s *Store) HasStation(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.stations[id]
	return ok
}

// SetAreas replaces the area map.
func (s *Store) SetAreas(areas []Area) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.areas = make(map[string]Area, len(areas))
	for _, a := range areas {
		s.areas[a.ID] = a
	}
}

// Areas returns the area map values.
func (s *Store) Areas() []Area {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Area, 0, len(s.areas))
	for _, a := range s.areas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Area looks up one area by id.
func (s *Store) Area(id string) (Area, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.areas[id]
	if !ok {
		return Area{}, fmt.Errorf("%w: area %s", ErrNotFound, id)
	}
	return a, nil
}

// UpsertProgram inserts one program. A duplicate id is a silent no-op. An
// overlap with a different id is resolved in favour of the newcomer: the
// overlapped records are removed and the resolution is logged, tolerating
// same-day schedule edits upstream.
func (s *Store) UpsertProgram(p Program) error {
	if err := airtime.CheckInterval(p.FT, p.TO); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.programs[p.ID]; dup {
		return nil
	}

	idx := s.byFT[p.StationID]
	kept := idx[:0]
	for _, q := range idx {
		if p.overlaps(q) {
			s.logger.Warn().
				Str("event", "catalog.overlap.resolved").
				Str(log.FieldStationID, p.StationID).
				Str("evicted", q.ID).
				Str("winner", p.ID).
				Msg("overlapping program replaced, later wins")
			metrics.CatalogOverlapResolved.Inc()
			delete(s.programs, q.ID)
			continue
		}
		kept = append(kept, q)
	}

	s.programs[p.ID] = p
	kept = append(kept, p)
	sort.Slice(kept, func(i, j int) bool {
		if !kept[i].FT.Equal(kept[j].FT) {
			return kept[i].FT.Before(kept[j].FT)
		}
		return kept[i].TO.Before(kept[j].TO)
	})
	s.byFT[p.StationID] = kept
	metrics.CatalogPrograms.Set(float64(len(s.programs)))
	return nil
}

// FindCurrent returns the unique program on air at now for the station. A
// minute-granularity cache accelerates repeated polls; a cached value is
// only served while it still contains the queried instant.
func (s *Store) FindCurrent(stationID string, now time.Time) (Program, error) {
	key := stationID + "@" + now.In(airtime.JST).Format("200601021504")
	if v, ok := s.current.Get(key); ok {
		if p, ok := v.(Program); ok && p.Contains(now) {
			return p, nil
		}
	}

	p, err := s.FindAt(stationID, now)
	if err != nil {
		return Program{}, err
	}
	s.current.Set(key, p, s.memoTTL)
	return p, nil
}

// FindAt returns the program whose interval contains t.
func (s *Store) FindAt(stationID string, t time.Time) (Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.byFT[stationID]
	// First program starting after t; its predecessor is the only candidate.
	i := sort.Search(len(idx), func(i int) bool { return idx[i].FT.After(t) })
	if i == 0 {
		return Program{}, fmt.Errorf("%w: %s at %s", ErrNotFound, stationID, airtime.Format14(t))
	}
	if p := idx[i-1]; p.Contains(t) {
		return p, nil
	}
	return Program{}, fmt.Errorf("%w: %s at %s", ErrNotFound, stationID, airtime.Format14(t))
}

// ListForDay returns the programs intersecting the broadcast day of the
// given calendar date, ascending by FT then TO.
func (s *Store) ListForDay(stationID string, date time.Time) []Program {
	start := airtime.DayStart(date)
	end := airtime.DayEnd(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Program
	for _, p := range s.byFT[stationID] {
		if p.FT.Before(end) && start.Before(p.TO) {
			out = append(out, p)
		}
	}
	return out
}

// PurgeBefore removes programs that ended before t and returns how many
// were removed. Idempotent.
func (s *Store) PurgeBefore(t time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for stationID, idx := range s.byFT {
		kept := idx[:0]
		for _, p := range idx {
			if p.TO.Before(t) {
				delete(s.programs, p.ID)
				removed++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(s.byFT, stationID)
			continue
		}
		s.byFT[stationID] = kept
	}
	if removed > 0 {
		metrics.CatalogPrograms.Set(float64(len(s.programs)))
		s.logger.Info().
			Str("event", "catalog.purge").
			Int("removed", removed).
			Msg("purged ended programs")
	}
	return removed
}

// Count returns the number of stored programs.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.programs)
}

// Clear drops all catalog state and stops the memo janitor. Shutdown
// support.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = make(map[string]Program)
	s.byFT = make(map[string][]Program)
	s.stations = make(map[string]Station)
	s.stationOrder = nil
	s.areas = make(map[string]Area)
	s.current.Stop()
	s.current.Clear()
	metrics.CatalogPrograms.Set(0)
	metrics.CatalogStations.Set(0)
}
