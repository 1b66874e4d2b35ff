// Package catalog holds the in-memory station, area and program store.
package catalog

import (
	"errors"
	"time"
)

// ErrNotFound reports an unknown station or the absence of a program at the
// queried instant.
var ErrNotFound = errors.New("catalog: not found")

// Station is one broadcast station. Stations are built during catalog
// initialization and immutable afterwards.
type Station struct {
	ID         string
	ASCIIName  string
	Name       string
	RegionName string
	AreaID     string
	AreaName   string
	BannerURL  string
	LogoURL    string
	AreaFree   bool
	TimeFree   bool
}

// Area is one geographic region and the stations it permits.
type Area struct {
	ID         string
	Name       string
	StationIDs []string
}

// Program is one schedule entry. FT and TO are wall-clock JST instants,
// already normalized from the feed's 24-29 hour convention. A gap filler
// carries an empty Title; that is the signal consumers use to distinguish
// dead air from a real program.
type Program struct {
	ID        string // stationID + raw feed id, unique
	StationID string
	FT        time.Time
	TO        time.Time
	Title     string
	Info      string
	Pfm       string
	Img       string
}

// Contains reports whether t falls inside the half-open interval [FT, TO).
func (p Program) Contains(t time.Time) bool {
	return !t.Before(p.FT) && t.Before(p.TO)
}

// Filler reports whether p is a synthetic gap-fill record.
func (p Program) Filler() bool {
	return p.Title == ""
}

// overlaps reports whether two half-open intervals intersect.
func (p Program) overlaps(q Program) bool {
	return p.FT.Before(q.TO) && q.FT.Before(p.TO)
}
