package bridge

import (
	"time"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/catalog"
)

// Item is one navigable entry in a browse list. A playable item carries a
// URI; a drill-down item carries only the station id.
type Item struct {
	URI       string
	StationID string
	Label     string
	Sub       string
	AlbumArt  string
}

// Group is a region-titled slice of a browse list.
type Group struct {
	Region string
	Items  []Item
}

// groupByRegion folds stations into groups preserving directory order.
func groupByRegion(stations []catalog.Station, item func(catalog.Station) Item) []Group {
	var groups []Group
	idx := make(map[string]int)
	for _, st := range stations {
		i, ok := idx[st.RegionName]
		if !ok {
			i = len(groups)
			idx[st.RegionName] = i
			groups = append(groups, Group{Region: st.RegionName})
		}
		groups[i].Items = append(groups[i].Items, item(st))
	}
	return groups
}

// BrowseLive lists every station as a live-playable item, annotated with
// whatever is on air right now.
func (a *Adapter) BrowseLive() []Group {
	now := a.clock.BroadcastNow()
	return groupByRegion(a.store.Stations(), func(st catalog.Station) Item {
		it := Item{
			URI:       LiveURI(st.ID),
			StationID: st.ID,
			Label:     st.Name,
		}
		var current *catalog.Program
		if p, err := a.store.FindCurrent(st.ID, now); err == nil && !p.Filler() {
			current = &p
			it.Sub = p.Title
		}
		it.AlbumArt = a.albumArt(st, current)
		return it
	})
}

// BrowseTimefree lists the stations that permit time-shift playback as
// drill-down items; the host follows up with BrowseStationDay.
func (a *Adapter) BrowseTimefree() []Group {
	var shiftable []catalog.Station
	for _, st := range a.store.Stations() {
		if st.TimeFree {
			shiftable = append(shiftable, st)
		}
	}
	return groupByRegion(shiftable, func(st catalog.Station) Item {
		return Item{
			StationID: st.ID,
			Label:     st.Name,
			AlbumArt:  a.albumArt(st, nil),
		}
	})
}

// BrowseStationDay lists one station's broadcast day as playable items.
// Programs that have not started yet are omitted: they are not shiftable.
func (a *Adapter) BrowseStationDay(stationID string, date time.Time) []Item {
	st, err := a.store.Station(stationID)
	if err != nil {
		return nil
	}
	now := a.clock.BroadcastNow()

	var items []Item
	for _, p := range a.store.ListForDay(stationID, date) {
		if !p.FT.Before(now) {
			continue
		}
		label := p.Title
		if p.Filler() {
			label = Lookup("browse.filler.label")
		}
		pp := p
		items = append(items, Item{
			URI:       TimefreeURI(stationID, p.FT, p.TO),
			StationID: stationID,
			Label:     label,
			Sub:       airtime.FormatSpan(p.FT, p.TO),
			AlbumArt:  a.albumArt(st, &pp),
		})
	}
	return items
}
