package jobs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	unorm "golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/radiko"
)

// gapFillMin is the smallest schedule hole worth a synthetic filler. Holes
// below it are rounding noise in the feed.
const gapFillMin = 60 * time.Second

// normalizeText folds feed text to NFC and narrows fullwidth ASCII so
// lookups and display behave uniformly.
func normalizeText(s string) string {
	s = unorm.NFC.String(strings.TrimSpace(s))
	return width.Fold.String(s)
}

// mapStation converts one feed station entry. The largest logo variant
// wins.
func mapStation(x radiko.StationFeedXML, regionName, areaName string) catalog.Station {
	logo := ""
	best := -1
	for _, l := range x.Logos {
		if area := l.Width * l.Height; area > best {
			best = area
			logo = strings.TrimSpace(l.URL)
		}
	}
	return catalog.Station{
		ID:         strings.TrimSpace(x.ID),
		ASCIIName:  normalizeText(x.ASCIIName),
		Name:       normalizeText(x.Name),
		RegionName: normalizeText(regionName),
		AreaID:     strings.TrimSpace(x.AreaID),
		AreaName:   normalizeText(areaName),
		BannerURL:  strings.TrimSpace(x.Banner),
		LogoURL:    logo,
		AreaFree:   x.AreaFree == "1",
		TimeFree:   x.TimeFree == "1",
	}
}

// mapPrograms converts one station's feed schedule into catalog programs:
// broadcast-day timestamps become wall-clock, the result is sorted, and
// holes of gapFillMin or more get a synthetic filler so every instant of a
// covered day resolves to exactly one record.
func mapPrograms(stationID string, doc radiko.ProgramStationXML) ([]catalog.Program, error) {
	var out []catalog.Program
	for _, day := range doc.Progs {
		for _, px := range day.Progs {
			ft, err := airtime.Parse(px.FT)
			if err != nil {
				return nil, fmt.Errorf("station %s prog %s ft: %w", stationID, px.ID, err)
			}
			to, err := airtime.Parse(px.TO)
			if err != nil {
				return nil, fmt.Errorf("station %s prog %s to: %w", stationID, px.ID, err)
			}
			if err := airtime.CheckInterval(ft, to); err != nil {
				return nil, fmt.Errorf("station %s prog %s: %w", stationID, px.ID, err)
			}
			out = append(out, catalog.Program{
				ID:        stationID + px.ID,
				StationID: stationID,
				FT:        ft,
				TO:        to,
				Title:     normalizeText(px.Title),
				Info:      strings.TrimSpace(px.Info),
				Pfm:       normalizeText(px.Pfm),
				Img:       strings.TrimSpace(px.Img),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FT.Equal(out[j].FT) {
			return out[i].FT.Before(out[j].FT)
		}
		return out[i].TO.Before(out[j].TO)
	})
	return fillGaps(stationID, out), nil
}

// fillGaps inserts empty-titled fillers between successive programs. The
// filler id derives from the gap start so re-fetching the same day yields
// the same id and upsert stays idempotent.
func fillGaps(stationID string, progs []catalog.Program) []catalog.Program {
	if len(progs) < 2 {
		return progs
	}
	filled := make([]catalog.Program, 0, len(progs))
	for i, p := range progs {
		filled = append(filled, p)
		if i == len(progs)-1 {
			break
		}
		next := progs[i+1]
		if next.FT.Sub(p.TO) >= gapFillMin {
			filled = append(filled, catalog.Program{
				ID:        stationID + "_gap_" + airtime.Format14(p.TO),
				StationID: stationID,
				FT:        p.TO,
				TO:        next.FT,
			})
		}
	}
	return filled
}

// admitStation decides whether a station enters the catalog: premium means
// everything, otherwise the station must belong to the resolved area's set
// or to a user-enabled area.
func admitStation(st catalog.Station, premium bool, resolvedSet map[string]bool, enabledAreas map[string]bool) bool {
	if premium {
		return true
	}
	if resolvedSet[st.ID] {
		return true
	}
	return enabledAreas[st.AreaID]
}
