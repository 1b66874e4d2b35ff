package bridge

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mashiroka/radigw/internal/airtime"
)

// ErrBadURI reports a browse URI the adapter cannot decode.
var ErrBadURI = errors.New("bridge: malformed uri")

const uriScheme = "radigw"

// Target is the playable request a browse URI decodes to. Zero FT means
// live.
type Target struct {
	StationID string
	FT        time.Time
	TO        time.Time
	SeekSec   int
}

// Live reports whether the target is the live stream.
func (t Target) Live() bool {
	return t.FT.IsZero()
}

// Labels is the display bundle accompanying a decoded target.
type Labels struct {
	Station string
	Program string
}

// LiveURI builds the browse URI for a station's live stream.
func LiveURI(stationID string) string {
	return fmt.Sprintf("%s://live/%s", uriScheme, stationID)
}

// TimefreeURI builds the browse URI for a time-shifted interval.
func TimefreeURI(stationID string, ft, to time.Time) string {
	return fmt.Sprintf("%s://timefree/%s/%s/%s",
		uriScheme, stationID, airtime.Format14(ft), airtime.Format14(to))
}

// ExplodeURI decodes a browse URI back into a target and its labels. The
// label bundle is filled from the catalog on a best-effort basis: an
// unknown station still explodes, with the raw id as label.
func (a *Adapter) ExplodeURI(uri string) (Target, Labels, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != uriScheme {
		return Target{}, Labels{}, fmt.Errorf("%w: %q", ErrBadURI, uri)
	}

	// url.Parse maps radigw://live/TBS to Host="live", Path="/TBS".
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	var t Target
	switch u.Host {
	case "live":
		if len(parts) != 1 || parts[0] == "" {
			return Target{}, Labels{}, fmt.Errorf("%w: %q", ErrBadURI, uri)
		}
		t.StationID = parts[0]
	case "timefree":
		if len(parts) != 3 {
			return Target{}, Labels{}, fmt.Errorf("%w: %q", ErrBadURI, uri)
		}
		t.StationID = parts[0]
		ft, err := airtime.Parse(parts[1])
		if err != nil {
			return Target{}, Labels{}, fmt.Errorf("%w: ft: %v", ErrBadURI, err)
		}
		to, err := airtime.Parse(parts[2])
		if err != nil {
			return Target{}, Labels{}, fmt.Errorf("%w: to: %v", ErrBadURI, err)
		}
		if err := airtime.CheckInterval(ft, to); err != nil {
			return Target{}, Labels{}, fmt.Errorf("%w: %v", ErrBadURI, err)
		}
		t.FT, t.TO = ft, to
	default:
		return Target{}, Labels{}, fmt.Errorf("%w: %q", ErrBadURI, uri)
	}

	if seekStr := u.Query().Get("seek"); seekStr != "" {
		seek, err := strconv.Atoi(seekStr)
		if err != nil || seek < 0 {
			return Target{}, Labels{}, fmt.Errorf("%w: seek %q", ErrBadURI, seekStr)
		}
		t.SeekSec = seek
	}

	labels := Labels{Station: t.StationID}
	if st, err := a.store.Station(t.StationID); err == nil {
		labels.Station = st.Name
	}
	if !t.Live() {
		if p, err := a.store.FindAt(t.StationID, t.FT); err == nil && !p.Filler() {
			labels.Program = p.Title
		}
	}
	return t, labels, nil
}
