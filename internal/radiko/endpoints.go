package radiko

import "fmt"

// authKey is the fixed application key shipped with the pc_html5 player.
// AUTH1 answers with an offset and length into it; the base64 of that slice
// is the stage-two partial key.
const authKey = "bcd151073c03b352e1ef2fd66c32209da9ca0afa"

// Endpoints holds the upstream URL templates. Tests point them at a fake
// server; production uses Default.
type Endpoints struct {
	Login string
	Check string
	Auth1 string
	Auth2 string

	StationFull string
	StationArea string // area id

	ProgDateArea      string // date yyyymmdd, area id
	ProgNowArea       string // area id
	ProgTodayArea     string // area id
	ProgDailyStation  string // date yyyymmdd, station id
	ProgWeeklyStation string // station id

	PlayLive     string // station id
	PlayTimefree string // station id, ft, to
}

// DefaultEndpoints returns the production radiko endpoint table.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login: "https://radiko.jp/ap/member/login/login",
		Check: "https://radiko.jp/ap/member/webapi/member/login/check",
		Auth1: "https://radiko.jp/v2/api/auth1",
		Auth2: "https://radiko.jp/v2/api/auth2",

		StationFull: "https://radiko.jp/v3/station/region/full.xml",
		StationArea: "https://radiko.jp/v3/station/list/%s.xml",

		ProgDateArea:      "https://radiko.jp/v3/program/date/%s/%s.xml",
		ProgNowArea:       "https://radiko.jp/v3/program/now/%s.xml",
		ProgTodayArea:     "https://radiko.jp/v3/program/today/%s.xml",
		ProgDailyStation:  "https://radiko.jp/v3/program/station/date/%s/%s.xml",
		ProgWeeklyStation: "https://radiko.jp/v3/program/station/weekly/%s.xml",

		PlayLive:     "https://f-radiko.smartstream.ne.jp/%s/_definst_/simul-stream.stream/playlist.m3u8",
		PlayTimefree: "https://radiko.jp/v2/api/ts/playlist.m3u8?station_id=%s&ft=%s&to=%s",
	}
}

// LiveURL renders the live playlist endpoint for a station.
func (e Endpoints) LiveURL(stationID string) string {
	return fmt.Sprintf(e.PlayLive, stationID)
}

// TimefreeURL renders the time-shift playlist endpoint for a station and a
// wall-clock interval in 14-digit form.
func (e Endpoints) TimefreeURL(stationID, ft14, to14 string) string {
	return fmt.Sprintf(e.PlayTimefree, stationID, ft14, to14)
}

// StationAreaURL renders the per-area station list endpoint.
func (e Endpoints) StationAreaURL(areaID string) string {
	return fmt.Sprintf(e.StationArea, areaID)
}

// ProgDateAreaURL renders the per-area program listing for a broadcast date.
func (e Endpoints) ProgDateAreaURL(date8, areaID string) string {
	return fmt.Sprintf(e.ProgDateArea, date8, areaID)
}

// ProgNowAreaURL renders the on-air program listing for an area.
func (e Endpoints) ProgNowAreaURL(areaID string) string {
	return fmt.Sprintf(e.ProgNowArea, areaID)
}

// ProgTodayAreaURL renders today's program listing for an area.
func (e Endpoints) ProgTodayAreaURL(areaID string) string {
	return fmt.Sprintf(e.ProgTodayArea, areaID)
}

// ProgDailyStationURL renders the single-station single-day listing.
func (e Endpoints) ProgDailyStationURL(date8, stationID string) string {
	return fmt.Sprintf(e.ProgDailyStation, date8, stationID)
}

// ProgWeeklyStationURL renders the single-station weekly listing.
func (e Endpoints) ProgWeeklyStationURL(stationID string) string {
	return fmt.Sprintf(e.ProgWeeklyStation, stationID)
}
