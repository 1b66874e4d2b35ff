package radiko

import (
	"context"
	"encoding/xml"
)

// Feed document types. encoding/xml decodes a repeated element into a slice
// whether the upstream sent one occurrence or many, so downstream code never
// branches on arity.

// RegionDocument is the full station directory, grouped by region.
type RegionDocument struct {
	XMLName xml.Name        `xml:"region"`
	Regions []RegionFeedXML `xml:"stations"`
}

// RegionFeedXML is one region's station list inside the full directory.
type RegionFeedXML struct {
	RegionName string           `xml:"region_name,attr"`
	RegionID   string           `xml:"region_id,attr"`
	Stations   []StationFeedXML `xml:"station"`
}

// AreaDocument is the per-area station list; its attributes name the area
// and its station children enumerate what the area permits.
type AreaDocument struct {
	XMLName  xml.Name         `xml:"stations"`
	AreaID   string           `xml:"area_id,attr"`
	AreaName string           `xml:"area_name,attr"`
	Stations []StationFeedXML `xml:"station"`
}

// StationFeedXML is one station entry as the upstream encodes it.
type StationFeedXML struct {
	ID        string        `xml:"id"`
	Name      string        `xml:"name"`
	ASCIIName string        `xml:"ascii_name"`
	AreaID    string        `xml:"area_id"`
	Banner    string        `xml:"banner"`
	Logos     []LogoFeedXML `xml:"logo"`
	AreaFree  string        `xml:"areafree"`
	TimeFree  string        `xml:"timefree"`
}

// LogoFeedXML is one logo variant; the fetcher picks the largest.
type LogoFeedXML struct {
	Width  int    `xml:"width,attr"`
	Height int    `xml:"height,attr"`
	URL    string `xml:",chardata"`
}

// ProgramDocument is a program listing: per station, an ordered run of prog
// elements under one or more broadcast dates.
type ProgramDocument struct {
	XMLName  xml.Name            `xml:"radiko"`
	Stations []ProgramStationXML `xml:"stations>station"`
}

// ProgramStationXML carries one station's schedule.
type ProgramStationXML struct {
	ID    string         `xml:"id,attr"`
	Name  string         `xml:"name"`
	Progs []ProgsDateXML `xml:"progs"`
}

// ProgsDateXML is one broadcast date's slice of the schedule.
type ProgsDateXML struct {
	Date  string    `xml:"date"`
	Progs []ProgXML `xml:"prog"`
}

// ProgXML is a single program. ft/to use the broadcast-day convention:
// hours 24-29 for the small hours of the next calendar day.
type ProgXML struct {
	ID    string `xml:"id,attr"`
	FT    string `xml:"ft,attr"`
	TO    string `xml:"to,attr"`
	Title string `xml:"title"`
	Info  string `xml:"info"`
	Pfm   string `xml:"pfm"`
	Img   string `xml:"img"`
}

// RegionFull fetches the full station directory across all regions.
func (c *Client) RegionFull(ctx context.Context) (*RegionDocument, error) {
	var doc RegionDocument
	if err := c.GetXML(ctx, "station_full", c.endpoints.StationFull, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// StationsByArea fetches the station list the given area permits.
func (c *Client) StationsByArea(ctx context.Context, areaID string) (*AreaDocument, error) {
	var doc AreaDocument
	if err := c.GetXML(ctx, "station_area", c.endpoints.StationAreaURL(areaID), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ProgramsToday fetches today's program listing for an area.
func (c *Client) ProgramsToday(ctx context.Context, areaID string) (*ProgramDocument, error) {
	var doc ProgramDocument
	if err := c.GetXML(ctx, "prog_today_area", c.endpoints.ProgTodayAreaURL(areaID), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ProgramsByDate fetches an area's program listing for an explicit
// broadcast date in yyyymmdd form.
func (c *Client) ProgramsByDate(ctx context.Context, date8, areaID string) (*ProgramDocument, error) {
	var doc ProgramDocument
	if err := c.GetXML(ctx, "prog_date_area", c.endpoints.ProgDateAreaURL(date8, areaID), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ProgramsDailyStation fetches a single station's listing for one broadcast
// date. Used for lazy time-shift lookups outside the cached window.
func (c *Client) ProgramsDailyStation(ctx context.Context, date8, stationID string) (*ProgramDocument, error) {
	var doc ProgramDocument
	if err := c.GetXML(ctx, "prog_daily_station", c.endpoints.ProgDailyStationURL(date8, stationID), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ProgramsWeeklyStation fetches a single station's schedule for the week.
func (c *Client) ProgramsWeeklyStation(ctx context.Context, stationID string) (*ProgramDocument, error) {
	var doc ProgramDocument
	if err := c.GetXML(ctx, "prog_weekly_station", c.endpoints.ProgWeeklyStationURL(stationID), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
