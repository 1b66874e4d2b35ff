//go:build unix

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/config"
	"github.com/mashiroka/radigw/internal/jobs"
	"github.com/mashiroka/radigw/internal/logocache"
	"github.com/mashiroka/radigw/internal/radiko"
	"github.com/mashiroka/radigw/internal/relay"
)

// fakeUpstream satisfies both the relay resolver and the fetcher upstream.
type fakeUpstream struct {
	playlistURL  string
	emptyFirst   atomic.Bool // first resolve fails, simulating a stale token
	refreshCalls atomic.Int32
	lastFT       atomic.Value
}

func (f *fakeUpstream) Token() string       { return "tok" }
func (f *fakeUpstream) AreaID() string      { return "JP13" }
func (f *fakeUpstream) PremiumActive() bool { return false }

func (f *fakeUpstream) Refresh(context.Context) error {
	f.refreshCalls.Add(1)
	return nil
}

func (f *fakeUpstream) resolve() (string, error) {
	if f.emptyFirst.CompareAndSwap(true, false) {
		return "", radiko.ErrResolvePlaylist
	}
	return f.playlistURL, nil
}

func (f *fakeUpstream) ResolveLive(context.Context, string) (string, error) {
	return f.resolve()
}

func (f *fakeUpstream) ResolveTimefree(_ context.Context, _ string, ft14, _ string) (string, error) {
	f.lastFT.Store(ft14)
	return f.resolve()
}

func (f *fakeUpstream) RegionFull(context.Context) (*radiko.RegionDocument, error) {
	return nil, errors.New("not used")
}

func (f *fakeUpstream) StationsByArea(context.Context, string) (*radiko.AreaDocument, error) {
	return nil, errors.New("not used")
}

func (f *fakeUpstream) ProgramsToday(context.Context, string) (*radiko.ProgramDocument, error) {
	return nil, errors.New("not used")
}

func (f *fakeUpstream) ProgramsByDate(context.Context, string, string) (*radiko.ProgramDocument, error) {
	return nil, errors.New("not used")
}

func (f *fakeUpstream) ProgramsDailyStation(_ context.Context, date8, stationID string) (*radiko.ProgramDocument, error) {
	return &radiko.ProgramDocument{Stations: []radiko.ProgramStationXML{{
		ID: stationID,
		Progs: []radiko.ProgsDateXML{{Date: date8, Progs: []radiko.ProgXML{
			{ID: "lazy1", FT: date8 + "050000", TO: date8 + "290000", Title: "lazy day"},
		}}},
	}}}, nil
}

type fixture struct {
	srv      *httptest.Server
	store    *catalog.Store
	upstream *fakeUpstream
	registry *relay.Registry
}

func fakeTranscoder(t *testing.T, sleepSec int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := fmt.Sprintf("#!/bin/sh\nprintf 'ADTS-PAYLOAD'\nsleep %d\n", sleepSec)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newFixture(t *testing.T, nowStr string) *fixture {
	t.Helper()

	now, err := airtime.Parse(nowStr)
	require.NoError(t, err)
	clock := airtime.NewClockWith(func() time.Time { return now }, 0)

	store := catalog.NewStore()
	store.SetStations([]catalog.Station{
		{ID: "TBS", Name: "TBSラジオ", RegionName: "関東", AreaID: "JP13", AreaName: "TOKYO JAPAN"},
		{ID: "QRR", Name: "文化放送", RegionName: "関東", AreaID: "JP13", AreaName: "TOKYO JAPAN"},
	})
	mustUpsert := func(id, ft, to, title string) {
		fts, err := airtime.Parse(ft)
		require.NoError(t, err)
		tos, err := airtime.Parse(to)
		require.NoError(t, err)
		require.NoError(t, store.UpsertProgram(catalog.Program{
			ID: "TBS" + id, StationID: "TBS", FT: fts, TO: tos, Title: title,
		}))
	}
	mustUpsert("1", "20250110050000", "20250110130000", "morning")
	mustUpsert("2", "20250110130000", "20250110150000", "afternoon")
	mustUpsert("3", "20250110150000", "20250110290000", "evening")

	up := &fakeUpstream{playlistURL: "https://up.example/chunklist.m3u8"}
	cfg := config.Config{
		Port: 9000, DelaySec: 0, TimeshiftPastDays: 7,
		FFmpegPath: fakeTranscoder(t, 30),
		AAType:     config.AATypeProgramThenLogo,
	}
	fetcher := jobs.NewFetcher(up, store, clock, jobs.Config{TimeshiftPastDays: 7})
	registry := relay.NewRegistry()
	server := New(cfg, store, fetcher, up, clock, registry, logocache.New("", 0))

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(registry.CloseAll)
	return &fixture{srv: srv, store: store, upstream: up, registry: registry}
}

func getJSON(t *testing.T, url string, into any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestServer_Stations(t *testing.T) {
	f := newFixture(t, "20250110143000")

	var out struct {
		Stations []struct {
			StationID string `json:"stationId"`
			Name      string `json:"name"`
			Region    string `json:"region"`
			Area      string `json:"area"`
		} `json:"stations"`
	}
	getJSON(t, f.srv.URL+"/api/radiko/stations", &out)

	require.Len(t, out.Stations, 2)
	assert.Equal(t, "TBS", out.Stations[0].StationID)
	assert.Equal(t, "TBSラジオ", out.Stations[0].Name)
	assert.Equal(t, "関東", out.Stations[0].Region)
	assert.Equal(t, "TOKYO JAPAN", out.Stations[0].Area)
}

func TestServer_StationsWithProgram(t *testing.T) {
	f := newFixture(t, "20250110143000")

	var out struct {
		Stations []struct {
			StationID string `json:"stationId"`
			Program   *struct {
				ProgID string `json:"progId"`
				Title  string `json:"title"`
				FT     string `json:"ft"`
				TO     string `json:"to"`
			} `json:"program"`
		} `json:"stations"`
	}
	getJSON(t, f.srv.URL+"/api/radiko/stations/with-program", &out)

	require.Len(t, out.Stations, 2)
	require.NotNil(t, out.Stations[0].Program)
	assert.Equal(t, "afternoon", out.Stations[0].Program.Title)
	assert.Len(t, out.Stations[0].Program.FT, 14)
	assert.Nil(t, out.Stations[1].Program) // QRR has no schedule loaded
}

func TestServer_StationPrograms(t *testing.T) {
	f := newFixture(t, "20250110143000")

	var out struct {
		StationID string `json:"stationId"`
		Date      string `json:"date"`
		Programs  []struct {
			ProgID string `json:"progId"`
			FT     string `json:"ft"`
			TO     string `json:"to"`
		} `json:"programs"`
	}
	getJSON(t, f.srv.URL+"/api/radiko/stations/TBS/programs?date=20250110", &out)

	assert.Equal(t, "TBS", out.StationID)
	assert.Equal(t, "20250110", out.Date)
	require.Len(t, out.Programs, 3)
	for i, p := range out.Programs {
		assert.Len(t, p.FT, 14)
		assert.Len(t, p.TO, 14)
		if i > 0 {
			assert.Equal(t, out.Programs[i-1].TO, p.FT, "programs must be contiguous")
		}
	}
}

func TestServer_StationPrograms_BadDate(t *testing.T) {
	f := newFixture(t, "20250110143000")
	resp, err := http.Get(f.srv.URL + "/api/radiko/stations/TBS/programs?date=2025-01-10")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_StationPrograms_LazyFetch(t *testing.T) {
	f := newFixture(t, "20250110143000")

	var out struct {
		Programs []struct {
			Title string `json:"title"`
		} `json:"programs"`
	}
	// The 8th is inside the 7-day window but not cached: the server fetches
	// the single-station day feed on demand.
	getJSON(t, f.srv.URL+"/api/radiko/stations/TBS/programs?date=20250108", &out)
	require.Len(t, out.Programs, 1)
	assert.Equal(t, "lazy day", out.Programs[0].Title)
}

func TestServer_Play_UnknownStation(t *testing.T) {
	f := newFixture(t, "20250110143000")

	resp, err := http.Get(f.srv.URL + "/radiko/play/ZZZ")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "not in available stations")
}

func TestServer_Play_InvalidQuery(t *testing.T) {
	f := newFixture(t, "20250110143000")

	for _, q := range []string{
		"?ft=2025011013&to=20250110140000",
		"?ft=20250110130000",
		"?ft=20250110130000&to=20250110140000&seek=-5",
	} {
		resp, err := http.Get(f.srv.URL + "/radiko/play/TBS" + q)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestServer_Play_LiveStreamsAndCleansUp(t *testing.T) {
	f := newFixture(t, "20250110143000")

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/radiko/play/TBS", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/aac", resp.Header.Get("Content-Type"))

	buf := make([]byte, 64)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "ADTS")

	// Client disconnect must tear the session down.
	cancel()
	require.Eventually(t, func() bool { return f.registry.Active() == 0 },
		3*time.Second, 50*time.Millisecond)
}

func TestServer_Play_TimefreeSeekAdvancesFT(t *testing.T) {
	f := newFixture(t, "20250110180000")

	resp, err := http.Get(f.srv.URL + "/radiko/play/TBS?ft=20250110130000&to=20250110140000&seek=600")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	buf := make([]byte, 64)
	_, _ = resp.Body.Read(buf)
	assert.Equal(t, "20250110131000", f.upstream.lastFT.Load())
}

func TestServer_Play_RecoversAfterTokenExpiry(t *testing.T) {
	f := newFixture(t, "20250110143000")
	f.upstream.emptyFirst.Store(true)

	resp, err := http.Get(f.srv.URL + "/radiko/play/TBS")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, f.upstream.refreshCalls.Load())
}

func TestServer_PlaylistM3U(t *testing.T) {
	f := newFixture(t, "20250110143000")

	resp, err := http.Get(f.srv.URL + "/radiko/playlist.m3u")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), "#EXTM3U")
	assert.Contains(t, string(body), "/radiko/play/TBS")
	assert.Contains(t, string(body), "/radiko/play/QRR")
}

func TestServer_Healthz(t *testing.T) {
	f := newFixture(t, "20250110143000")

	var out map[string]any
	getJSON(t, f.srv.URL+"/healthz", &out)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "JP13", out["area"])
	assert.EqualValues(t, 2, out["stations"])
}
