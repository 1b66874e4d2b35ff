package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/config"
	"github.com/mashiroka/radigw/internal/relay"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := airtime.Parse(s)
	require.NoError(t, err)
	return ts
}

func testStore(t *testing.T) *catalog.Store {
	t.Helper()
	store := catalog.NewStore()
	store.SetStations([]catalog.Station{
		{ID: "TBS", Name: "TBSラジオ", RegionName: "関東", AreaID: "JP13",
			BannerURL: "http://img/tbs_banner.png", LogoURL: "http://img/tbs_logo.png",
			TimeFree: true},
		{ID: "QRR", Name: "文化放送", RegionName: "関東", AreaID: "JP13",
			LogoURL: "http://img/qrr_logo.png"},
		{ID: "MBS", Name: "MBSラジオ", RegionName: "関西", AreaID: "JP27",
			LogoURL: "http://img/mbs_logo.png", TimeFree: true},
	})
	progs := []catalog.Program{
		{ID: "TBS_1", StationID: "TBS",
			FT: mustParse(t, "20250110050000"), TO: mustParse(t, "20250110130000"),
			Title: "morning", Pfm: "Alice", Img: "http://img/morning.png"},
		{ID: "TBS_2", StationID: "TBS",
			FT: mustParse(t, "20250110130000"), TO: mustParse(t, "20250110150000"),
			Title: "afternoon", Pfm: "Bob"},
		{ID: "TBS_gap", StationID: "TBS",
			FT: mustParse(t, "20250110150000"), TO: mustParse(t, "20250110160000")},
		{ID: "TBS_3", StationID: "TBS",
			FT: mustParse(t, "20250110160000"), TO: mustParse(t, "20250110290000"),
			Title: "evening"},
	}
	for _, p := range progs {
		require.NoError(t, store.UpsertProgram(p))
	}
	return store
}

type pushRecorder struct {
	pushes []NowPlaying
}

func (r *pushRecorder) push(np NowPlaying) { r.pushes = append(r.pushes, np) }

func testAdapter(t *testing.T, nowStr, aaType string, rec *pushRecorder) *Adapter {
	t.Helper()
	now := mustParse(t, nowStr)
	opts := Options{
		Store:  testStore(t),
		Clock:  airtime.NewClockWith(func() time.Time { return now }, 0),
		AAType: aaType,
	}
	if rec != nil {
		opts.Push = rec.push
	}
	return New(opts)
}

func TestLookup(t *testing.T) {
	assert.Equal(t, "Live radio", Lookup("browse.live.title"))
	assert.Equal(t, "no.such.key", Lookup("no.such.key"))
}

func TestURIRoundTrip(t *testing.T) {
	a := testAdapter(t, "20250110143000", "", nil)

	target, labels, err := a.ExplodeURI(LiveURI("TBS"))
	require.NoError(t, err)
	assert.True(t, target.Live())
	assert.Equal(t, "TBS", target.StationID)
	assert.Equal(t, "TBSラジオ", labels.Station)

	ft := mustParse(t, "20250110130000")
	to := mustParse(t, "20250110150000")
	target, labels, err = a.ExplodeURI(TimefreeURI("TBS", ft, to) + "?seek=90")
	require.NoError(t, err)
	assert.False(t, target.Live())
	assert.True(t, target.FT.Equal(ft))
	assert.True(t, target.TO.Equal(to))
	assert.Equal(t, 90, target.SeekSec)
	assert.Equal(t, "afternoon", labels.Program)
}

func TestExplodeURI_BroadcastDayHours(t *testing.T) {
	a := testAdapter(t, "20250111060000", "", nil)

	// Hours 24-29 belong to the previous broadcast day.
	target, _, err := a.ExplodeURI("radigw://timefree/TBS/20250110250000/20250110260000")
	require.NoError(t, err)
	assert.Equal(t, "20250111010000", airtime.Format14(target.FT))
}

func TestExplodeURI_Rejects(t *testing.T) {
	a := testAdapter(t, "20250110143000", "", nil)

	for _, uri := range []string{
		"http://live/TBS",
		"radigw://live/",
		"radigw://timefree/TBS/20250110130000",
		"radigw://timefree/TBS/20250110150000/20250110130000", // to before ft
		"radigw://live/TBS?seek=-1",
		"radigw://queue/TBS",
	} {
		_, _, err := a.ExplodeURI(uri)
		assert.ErrorIs(t, err, ErrBadURI, uri)
	}
}

func TestBrowseLive_GroupsAndArt(t *testing.T) {
	a := testAdapter(t, "20250110143000", config.AATypeProgramThenLogo, nil)

	groups := a.BrowseLive()
	require.Len(t, groups, 2)
	assert.Equal(t, "関東", groups[0].Region)
	assert.Equal(t, "関西", groups[1].Region)
	require.Len(t, groups[0].Items, 2)

	tbs := groups[0].Items[0]
	assert.Equal(t, LiveURI("TBS"), tbs.URI)
	assert.Equal(t, "afternoon", tbs.Sub)
	// afternoon has no image: policy falls back to the station logo.
	assert.Equal(t, "http://img/tbs_logo.png", tbs.AlbumArt)
}

func TestBrowseLive_BannerPolicy(t *testing.T) {
	a := testAdapter(t, "20250110060000", config.AATypeBanner, nil)
	groups := a.BrowseLive()
	assert.Equal(t, "http://img/tbs_banner.png", groups[0].Items[0].AlbumArt)
}

func TestBrowseTimefree_FiltersShiftable(t *testing.T) {
	a := testAdapter(t, "20250110143000", "", nil)

	groups := a.BrowseTimefree()
	var ids []string
	for _, g := range groups {
		for _, it := range g.Items {
			ids = append(ids, it.StationID)
			assert.Empty(t, it.URI, "drill-down items are not directly playable")
		}
	}
	assert.Equal(t, []string{"TBS", "MBS"}, ids)
}

func TestBrowseStationDay(t *testing.T) {
	a := testAdapter(t, "20250110143000", config.AATypeProgramThenLogo, nil)

	items := a.BrowseStationDay("TBS", mustParse(t, "20250110"))
	// Only morning and afternoon have started by 14:30.
	require.Len(t, items, 2)
	assert.Equal(t, "morning", items[0].Label)
	assert.Equal(t, "http://img/morning.png", items[0].AlbumArt)
	assert.Equal(t, TimefreeURI("TBS",
		mustParse(t, "20250110130000"), mustParse(t, "20250110150000")), items[1].URI)
}

func TestBrowseStationDay_FillerLabel(t *testing.T) {
	a := testAdapter(t, "20250110170000", "", nil)

	items := a.BrowseStationDay("TBS", mustParse(t, "20250110"))
	require.Len(t, items, 4)
	assert.Equal(t, Lookup("browse.filler.label"), items[2].Label)
}

func TestTicker_LivePushesOnProgramChange(t *testing.T) {
	rec := &pushRecorder{}
	now := mustParse(t, "20250110143000")
	a := New(Options{
		Store: testStore(t),
		Clock: airtime.NewClockWith(func() time.Time { return now }, 0),
		Push:  rec.push,
	})
	defer a.StopTicker()

	require.NoError(t, a.StartTicker("TBS", relay.ModeLive))
	require.Len(t, rec.pushes, 1)
	np := rec.pushes[0]
	assert.Equal(t, "afternoon", np.Title)
	assert.Equal(t, "Bob", np.Artist)
	assert.Equal(t, 2*60*60, np.DurationSec)
	assert.Equal(t, int64(90*60*1000), np.SeekMS) // 13:00 → 14:30

	// Same program still on air: tick is a no-op.
	a.tick()
	assert.Len(t, rec.pushes, 1)

	// Crossing into the next program pushes again.
	now = mustParse(t, "20250110150500")
	a.tick()
	require.Len(t, rec.pushes, 2)
	assert.Equal(t, Lookup("nowplaying.dead_air"), rec.pushes[1].Title)
}

func TestTicker_StopsWhenNoStreamActive(t *testing.T) {
	rec := &pushRecorder{}
	now := mustParse(t, "20250110143000")
	a := New(Options{
		Store:    testStore(t),
		Clock:    airtime.NewClockWith(func() time.Time { return now }, 0),
		Registry: relay.NewRegistry(),
		Push:     rec.push,
	})

	require.NoError(t, a.StartTicker("TBS", relay.ModeLive))
	// Registry is empty: the first tick shuts the ticker down unpushed.
	assert.Empty(t, rec.pushes)
	a.mu.Lock()
	assert.Nil(t, a.cron)
	a.mu.Unlock()
}

func TestTicker_TimefreeDoesNotSchedule(t *testing.T) {
	rec := &pushRecorder{}
	a := testAdapter(t, "20250110180000", "", rec)

	require.NoError(t, a.StartTicker("TBS", relay.ModeTimefree))
	assert.Empty(t, rec.pushes)
	a.mu.Lock()
	assert.Nil(t, a.cron)
	a.mu.Unlock()
}

func TestPushTimefree(t *testing.T) {
	rec := &pushRecorder{}
	a := testAdapter(t, "20250110180000", "", rec)

	ft := mustParse(t, "20250110130000")
	to := mustParse(t, "20250110150000")
	a.PushTimefree("TBS", ft, to, 600)

	require.Len(t, rec.pushes, 1)
	np := rec.pushes[0]
	assert.Equal(t, "afternoon", np.Title)
	assert.Equal(t, 7200, np.DurationSec)
	assert.Equal(t, int64(600000), np.SeekMS)
}
