package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/relay"
	"github.com/mashiroka/radigw/internal/version"
)

type stationJSON struct {
	StationID string `json:"stationId"`
	Name      string `json:"name"`
	Region    string `json:"region"`
	Area      string `json:"area"`
}

type programJSON struct {
	ProgID string `json:"progId"`
	FT     string `json:"ft"`
	TO     string `json:"to"`
	Title  string `json:"title"`
	Pfm    string `json:"pfm"`
	Img    string `json:"img"`
}

func toProgramJSON(p catalog.Program) programJSON {
	return programJSON{
		ProgID: p.ID,
		FT:     airtime.Format14(p.FT),
		TO:     airtime.Format14(p.TO),
		Title:  p.Title,
		Pfm:    p.Pfm,
		Img:    p.Img,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Str("event", "http.encode_failed").Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintln(w, msg)
}

// digits reports whether v is exactly n ASCII digits.
func digits(v string, n int) bool {
	if len(v) != n {
		return false
	}
	for i := 0; i < n; i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// parsePlayQuery validates the optional ft/to/seek parameters.
func parsePlayQuery(r *http.Request) (relay.Request, error) {
	req := relay.Request{StationID: chi.URLParam(r, "stationId")}
	q := r.URL.Query()

	ftStr, toStr := q.Get("ft"), q.Get("to")
	if (ftStr == "") != (toStr == "") {
		return req, fmt.Errorf("%w: ft and to must be given together", ErrInvalidRequest)
	}
	if ftStr != "" {
		if !digits(ftStr, 14) || !digits(toStr, 14) {
			return req, fmt.Errorf("%w: ft and to must be 14 digits", ErrInvalidRequest)
		}
		ft, err := airtime.Parse(ftStr)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		to, err := airtime.Parse(toStr)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if err := airtime.CheckInterval(ft, to); err != nil {
			return req, err
		}
		req.FT, req.TO = ft, to
	}
	if seekStr := q.Get("seek"); seekStr != "" {
		seek, err := strconv.Atoi(seekStr)
		if err != nil || seek < 0 {
			return req, fmt.Errorf("%w: seek must be a non-negative integer", ErrInvalidRequest)
		}
		req.SeekSec = seek
	}
	return req, nil
}

// handlePlay realizes the audio relay: resolve, spawn, pipe.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	req, err := parsePlayQuery(r)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) || errors.Is(err, airtime.ErrInvalidInterval) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !s.store.HasStation(req.StationID) {
		s.writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("station %s not in available stations", req.StationID))
		return
	}

	sess := relay.NewSession(s.resolver, s.clock, req, relay.Options{
		FFmpegPath: s.cfg.FFmpegPath,
		PastDays:   s.cfg.TimeshiftPastDays,
	})
	if err := sess.Start(r.Context()); err != nil {
		s.logger.Error().
			Str("event", "relay.setup_failed").
			Str(log.FieldStationID, req.StationID).
			Str(log.FieldSessionID, sess.ID).
			Err(err).
			Msg("stream setup failed")
		s.writeError(w, http.StatusInternalServerError, "stream setup failed: "+err.Error())
		return
	}
	s.registry.Add(sess)
	defer func() {
		sess.Close()
		s.registry.Remove(sess)
	}()

	w.Header().Set("Content-Type", "audio/aac")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := sess.Stream(w); err != nil {
		// Mid-stream failure: the status line is long gone, the client
		// simply sees a truncated stream.
		s.logger.Warn().
			Str("event", "relay.stream_failed").
			Str(log.FieldSessionID, sess.ID).
			Err(err).
			Msg("stream ended with error")
	}
}

// handleStations serves the station directory.
func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	stations := s.store.Stations()
	out := make([]stationJSON, 0, len(stations))
	for _, st := range stations {
		out = append(out, stationJSON{
			StationID: st.ID,
			Name:      st.Name,
			Region:    st.RegionName,
			Area:      st.AreaName,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stations": out})
}

// handleStationsWithProgram adds the on-air program per station; null when
// the catalog has no answer.
func (s *Server) handleStationsWithProgram(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		stationJSON
		Program *programJSON `json:"program"`
	}
	now := s.clock.BroadcastNow()
	stations := s.store.Stations()
	out := make([]entry, 0, len(stations))
	for _, st := range stations {
		e := entry{stationJSON: stationJSON{
			StationID: st.ID,
			Name:      st.Name,
			Region:    st.RegionName,
			Area:      st.AreaName,
		}}
		if p, err := s.store.FindCurrent(st.ID, now); err == nil {
			pj := toProgramJSON(p)
			e.Program = &pj
		}
		out = append(out, e)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stations": out})
}

// handleStationPrograms lists one broadcast day, lazily fetching it when
// the cached window misses but the date is still shiftable.
func (s *Server) handleStationPrograms(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationId")
	dateStr := r.URL.Query().Get("date")
	if !digits(dateStr, 8) {
		s.writeError(w, http.StatusBadRequest, "date must be 8 digits (yyyymmdd)")
		return
	}
	date, err := airtime.Parse(dateStr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.store.HasStation(stationID) {
		s.writeError(w, http.StatusNotFound,
			fmt.Sprintf("station %s not in available stations", stationID))
		return
	}

	progs := s.store.ListForDay(stationID, date)
	if len(progs) == 0 && s.withinShiftWindow(date) {
		if err := s.fetcher.FetchStation(r.Context(), stationID, date); err != nil {
			s.logger.Warn().
				Str("event", "api.lazy_fetch_failed").
				Str(log.FieldStationID, stationID).
				Err(err).
				Msg("lazy day fetch failed")
		} else {
			progs = s.store.ListForDay(stationID, date)
		}
	}

	out := make([]programJSON, 0, len(progs))
	for _, p := range progs {
		out = append(out, toProgramJSON(p))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"stationId": stationID,
		"date":      dateStr,
		"programs":  out,
	})
}

func (s *Server) withinShiftWindow(date time.Time) bool {
	today := s.clock.BroadcastDate()
	earliest := today.AddDate(0, 0, -s.cfg.TimeshiftPastDays)
	latest := today.AddDate(0, 0, s.cfg.TimeshiftFutureDays)
	return !date.Before(earliest) && !date.After(latest)
}

// handlePlaylistM3U exports the station directory as an #EXTM3U playlist
// pointing back at the relay, for direct player import.
func (s *Server) handlePlaylistM3U(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
	fmt.Fprintln(w, "#EXTM3U")
	for _, st := range s.store.Stations() {
		fmt.Fprintf(w, "#EXTINF:-1 tvg-id=%q tvg-logo=%q group-title=%q,%s\n",
			st.ID, st.LogoURL, st.RegionName, st.Name)
		fmt.Fprintf(w, "http://%s/radiko/play/%s\n", r.Host, st.ID)
	}
}

// handleLogo serves the cached station logo, fetching it on first use.
func (s *Server) handleLogo(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationId")
	st, err := s.store.Station(stationID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown station "+stationID)
		return
	}
	if !s.logos.Enabled() {
		// No disk cache: just point the client at the upstream asset.
		if st.LogoURL == "" {
			s.writeError(w, http.StatusNotFound, "no logo for "+stationID)
			return
		}
		http.Redirect(w, r, st.LogoURL, http.StatusFound)
		return
	}
	path, err := s.logos.Get(r.Context(), stationID, st.LogoURL)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "logo unavailable: "+err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

// handleHealthz reports daemon health and the last refresh run.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        version.Version,
		"uptime_sec":     int(time.Since(s.started) / time.Second),
		"area":           s.resolver.AreaID(),
		"premium":        s.resolver.PremiumActive(),
		"stations":       len(s.store.Stations()),
		"programs":       s.store.Count(),
		"active_streams": s.registry.Active(),
		"last_refresh":   s.fetcher.Status(),
	})
}
