// Package api binds the relay and the catalog to the local HTTP surface.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/mashiroka/radigw/internal/airtime"
	"github.com/mashiroka/radigw/internal/catalog"
	"github.com/mashiroka/radigw/internal/config"
	"github.com/mashiroka/radigw/internal/jobs"
	"github.com/mashiroka/radigw/internal/log"
	"github.com/mashiroka/radigw/internal/logocache"
	"github.com/mashiroka/radigw/internal/relay"
)

// ErrInvalidRequest reports a malformed query: date not 8 digits, ft/to
// not 14 digits, or a negative seek.
var ErrInvalidRequest = errors.New("api: invalid request")

// Upstream is what the server needs from the radiko client: playlist
// resolution for sessions plus session identity for health reporting.
type Upstream interface {
	relay.Resolver
	AreaID() string
	PremiumActive() bool
}

// apiRateLimit bounds the JSON catalog surface per client IP. The audio
// relay subtree is exempt: one long-lived request per listener is the
// normal case.
const (
	apiRateLimit  = 60
	apiRateWindow = time.Minute
)

// Server is the relay's HTTP surface.
type Server struct {
	cfg      config.Config
	store    *catalog.Store
	fetcher  *jobs.Fetcher
	resolver Upstream
	clock    *airtime.Clock
	registry *relay.Registry
	logos    *logocache.Cache
	logger   zerolog.Logger
	started  time.Time
}

// New wires the HTTP server around its collaborators.
func New(cfg config.Config, store *catalog.Store, fetcher *jobs.Fetcher, resolver Upstream, clock *airtime.Clock, registry *relay.Registry, logos *logocache.Cache) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		resolver: resolver,
		clock:    clock,
		registry: registry,
		logos:    logos,
		logger:   log.WithComponent("api"),
		started:  time.Now(),
	}
}

// Registry exposes the session registry for shutdown wiring.
func (s *Server) Registry() *relay.Registry {
	return s.registry
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/radiko", func(r chi.Router) {
		r.Get("/play/{stationId}", s.handlePlay)
		r.Get("/playlist.m3u", s.handlePlaylistM3U)
		r.Get("/logo/{stationId}", s.handleLogo)
	})

	r.Route("/api/radiko", func(r chi.Router) {
		r.Use(httprate.Limit(
			apiRateLimit,
			apiRateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Get("/stations", s.handleStations)
		r.Get("/stations/with-program", s.handleStationsWithProgram)
		r.Get("/stations/{stationId}/programs", s.handleStationPrograms)
	})

	return r
}

// requestLogger emits one line per request, skipping the chatty relay
// stream which logs its own lifecycle.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := chimw.GetReqID(r.Context())
		ctx := log.ContextWithRequestID(r.Context(), reqID)

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Debug().
			Str("event", "http.request").
			Str(log.FieldRequestID, reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}
