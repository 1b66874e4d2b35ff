package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamStartTotal tracks stream session start outcomes.
	StreamStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radigw_stream_start_total",
		Help: "Total number of stream session starts by mode and result",
	}, []string{"mode", "result"})

	// StreamActive tracks the number of currently running sessions.
	StreamActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radigw_stream_active",
		Help: "Number of currently active stream sessions",
	})

	// StreamBytesTotal counts relayed audio bytes.
	StreamBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radigw_stream_bytes_total",
		Help: "Total number of audio bytes relayed to clients",
	})

	// NowPlayingPushTotal counts now-playing state pushes to the host player.
	NowPlayingPushTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radigw_nowplaying_push_total",
		Help: "Total number of now-playing pushes to the host player",
	})
)

// IncStreamStart records a session start outcome.
func IncStreamStart(mode string, success bool) {
	StreamStartTotal.WithLabelValues(mode, resultLabel(success)).Inc()
}

// AddStreamBytes counts relayed bytes.
func AddStreamBytes(n int64) {
	if n > 0 {
		StreamBytesTotal.Add(float64(n))
	}
}

// SessionStarted adjusts the active-session gauge upward.
func SessionStarted() {
	StreamActive.Inc()
}

// SessionEnded adjusts the active-session gauge downward.
func SessionEnded() {
	StreamActive.Dec()
}

// IncNowPlayingPush records one push to the host player.
func IncNowPlayingPush() {
	NowPlayingPushTotal.Inc()
}
