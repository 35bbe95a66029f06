package wschannel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fintrack_stream_connects_total",
		Help: "Total sync stream connections established",
	})

	streamFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_stream_frames_total",
			Help: "Total sync stream frames received by type",
		},
		[]string{"type"},
	)

	streamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fintrack_stream_reconnects_total",
		Help: "Total sync stream reconnect attempts",
	})
)
