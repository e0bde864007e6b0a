package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_active",
		Help: "Currently open downstream websocket connections",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_connections_total",
		Help: "Total downstream connections accepted",
	})

	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_connections_rejected_total",
		Help: "Connections refused at admission (capacity or origin)",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_sessions_active",
		Help: "Sessions created and not yet ended",
	})

	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_sessions_evicted_total",
		Help: "Ended sessions removed by the idle janitor",
	})

	AudioFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_frames_received_total",
		Help: "PCM frames received from clients",
	})

	AudioFramesActive = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_frames_active_total",
		Help: "PCM frames whose RMS energy exceeded the activity threshold",
	})

	AudioFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_frames_dropped_total",
		Help: "PCM frames dropped because no upstream session was connected",
	})

	Transcripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_transcripts_total",
		Help: "Transcript events by finality",
	}, []string{"final"})

	RequirementsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_requirements_detected_total",
		Help: "Requirements extracted by the upstream model",
	}, []string{"component_type"})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_tool_calls_total",
		Help: "Upstream tool invocations by tool and outcome",
	}, []string{"tool", "result"})

	UpstreamTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_state_transitions_total",
		Help: "Live session client state changes",
	}, []string{"state"})

	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_duration_seconds",
		Help:    "Code generation latency by backend",
		Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 120},
	}, []string{"engine"})

	GenerationTTFC = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_first_chunk_seconds",
		Help:    "Time to first streamed chunk",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"engine"})

	GenerationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_errors_total",
		Help: "Failed generation calls by backend",
	}, []string{"engine"})

	DownstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_downstream_errors_total",
		Help: "Error messages sent to clients by code",
	}, []string{"code"})
)
