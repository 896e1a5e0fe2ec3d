package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	speechRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_requests_total",
		Help: "Total number of speech requests",
	}, []string{"status", "format"})

	// Synthesis metrics
	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_synthesis_latency_seconds",
		Help:    "Full synthesis latency in seconds, measured inside the inference lock",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	firstAudioLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_first_audio_latency_seconds",
		Help:    "Time to first audio chunk in seconds for streamed responses",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Inference lock metrics
	inferenceQueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_gateway_inference_queue_wait_seconds",
		Help:    "Time spent waiting for the process-wide inference lock",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
	})

	activeInference = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tts_gateway_active_inference",
		Help: "Whether an inference is in flight (0 or 1)",
	})

	// Model lifecycle metrics
	modelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_model_loads_total",
		Help: "Total model load attempts",
	}, []string{"model", "status"})

	// Audio output metrics
	audioBytesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_audio_bytes_total",
		Help: "Total audio bytes written to clients",
	}, []string{"format"})

	transcodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_gateway_transcodes_total",
		Help: "Total ffmpeg transcode attempts",
	}, []string{"format", "status"})
)

// RecordRequest records one completed speech request.
func RecordRequest(status, format string) {
	speechRequests.WithLabelValues(status, format).Inc()
}

// ObserveSynthesisLatency records the locked-region duration of a buffered
// synthesis.
func ObserveSynthesisLatency(d time.Duration) {
	synthesisLatency.Observe(d.Seconds())
}

// ObserveFirstAudioLatency records time-to-first-audio for a stream.
func ObserveFirstAudioLatency(d time.Duration) {
	firstAudioLatency.Observe(d.Seconds())
}

// ObserveInferenceQueueWait records time spent queued at the inference lock.
func ObserveInferenceQueueWait(d time.Duration) {
	inferenceQueueWait.Observe(d.Seconds())
}

// SetInferenceActive flips the in-flight inference gauge.
func SetInferenceActive(active bool) {
	if active {
		activeInference.Set(1)
	} else {
		activeInference.Set(0)
	}
}

// RecordModelLoad records a model load attempt outcome.
func RecordModelLoad(model, status string) {
	modelLoads.WithLabelValues(model, status).Inc()
}

// AddAudioBytes counts audio bytes written to a client.
func AddAudioBytes(format string, n int) {
	audioBytesOut.WithLabelValues(format).Add(float64(n))
}

// RecordTranscode records an ffmpeg transcode outcome.
func RecordTranscode(format, status string) {
	transcodes.WithLabelValues(format, status).Inc()
}
