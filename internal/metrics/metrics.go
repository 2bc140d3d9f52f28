// Package metrics exposes the client's Prometheus counters.
//
// All methods are safe on a nil *Metrics, so components can be built
// without a registry (tests, --metrics=false).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rscreen"

// Metrics is the client's metric set.
type Metrics struct {
	fragments      *prometheus.CounterVec
	frames         prometheus.Counter
	frameBytes     prometheus.Histogram
	decodeFailures *prometheus.CounterVec
	authSends      *prometheus.CounterVec
	sendFailures   *prometheus.CounterVec
	inputEvents    *prometheus.CounterVec
	overwrites     prometheus.Counter
	viewers        prometheus.Gauge
}

// New registers the metric set with reg. Pass prometheus.NewRegistry() in
// tests; registering twice with one registry panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fragments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Frame datagrams received, by reassembly outcome",
		}, []string{"outcome"}),

		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_completed_total",
			Help:      "Frames fully reassembled",
		}),

		frameBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_size_bytes",
			Help:      "Size of completed frames",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10), // 16 KB .. 8 MB
		}),

		decodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_decode_failures_total",
			Help:      "Completed frames that could not be decoded",
		}, []string{"reason"}),

		authSends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_sends_total",
			Help:      "Device key datagrams sent to the host",
		}, []string{"reason"}),

		sendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound datagrams the socket refused",
		}, []string{"kind"}),

		inputEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_events_total",
			Help:      "Input packets sent to the host, by type",
		}, []string{"type"}),

		overwrites: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_overwrites_total",
			Help:      "Frames replaced in the mailbox before being presented",
		}),

		viewers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers_connected",
			Help:      "Connected viewer websockets",
		}),
	}
}

func (m *Metrics) Fragment(outcome string) {
	if m == nil {
		return
	}
	m.fragments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FrameCompleted(size int) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.frameBytes.Observe(float64(size))
}

func (m *Metrics) DecodeFailed(reason string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(reason).Inc()
}

// AuthSent counts a device key send; reason is "start" or "keepalive".
func (m *Metrics) AuthSent(reason string) {
	if m == nil {
		return
	}
	m.authSends.WithLabelValues(reason).Inc()
}

// SendFailed counts a swallowed send error; kind is "auth" or "input".
func (m *Metrics) SendFailed(kind string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) InputSent(typ string) {
	if m == nil {
		return
	}
	m.inputEvents.WithLabelValues(typ).Inc()
}

func (m *Metrics) MailboxOverwritten() {
	if m == nil {
		return
	}
	m.overwrites.Inc()
}

func (m *Metrics) ViewerConnected() {
	if m == nil {
		return
	}
	m.viewers.Inc()
}

func (m *Metrics) ViewerDisconnected() {
	if m == nil {
		return
	}
	m.viewers.Dec()
}
