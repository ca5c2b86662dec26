package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	CryptoOperations  *prometheus.CounterVec
	CryptoDuration    *prometheus.HistogramVec
	CodecOperations   *prometheus.CounterVec
	EnvelopesSent     *prometheus.CounterVec
	EnvelopesReceived *prometheus.CounterVec
	PublishThrottled  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CryptoOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmtp_crypto_operations_total",
				Help: "Envelope encryption and decryption operations",
			},
			[]string{"op", "result"},
		),
		CryptoDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xmtp_crypto_operation_duration_seconds",
				Help:    "Latency of envelope encryption and decryption",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"op"},
		),
		CodecOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmtp_codec_operations_total",
				Help: "Content encode and decode operations by content type",
			},
			[]string{"content_type", "op", "result"},
		),
		EnvelopesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmtp_envelopes_sent_total",
				Help: "Envelopes handed to the transport",
			},
			[]string{"kind"},
		),
		EnvelopesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmtp_envelopes_received_total",
				Help: "Envelopes decoded from the transport",
			},
			[]string{"kind", "result"},
		),
		PublishThrottled: f.NewCounter(
			prometheus.CounterOpts{
				Name: "xmtp_publish_throttled_total",
				Help: "Publishes delayed by the per-topic rate limiter",
			},
		),
	}
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

func (m *Metrics) ObserveCrypto(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.CryptoOperations.WithLabelValues(op, result(err)).Inc()
	m.CryptoDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveCodec(contentType, op string, err error) {
	if m == nil {
		return
	}
	m.CodecOperations.WithLabelValues(contentType, op, result(err)).Inc()
}

func (m *Metrics) EnvelopeSent(kind string) {
	if m == nil {
		return
	}
	m.EnvelopesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) EnvelopeReceived(kind string, err error) {
	if m == nil {
		return
	}
	m.EnvelopesReceived.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.PublishThrottled.Inc()
}
