package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCrypto("encrypt_v2", time.Now(), nil)
	m.ObserveCrypto("decrypt_v2", time.Now(), errors.New("boom"))
	m.ObserveCodec("xmtp.org/text:1.0", "encode", nil)
	m.EnvelopeSent("v2")
	m.EnvelopeReceived("v1", errors.New("bad"))
	m.Throttled()

	if got := testutil.ToFloat64(m.CryptoOperations.WithLabelValues("encrypt_v2", ResultOK)); got != 1 {
		t.Fatalf("expected one ok encrypt, got %v", got)
	}
	if got := testutil.ToFloat64(m.CryptoOperations.WithLabelValues("decrypt_v2", ResultError)); got != 1 {
		t.Fatalf("expected one failed decrypt, got %v", got)
	}
	if got := testutil.ToFloat64(m.CodecOperations.WithLabelValues("xmtp.org/text:1.0", "encode", ResultOK)); got != 1 {
		t.Fatalf("expected one text encode, got %v", got)
	}
	if got := testutil.ToFloat64(m.EnvelopesReceived.WithLabelValues("v1", ResultError)); got != 1 {
		t.Fatalf("expected one failed receive, got %v", got)
	}
	if got := testutil.ToFloat64(m.PublishThrottled); got != 1 {
		t.Fatalf("expected one throttled publish, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCrypto("encrypt_v1", time.Now(), nil)
	m.ObserveCodec("x", "decode", nil)
	m.EnvelopeSent("v1")
	m.EnvelopeReceived("v1", nil)
	m.Throttled()
}
