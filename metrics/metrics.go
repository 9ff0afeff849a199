// Package metrics: client tarafı Prometheus metrikleri.
//
// Her metrik kendi registry'sine kaydedilir (global DefaultRegisterer değil);
// böylece testler ve birden fazla ChatSession birbirinin sayaçlarını kirletmez.
//
// Tüm metotlar nil receiver'a toleranslıdır: metrik kapalıyken servisler
// *Metrics yerine nil taşır ve hiçbir kontrol yapmadan çağırabilir.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric adları: stats komutu da bu sabitlerle okur.
const (
	NameRequests        = "mqvi_client_requests_total"
	NameRequestDuration = "mqvi_client_request_duration_seconds"
	NameRefreshes       = "mqvi_client_transcript_refreshes_total"
	NamePushEvents      = "mqvi_client_push_events_total"
	NameVoiceUploads    = "mqvi_client_voice_uploads_total"
	NamePlaybacks       = "mqvi_client_voice_playbacks_total"
	NameCallTransitions = "mqvi_client_call_transitions_total"
	NameWSReconnects    = "mqvi_client_ws_reconnects_total"
	NameTranscriptSize  = "mqvi_client_transcript_messages"
)

// Metrics, client'ın tüm Prometheus metriklerini tutar.
type Metrics struct {
	Registry *prometheus.Registry

	Requests        *prometheus.CounterVec   // method, outcome
	RequestDuration *prometheus.HistogramVec // method
	Refreshes       *prometheus.CounterVec   // outcome: changed|unchanged|failed
	PushEvents      *prometheus.CounterVec   // type
	VoiceUploads    *prometheus.CounterVec   // outcome
	Playbacks       *prometheus.CounterVec   // outcome
	CallTransitions *prometheus.CounterVec   // state
	WSReconnects    prometheus.Counter
	TranscriptSize  prometheus.Gauge
}

// New, ayrı bir registry üzerinde tüm metrikleri oluşturur ve kaydeder.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: NameRequests,
			Help: "Gateway requests by HTTP method and outcome",
		}, []string{"method", "outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    NameRequestDuration,
			Help:    "Gateway request latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms → ~10s
		}, []string{"method"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: NameRefreshes,
			Help: "Transcript refresh attempts by outcome",
		}, []string{"outcome"}),
		PushEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: NamePushEvents,
			Help: "Live push events received by type",
		}, []string{"type"}),
		VoiceUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: NameVoiceUploads,
			Help: "Voice message uploads by outcome",
		}, []string{"outcome"}),
		Playbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: NamePlaybacks,
			Help: "Voice message playbacks by outcome",
		}, []string{"outcome"}),
		CallTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: NameCallTransitions,
			Help: "Call state transitions by target state",
		}, []string{"state"}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: NameWSReconnects,
			Help: "Live push channel reconnect attempts",
		}),
		TranscriptSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: NameTranscriptSize,
			Help: "Messages in the active channel transcript",
		}),
	}
}

// ObserveRequest, tek bir gateway isteğinin sonucunu kaydeder.
func (m *Metrics) ObserveRequest(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, outcome).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveRefresh, refresh sonucunu kaydeder.
func (m *Metrics) ObserveRefresh(outcome string, size int) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
	if size >= 0 {
		m.TranscriptSize.Set(float64(size))
	}
}

// ObservePush, gelen push event'ini tipine göre sayar.
func (m *Metrics) ObservePush(eventType string) {
	if m == nil {
		return
	}
	m.PushEvents.WithLabelValues(eventType).Inc()
}

// ObserveUpload, sesli mesaj upload sonucunu kaydeder.
func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.VoiceUploads.WithLabelValues(outcome).Inc()
}

// ObservePlayback, oynatma sonucunu kaydeder.
func (m *Metrics) ObservePlayback(outcome string) {
	if m == nil {
		return
	}
	m.Playbacks.WithLabelValues(outcome).Inc()
}

// ObserveCallState, arama state geçişini kaydeder.
func (m *Metrics) ObserveCallState(state string) {
	if m == nil {
		return
	}
	m.CallTransitions.WithLabelValues(state).Inc()
}

// ObserveReconnect, WS yeniden bağlanma denemesini sayar.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.WSReconnects.Inc()
}

// Handler, registry'yi Prometheus text formatında sunan HTTP handler döner.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve, /metrics endpoint'ini addr üzerinde ctx iptal edilene kadar sunar.
// addr boşsa hiçbir şey yapmaz.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if m == nil || addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[metrics] shutdown error: %v", err)
		}
	}()

	log.Printf("[metrics] listening on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
