// Package services: TranscriptService, aktif kanalın transcript senkronizasyonu.
//
// İki kaynaktan beslenir:
//   - Periyodik refresh: her Interval'de GET /api/messages; snapshot
//     öncekiyle yapısal olarak farklıysa bütünüyle değiştirilir
//   - Push event: {type:"message", action:"new"} aktif kanal içinse eklenir
//
// Başarısız refresh state'e dokunmaz ve observer'a bildirilmez; periyodik
// döngüde hata sessizdir, manuel çağıran taraf hatayı kendisi gösterir.
//
// Goroutine pattern: time.NewTicker + select + stopCh (pkg/cache ile aynı).
package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/metrics"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/repository"
	"github.com/akinalp/mqvi-client/ws"
)

// storeTimeout, yerel cache yazma/okuma üst sınırı.
const storeTimeout = 5 * time.Second

// TranscriptService, tek bir kanalın transcript'ini senkron tutar.
type TranscriptService interface {
	Channel() string
	Transcript() models.Transcript

	// Refresh, tek bir fetch yapar. Hata durumunda state değişmez.
	Refresh(ctx context.Context) error

	// HandlePushEvent, ws.Hub aboneliğinden gelen event'leri işler.
	HandlePushEvent(event ws.PushEvent)

	// Start, ilk refresh'i hemen yapar ve periyodik döngüyü başlatır.
	// Tekrar çağrılırsa no-op.
	Start()

	// Stop, döngüyü durdurur ve goroutine'in çıkmasını bekler.
	// Stop döndükten sonra hiçbir tick çalışmaz. Birden fazla çağrılabilir.
	Stop()
}

// TranscriptConfig, TranscriptService ayarları.
type TranscriptConfig struct {
	Channel  string
	Token    string
	Limit    int
	Interval time.Duration
}

type transcriptService struct {
	gw       gateway.Gateway
	store    repository.TranscriptRepository // nil olabilir: cache kapalı
	observer Observer
	metrics  *metrics.Metrics
	cfg      TranscriptConfig

	mu         sync.Mutex
	current    models.Transcript
	issued     uint64 // başlatılan refresh sayısı
	appliedSeq uint64 // state'e uygulanan en yeni refresh'in sırası

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewTranscriptService, constructor.
// store nil ise yerel cache kullanılmaz.
func NewTranscriptService(
	gw gateway.Gateway,
	store repository.TranscriptRepository,
	observer Observer,
	m *metrics.Metrics,
	cfg TranscriptConfig,
) TranscriptService {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	return &transcriptService{
		gw:       gw,
		store:    store,
		observer: observerOrNop(observer),
		metrics:  m,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *transcriptService) Channel() string {
	return s.cfg.Channel
}

func (s *transcriptService) Transcript() models.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *transcriptService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	q := url.Values{}
	q.Set("channel", s.cfg.Channel)
	q.Set("limit", strconv.Itoa(s.cfg.Limit))

	raw, err := s.gw.Send(ctx, http.MethodGet, "/api/messages?"+q.Encode(), nil, s.cfg.Token)
	if err != nil {
		s.metrics.ObserveRefresh("failed", -1)
		return err
	}

	var resp struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := gateway.Decode(raw, &resp); err != nil {
		s.metrics.ObserveRefresh("failed", -1)
		return err
	}

	msgs, skipped := models.ParseMessages(resp.Messages)
	if skipped > 0 {
		log.Printf("[sync] channel=%s skipped %d malformed message records", s.cfg.Channel, skipped)
	}
	fresh := models.Normalize(msgs)

	s.mu.Lock()
	// Daha yeni bir refresh zaten uygulandıysa bu eski yanıttır.
	if seq < s.appliedSeq {
		s.mu.Unlock()
		s.metrics.ObserveRefresh("stale", -1)
		return nil
	}
	s.appliedSeq = seq

	if s.current.Equal(fresh) {
		size := len(s.current)
		s.mu.Unlock()
		s.metrics.ObserveRefresh("unchanged", size)
		return nil
	}

	appended := len(fresh) > len(s.current)
	s.current = fresh
	snapshot := fresh.Clone()
	s.mu.Unlock()

	s.metrics.ObserveRefresh("changed", len(snapshot))
	s.persistSnapshot(snapshot)
	s.observer.OnTranscript(s.cfg.Channel, snapshot, appended)
	return nil
}

func (s *transcriptService) HandlePushEvent(event ws.PushEvent) {
	if !event.IsNewMessage() || event.Channel != s.cfg.Channel {
		return
	}

	msg := event.Message()

	s.mu.Lock()
	next, added := s.current.Append(msg)
	if !added {
		s.mu.Unlock()
		return
	}
	s.current = next
	snapshot := next.Clone()
	s.mu.Unlock()

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := s.store.Append(ctx, msg); err != nil {
			log.Printf("[sync] cache append failed channel=%s id=%s: %v", s.cfg.Channel, msg.ID, err)
		}
	}

	s.observer.OnTranscript(s.cfg.Channel, snapshot, true)
}

func (s *transcriptService) Start() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true

	s.seedFromStore()

	log.Printf("[sync] starting channel=%s interval=%s", s.cfg.Channel, s.cfg.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(s.doneCh)
		defer cancel()

		// Stop beklerken uçuştaki isteği iptal et
		go func() {
			select {
			case <-s.stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		s.tick(ctx)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-s.stopCh:
				log.Printf("[sync] stopped channel=%s", s.cfg.Channel)
				return
			}
		}
	}()
}

func (s *transcriptService) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)

	if s.started {
		<-s.doneCh
	}
}

// tick, periyodik refresh. Hatalar sadece loglanır, kullanıcıya gösterilmez.
func (s *transcriptService) tick(ctx context.Context) {
	select {
	case <-s.stopCh:
		return
	default:
	}

	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[sync] refresh failed channel=%s: %v", s.cfg.Channel, err)
	}
}

// seedFromStore, ağdan cevap gelmeden önce son cache'lenmiş snapshot'ı gösterir.
func (s *transcriptService) seedFromStore() {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	cached, err := s.store.GetByChannel(ctx, s.cfg.Channel)
	if err != nil {
		log.Printf("[sync] cache read failed channel=%s: %v", s.cfg.Channel, err)
		return
	}
	if len(cached) == 0 {
		return
	}

	s.mu.Lock()
	if len(s.current) > 0 {
		s.mu.Unlock()
		return
	}
	s.current = models.Normalize(cached)
	snapshot := s.current.Clone()
	s.mu.Unlock()

	s.observer.OnTranscript(s.cfg.Channel, snapshot, false)
}

func (s *transcriptService) persistSnapshot(snapshot models.Transcript) {
	if s.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.store.ReplaceChannel(ctx, s.cfg.Channel, snapshot); err != nil {
		log.Printf("[sync] cache write failed channel=%s: %v", s.cfg.Channel, err)
	}
}
