// Package services: ChatSession, tek bir kanala bağlı oturumun sahibi.
//
// Bir ChatSession açıldığında:
//   - MediaSessionManager oluşturulur ve ses/arama servisleri arasında paylaşılır
//   - TranscriptService başlatılır (ilk refresh + periyodik döngü)
//   - Hub'a "message" ve "webrtc" abonelikleri eklenir
//
// Close tüm bunları ters sırada bırakır: abonelikler iptal edilir, döngü
// durdurulur, kayıt/oynatma/arama kapatılır. Close birden fazla çağrılabilir.
package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/media"
	"github.com/akinalp/mqvi-client/metrics"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/pkg/ratelimit"
	"github.com/akinalp/mqvi-client/repository"
	"github.com/akinalp/mqvi-client/rtc"
	"github.com/akinalp/mqvi-client/ws"
)

// ChatSessionDeps, oturumun collaborator'ları. Hub ve Store nil olabilir.
type ChatSessionDeps struct {
	Gateway     gateway.Gateway
	Store       repository.TranscriptRepository
	Hub         *ws.Hub
	Peers       rtc.Factory
	Permission  media.PermissionProvider
	NewRecorder media.RecorderFactory
	NewPlayer   media.PlayerFactory
	Throttle    *ratelimit.SendThrottle
	Observer    Observer
	Metrics     *metrics.Metrics
}

// ChatSessionConfig, oturum ayarları.
type ChatSessionConfig struct {
	Channel   string
	Token     string
	LocalUser string

	SyncLimit    int
	SyncInterval time.Duration

	DataDir       string
	VoiceCacheTTL time.Duration

	ICEServers      []string
	DisconnectGrace time.Duration
}

// ChatSession, kanal oturumunun servislerini bir arada tutar.
type ChatSession struct {
	Transcript TranscriptService
	Messages   MessageService
	Voice      VoiceService
	Calls      CallService

	cfg      ChatSessionConfig
	hub      *ws.Hub
	sessions *MediaSessionManager
	observer Observer

	mu          sync.Mutex
	opened      bool
	unsubscribe []func()
	closeOnce   sync.Once
}

// NewChatSession, servisleri oluşturur ama hiçbir şeyi başlatmaz.
func NewChatSession(deps ChatSessionDeps, cfg ChatSessionConfig) (*ChatSession, error) {
	if cfg.Channel == "" {
		return nil, fmt.Errorf("%w: channel is required", pkg.ErrBadRequest)
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", pkg.ErrBadRequest)
	}

	observer := observerOrNop(deps.Observer)
	sessions := NewMediaSessionManager()

	transcript := NewTranscriptService(deps.Gateway, deps.Store, observer, deps.Metrics, TranscriptConfig{
		Channel:  cfg.Channel,
		Token:    cfg.Token,
		Limit:    cfg.SyncLimit,
		Interval: cfg.SyncInterval,
	})

	voice := NewVoiceService(VoiceDeps{
		Gateway:     deps.Gateway,
		Sessions:    sessions,
		Permission:  deps.Permission,
		NewRecorder: deps.NewRecorder,
		NewPlayer:   deps.NewPlayer,
		Refresher:   transcript,
		Observer:    observer,
		Metrics:     deps.Metrics,
	}, VoiceConfig{
		Channel:  cfg.Channel,
		Token:    cfg.Token,
		DataDir:  cfg.DataDir,
		CacheTTL: cfg.VoiceCacheTTL,
	})

	calls := NewCallService(CallDeps{
		Gateway:  deps.Gateway,
		Sessions: sessions,
		Peers:    deps.Peers,
		Observer: observer,
		Metrics:  deps.Metrics,
	}, CallConfig{
		LocalUser:       cfg.LocalUser,
		Channel:         cfg.Channel,
		Token:           cfg.Token,
		ICEServers:      cfg.ICEServers,
		DisconnectGrace: cfg.DisconnectGrace,
	})

	return &ChatSession{
		Transcript: transcript,
		Messages:   NewMessageService(deps.Gateway, transcript, deps.Throttle, cfg.Channel, cfg.Token),
		Voice:      voice,
		Calls:      calls,
		cfg:        cfg,
		hub:        deps.Hub,
		sessions:   sessions,
		observer:   observer,
	}, nil
}

// Channel, oturumun bağlı olduğu kanal.
func (s *ChatSession) Channel() string { return s.cfg.Channel }

// LocalUser, yerel kullanıcı adı.
func (s *ChatSession) LocalUser() string { return s.cfg.LocalUser }

// Sessions, paylaşılan MediaSessionManager.
func (s *ChatSession) Sessions() *MediaSessionManager { return s.sessions }

// Open, push aboneliklerini ekler ve transcript döngüsünü başlatır.
// Hub verilmişse Run goroutine'i önceden başlatılmış olmalıdır.
func (s *ChatSession) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return
	}
	s.opened = true

	if s.hub != nil {
		s.unsubscribe = append(s.unsubscribe,
			s.hub.Subscribe(ws.TypeMessage, s.Transcript),
			s.hub.Subscribe(ws.TypeWebRTC, s.Calls),
		)
	}
	s.Transcript.Start()
	log.Printf("[session] opened channel=%s user=%s", s.cfg.Channel, s.cfg.LocalUser)
}

// Close, oturumu kapatır. Birden fazla çağrılabilir.
func (s *ChatSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unsubs := s.unsubscribe
		s.unsubscribe = nil
		s.mu.Unlock()

		for _, unsub := range unsubs {
			unsub()
		}
		s.Transcript.Stop()
		s.Voice.Close()
		s.Calls.Close()
		log.Printf("[session] closed channel=%s", s.cfg.Channel)
	})
}

// ToggleVoice, transcript'teki mesajın sesini çalar veya durdurur.
func (s *ChatSession) ToggleVoice(ctx context.Context, messageID string) error {
	msg, ok := s.Transcript.Transcript().Find(messageID)
	if !ok {
		return fmt.Errorf("%w: message %s", pkg.ErrNotFound, messageID)
	}
	if !msg.HasVoice() {
		s.observer.OnNotice(Notice{Key: "voice.notVoice", Params: map[string]string{"id": messageID}})
		return fmt.Errorf("%w: message %s has no voice attachment", pkg.ErrBadRequest, messageID)
	}
	return s.Voice.Toggle(ctx, msg)
}
