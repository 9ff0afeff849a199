// Package services: CallService, süreçteki tek aramanın sahibi.
//
// CallController tek bir aramayı yönetir; CallService hangisinin "güncel"
// olduğunu tutar, push event'lerini ona yönlendirir ve gelen offer
// bildirimlerinden IncomingRinging controller'ları oluşturur.
// Terminal durumdaki bir controller "arama yok" sayılır.
package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/ws"
)

// CallService, arama komutlarının giriş noktası.
type CallService interface {
	// Call, remoteUser'a giden arama başlatır.
	Call(ctx context.Context, remoteUser string) error

	// Answer, gelen aramayı yanıtlar. fromUser boşsa çalan aramanın sahibi kullanılır.
	Answer(ctx context.Context, fromUser string) error

	EndCall(ctx context.Context) error
	SetMuted(muted bool) error
	ToggleMute() (bool, error)

	// Active, terminal olmayan aramanın anlık kopyası.
	Active() (models.CallSession, bool)

	// HandlePushEvent, type=webrtc event'lerini işler.
	HandlePushEvent(event ws.PushEvent)

	// Close, aktif aramayı bildirmeden kapatır.
	Close()
}

type callService struct {
	deps CallDeps
	cfg  CallConfig

	mu      sync.Mutex
	current *CallController
}

// NewCallService, constructor.
func NewCallService(deps CallDeps, cfg CallConfig) CallService {
	if deps.Sessions == nil {
		deps.Sessions = NewMediaSessionManager()
	}
	deps.Observer = observerOrNop(deps.Observer)
	return &callService{deps: deps, cfg: cfg}
}

func (s *callService) Call(ctx context.Context, remoteUser string) error {
	remoteUser = strings.TrimSpace(remoteUser)
	if remoteUser == "" || remoteUser == s.cfg.LocalUser {
		return fmt.Errorf("%w: invalid call target %q", pkg.ErrBadRequest, remoteUser)
	}

	s.mu.Lock()
	if s.liveLocked() != nil {
		s.mu.Unlock()
		s.deps.Observer.OnNotice(Notice{Key: "call.busy", Err: pkg.ErrCallBusy})
		return pkg.ErrCallBusy
	}
	ctrl := NewOutgoingCall(s.deps, s.cfg, remoteUser)
	s.current = ctrl
	s.mu.Unlock()

	return ctrl.Start(ctx)
}

func (s *callService) Answer(ctx context.Context, fromUser string) error {
	fromUser = strings.TrimSpace(fromUser)

	s.mu.Lock()
	ctrl := s.liveLocked()
	switch {
	case ctrl != nil && ctrl.State() == models.CallStateIncomingRinging &&
		(fromUser == "" || ctrl.Session().RemoteUser == fromUser):
		// çalan aramayı yanıtla
	case ctrl != nil:
		s.mu.Unlock()
		s.deps.Observer.OnNotice(Notice{Key: "call.busy", Err: pkg.ErrCallBusy})
		return pkg.ErrCallBusy
	case fromUser == "":
		s.mu.Unlock()
		return fmt.Errorf("%w: no ringing call to answer", pkg.ErrInvalidState)
	default:
		ctrl = NewIncomingCall(s.deps, s.cfg, fromUser)
		s.current = ctrl
	}
	s.mu.Unlock()

	return ctrl.Answer(ctx)
}

func (s *callService) EndCall(ctx context.Context) error {
	ctrl := s.live()
	if ctrl == nil {
		return fmt.Errorf("%w: no active call", pkg.ErrInvalidState)
	}
	return ctrl.EndCall(ctx)
}

func (s *callService) SetMuted(muted bool) error {
	ctrl := s.live()
	if ctrl == nil {
		return fmt.Errorf("%w: no active call", pkg.ErrInvalidState)
	}
	return ctrl.SetMuted(muted)
}

func (s *callService) ToggleMute() (bool, error) {
	ctrl := s.live()
	if ctrl == nil {
		return false, fmt.Errorf("%w: no active call", pkg.ErrInvalidState)
	}
	muted := !ctrl.Session().Muted
	if err := ctrl.SetMuted(muted); err != nil {
		return false, err
	}
	return muted, nil
}

func (s *callService) Active() (models.CallSession, bool) {
	ctrl := s.live()
	if ctrl == nil {
		return models.CallSession{}, false
	}
	return ctrl.Session(), true
}

func (s *callService) HandlePushEvent(event ws.PushEvent) {
	if event.Type != ws.TypeWebRTC || event.From == "" {
		return
	}

	if event.Action != ws.ActionOffer {
		if ctrl := s.live(); ctrl != nil {
			ctrl.HandleSignal(event)
		}
		return
	}

	s.mu.Lock()
	if live := s.liveLocked(); live != nil {
		s.mu.Unlock()
		log.Printf("[call] busy, ignoring offer from %s", event.From)
		return
	}
	ctrl := NewIncomingCall(s.deps, s.cfg, event.From)
	s.current = ctrl
	s.mu.Unlock()

	log.Printf("[call] incoming call from %s", event.From)
	s.deps.Observer.OnCallState(ctrl.Session())
	s.deps.Observer.OnNotice(Notice{Key: "call.ringing", Params: map[string]string{"user": event.From}})
}

func (s *callService) Close() {
	ctrl := s.live()
	if ctrl != nil {
		ctrl.finish(models.CallStateEnded, "", nil)
	}
}

func (s *callService) live() *CallController {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked()
}

func (s *callService) liveLocked() *CallController {
	if s.current == nil || s.current.State().IsTerminal() {
		return nil
	}
	return s.current
}
