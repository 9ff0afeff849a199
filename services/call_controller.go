// Package services: CallController, tek bir P2P sesli aramanın signaling'i.
//
// Giden arama (caller):
//  1. Arama slotu alınır (başka aktif arama varsa ErrCallBusy, ağ yok)
//  2. PeerConnection + yerel ses track'i → CreateOffer → SetLocalDescription
//  3. POST /api/webrtc/offer → OfferSent
//  4. Karşı tarafın answer'ı push ile gelir → SetRemoteDescription
//
// Gelen arama (callee), IncomingRinging ile oluşturulur:
//  1. GET /api/webrtc/offer?fromUser= → SetRemoteDescription
//  2. CreateAnswer → SetLocalDescription → POST /api/webrtc/answer
//
// Her iki tarafta da Connected, uzak ses track'i gözlemlendiğinde olur.
// Yerel ICE adayları bulundukça tek tek POST edilir (trickle ICE).
//
// Bağlantı Disconnected/Failed olursa DisconnectGrace sonra Ended'a geçilir;
// bu sürede bağlantı düzelirse zamanlayıcı iptal edilir. PeerConnection
// tam bir kez kapatılır (sync.Once).
//
// Kilit kuralı: c.mu tutulurken PeerConnection metodu çağrılmaz; pion
// callback'leri aynı goroutine'den geri çağırabilir.
package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/metrics"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/rtc"
	"github.com/akinalp/mqvi-client/ws"
)

// signalTimeout, callback'lerden (ICE, end-call) yapılan isteklerin üst sınırı.
const signalTimeout = 15 * time.Second

// CallDeps, CallController'ın collaborator'ları.
type CallDeps struct {
	Gateway  gateway.Gateway
	Sessions *MediaSessionManager
	Peers    rtc.Factory
	Observer Observer
	Metrics  *metrics.Metrics
}

// CallConfig, arama ayarları.
type CallConfig struct {
	LocalUser       string
	Channel         string
	Token           string
	ICEServers      []string
	DisconnectGrace time.Duration
}

// CallController, tek bir CallSession'ın yaşam döngüsünü yönetir.
type CallController struct {
	deps     CallDeps
	cfg      CallConfig
	observer Observer

	mu              sync.Mutex
	session         models.CallSession
	pc              rtc.PeerConnection
	track           rtc.AudioTrack
	release         func()
	disconnectTimer *time.Timer
	remoteTrackSeen bool
	remoteDescSet   bool
	pendingRemote   []models.IceCandidate

	teardownOnce sync.Once
	closed       bool // teardown çalıştı; yeni kaynak bağlanmaz
}

// NewOutgoingCall, Idle durumda bir caller controller oluşturur.
func NewOutgoingCall(deps CallDeps, cfg CallConfig, remoteUser string) *CallController {
	return newCallController(deps, cfg, remoteUser, models.CallRoleCaller, models.CallStateIdle)
}

// NewIncomingCall, IncomingRinging durumda bir callee controller oluşturur.
func NewIncomingCall(deps CallDeps, cfg CallConfig, fromUser string) *CallController {
	return newCallController(deps, cfg, fromUser, models.CallRoleCallee, models.CallStateIncomingRinging)
}

func newCallController(deps CallDeps, cfg CallConfig, remote string, role models.CallRole, state models.CallState) *CallController {
	if deps.Sessions == nil {
		deps.Sessions = NewMediaSessionManager()
	}
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = 2 * time.Second
	}
	return &CallController{
		deps:     deps,
		cfg:      cfg,
		observer: observerOrNop(deps.Observer),
		session: models.CallSession{
			ID:         uuid.NewString(),
			LocalUser:  cfg.LocalUser,
			RemoteUser: remote,
			Channel:    cfg.Channel,
			Role:       role,
			State:      state,
			CreatedAt:  time.Now(),
		},
	}
}

// Session, session'ın anlık kopyası.
func (c *CallController) Session() models.CallSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// State, anlık arama durumu.
func (c *CallController) State() models.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// ─── Giden arama ───

// Start, giden aramayı başlatır. Başarıda state OfferSent olur.
func (c *CallController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Role != models.CallRoleCaller || c.session.State != models.CallStateIdle {
		state := c.session.State
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot start call in state %s", pkg.ErrInvalidState, state)
	}
	c.mu.Unlock()

	if err := c.acquireSlot(); err != nil {
		return err
	}

	pc, _, err := c.openPeer()
	if err != nil {
		return c.fail("call.offerFailed", err)
	}

	offer, err := pc.CreateOffer()
	if err != nil {
		return c.fail("call.offerFailed", err)
	}
	if err := pc.SetLocalDescription(rtc.SDPTypeOffer, offer); err != nil {
		return c.fail("call.offerFailed", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.endedErr()
	}
	c.session.OfferSDP = offer
	remote := c.session.RemoteUser
	c.mu.Unlock()

	req := models.OfferRequest{ToUser: remote, Channel: c.cfg.Channel, Offer: offer}
	if _, err := c.deps.Gateway.Send(ctx, http.MethodPost, "/api/webrtc/offer", req, c.cfg.Token); err != nil {
		return c.fail("call.offerFailed", err)
	}

	if err := c.transition(models.CallStateOfferSent); err != nil {
		// Bu arada karşı taraf kapattı veya bağlantı koptu.
		return c.endedErr()
	}
	log.Printf("[call] offer sent call=%s to=%s", c.session.ID, remote)

	c.mu.Lock()
	seen := c.remoteTrackSeen
	c.mu.Unlock()
	if seen {
		c.onRemoteTrack()
	}
	return nil
}

// ─── Gelen arama ───

// Answer, gelen aramayı yanıtlar. Offer alınamazsa arama Failed olur;
// answer gönderilemezse hata döner ama arama açık kalır ve Answer
// tekrar çağrılarak sadece gönderim yinelenebilir.
func (c *CallController) Answer(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Role != models.CallRoleCallee || c.session.State.IsTerminal() {
		state := c.session.State
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot answer call in state %s", pkg.ErrInvalidState, state)
	}
	remote := c.session.RemoteUser
	answer := c.session.AnswerSDP
	c.mu.Unlock()

	if answer == "" {
		var err error
		if answer, err = c.prepareAnswer(ctx, remote); err != nil {
			return err
		}
	}

	if c.isClosed() {
		return c.endedErr()
	}

	req := models.AnswerRequest{ToUser: remote, Answer: answer}
	if _, err := c.deps.Gateway.Send(ctx, http.MethodPost, "/api/webrtc/answer", req, c.cfg.Token); err != nil {
		log.Printf("[call] answer post failed call=%s: %v", c.session.ID, err)
		c.notify("call.answerFailed", nil, err)
		return fmt.Errorf("%w: %w", pkg.ErrSignaling, err)
	}

	log.Printf("[call] answer sent call=%s to=%s", c.session.ID, remote)
	return nil
}

// prepareAnswer, offer'ı çeker ve yerel answer'ı üretir. Buradaki her hata terminaldir.
func (c *CallController) prepareAnswer(ctx context.Context, remote string) (string, error) {
	if err := c.acquireSlot(); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("fromUser", remote)
	raw, err := c.deps.Gateway.Send(ctx, http.MethodGet, "/api/webrtc/offer?"+q.Encode(), nil, c.cfg.Token)
	if c.isClosed() {
		// GET sürerken arama kapatıldı.
		return "", c.endedErr()
	}
	if err != nil {
		return "", c.fail("call.failed", err)
	}
	var resp struct {
		Offer string `json:"offer"`
	}
	if err := gateway.Decode(raw, &resp); err != nil {
		return "", c.fail("call.failed", err)
	}
	if resp.Offer == "" {
		return "", c.fail("call.failed", &gateway.Error{Message: "no pending offer", Kind: pkg.ErrProtocol})
	}

	pc, _, err := c.openPeer()
	if err != nil {
		return "", c.fail("call.failed", err)
	}
	if err := c.applyRemoteDescription(pc, rtc.SDPTypeOffer, resp.Offer); err != nil {
		return "", c.fail("call.failed", err)
	}

	answer, err := pc.CreateAnswer()
	if err != nil {
		return "", c.fail("call.failed", err)
	}
	if err := pc.SetLocalDescription(rtc.SDPTypeAnswer, answer); err != nil {
		return "", c.fail("call.failed", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", c.endedErr()
	}
	c.session.OfferSDP = resp.Offer
	c.session.AnswerSDP = answer
	c.mu.Unlock()

	return answer, nil
}

// ─── Push signaling ───

// HandleSignal, karşı taraftan gelen webrtc push event'ini uygular.
func (c *CallController) HandleSignal(event ws.PushEvent) {
	c.mu.Lock()
	if c.session.State.IsTerminal() || event.From != c.session.RemoteUser {
		c.mu.Unlock()
		return
	}
	pc := c.pc
	c.mu.Unlock()

	switch event.Action {
	case ws.ActionAnswer:
		if pc == nil || event.SDP == "" {
			return
		}
		if err := c.applyRemoteDescription(pc, rtc.SDPTypeAnswer, event.SDP); err != nil {
			_ = c.fail("call.failed", err)
			return
		}
		c.mu.Lock()
		c.session.AnswerSDP = event.SDP
		c.mu.Unlock()
		log.Printf("[call] remote answer applied call=%s", c.session.ID)

	case ws.ActionIceCandidate:
		c.addRemoteCandidate(event.IceCandidate())

	case ws.ActionEndCall:
		log.Printf("[call] remote ended call=%s", c.session.ID)
		c.finish(models.CallStateEnded, "call.ended", nil)
	}
}

func (c *CallController) applyRemoteDescription(pc rtc.PeerConnection, kind rtc.SDPType, sdp string) error {
	if err := pc.SetRemoteDescription(kind, sdp); err != nil {
		return err
	}

	c.mu.Lock()
	c.remoteDescSet = true
	pending := c.pendingRemote
	c.pendingRemote = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if err := pc.AddICECandidate(cand); err != nil {
			log.Printf("[call] buffered remote candidate rejected: %v", err)
		}
	}
	return nil
}

func (c *CallController) addRemoteCandidate(cand models.IceCandidate) {
	if cand.Candidate == "" {
		return
	}

	c.mu.Lock()
	c.session.ICECandidates = append(c.session.ICECandidates, cand)
	pc := c.pc
	if pc == nil || !c.remoteDescSet {
		// Remote description gelmeden eklenen aday reddedilir; sonra uygulanır.
		c.pendingRemote = append(c.pendingRemote, cand)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := pc.AddICECandidate(cand); err != nil {
		log.Printf("[call] remote candidate rejected call=%s: %v", c.session.ID, err)
	}
}

// ─── Kontroller ───

// EndCall, aramayı sonlandırır. Karşı tarafa bildirim best-effort'tur;
// istek başarısız olsa bile arama Ended olur.
func (c *CallController) EndCall(ctx context.Context) error {
	c.mu.Lock()
	if c.session.State.IsTerminal() {
		c.mu.Unlock()
		return nil
	}
	remote := c.session.RemoteUser
	notifyRemote := c.session.State != models.CallStateIdle
	c.mu.Unlock()

	if notifyRemote {
		req := models.EndCallRequest{TargetUser: remote}
		if _, err := c.deps.Gateway.Send(ctx, http.MethodPost, "/api/webrtc/end-call", req, c.cfg.Token); err != nil {
			log.Printf("[call] end-call notify failed call=%s: %v", c.session.ID, err)
		}
	}

	c.finish(models.CallStateEnded, "call.ended", nil)
	return nil
}

// SetMuted, yerel mikrofon track'ini açar/kapatır.
func (c *CallController) SetMuted(muted bool) error {
	c.mu.Lock()
	if c.track == nil || c.session.State.IsTerminal() {
		c.mu.Unlock()
		return fmt.Errorf("%w: no active audio track", pkg.ErrInvalidState)
	}
	c.track.SetEnabled(!muted)
	c.session.Muted = muted
	snapshot := c.session.Snapshot()
	c.mu.Unlock()

	key := "call.unmuted"
	if muted {
		key = "call.muted"
	}
	c.notify(key, nil, nil)
	c.observer.OnCallState(snapshot)
	return nil
}

// ─── PeerConnection callback'leri ───

func (c *CallController) onLocalCandidate(cand models.IceCandidate) {
	c.mu.Lock()
	if c.session.State.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.session.ICECandidates = append(c.session.ICECandidates, cand)
	remote := c.session.RemoteUser
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()

	req := models.IceCandidateRequest{
		ToUser:        remote,
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	}
	if _, err := c.deps.Gateway.Send(ctx, http.MethodPost, "/api/webrtc/ice-candidate", req, c.cfg.Token); err != nil {
		log.Printf("[call] ice candidate post failed call=%s: %v", c.session.ID, err)
		c.notify("call.iceFailed", nil, err)
	}
}

func (c *CallController) onRemoteTrack() {
	c.mu.Lock()
	c.remoteTrackSeen = true
	if !c.session.State.CanTransition(models.CallStateConnected) || c.session.State == models.CallStateIdle {
		// Idle: offer POST henüz dönmedi; Start OfferSent'ten sonra tekrar dener.
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.transition(models.CallStateConnected); err == nil {
		log.Printf("[call] connected call=%s", c.session.ID)
		c.notify("call.connected", map[string]string{"user": c.session.RemoteUser}, nil)
	}
}

func (c *CallController) onConnectionState(state rtc.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State.IsTerminal() {
		return
	}

	switch {
	case state.IsDown():
		if c.disconnectTimer != nil {
			return
		}
		log.Printf("[call] connectivity %s call=%s, ending in %s", state, c.session.ID, c.cfg.DisconnectGrace)
		c.disconnectTimer = time.AfterFunc(c.cfg.DisconnectGrace, func() {
			c.finish(models.CallStateEnded, "call.ended", nil)
		})
	case state == rtc.ConnectionStateConnected || state == rtc.ConnectionStateChecking:
		if c.disconnectTimer != nil {
			c.disconnectTimer.Stop()
			c.disconnectTimer = nil
			log.Printf("[call] connectivity recovered call=%s", c.session.ID)
		}
	}
}

// ─── İç yardımcılar ───

func (c *CallController) acquireSlot() error {
	release, err := c.deps.Sessions.AcquireCall(c.session.ID)
	if err != nil {
		c.notify("call.busy", nil, err)
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		release()
		return c.endedErr()
	}
	c.release = release
	c.mu.Unlock()
	return nil
}

// openPeer, PeerConnection'ı oluşturur, callback'leri bağlar ve yerel ses
// track'ini ekler.
func (c *CallController) openPeer() (rtc.PeerConnection, rtc.AudioTrack, error) {
	if c.deps.Peers == nil {
		return nil, nil, fmt.Errorf("%w: no peer connection factory", pkg.ErrResource)
	}
	pc, err := c.deps.Peers.NewPeerConnection(c.cfg.ICEServers)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	if c.closed {
		// Oluşturma sürerken arama bitti; teardown bu pc'yi görmeyecek.
		c.mu.Unlock()
		if err := pc.Close(); err != nil {
			log.Printf("[call] peer close error call=%s: %v", c.session.ID, err)
		}
		return nil, nil, c.endedErr()
	}
	c.pc = pc
	c.mu.Unlock()

	pc.OnICECandidate(c.onLocalCandidate)
	pc.OnRemoteTrack(c.onRemoteTrack)
	pc.OnConnectionStateChange(c.onConnectionState)

	track, err := pc.AddLocalAudio()
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	c.track = track
	c.mu.Unlock()
	return pc, track, nil
}

// transition, state'i değiştirir ve observer'a bildirir.
func (c *CallController) transition(to models.CallState) error {
	c.mu.Lock()
	if err := c.session.Transition(to); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", pkg.ErrInvalidState, err)
	}
	snapshot := c.session.Snapshot()
	c.mu.Unlock()

	c.deps.Metrics.ObserveCallState(string(to))
	c.observer.OnCallState(snapshot)
	return nil
}

// fail, aramayı Failed'a çeker, kaynakları bırakır ve ErrSignaling döner.
func (c *CallController) fail(noticeKey string, cause error) error {
	if c.isClosed() {
		return c.endedErr()
	}
	log.Printf("[call] call=%s failed: %v", c.session.ID, cause)
	c.finish(models.CallStateFailed, noticeKey, cause)
	return fmt.Errorf("%w: %w", pkg.ErrSignaling, cause)
}

// finish, terminal state'e geçer ve teardown yapar. Zaten terminalse no-op.
// Açık sonlandırma ile bağlantı callback'i yarışabilir; ilk gelen kazanır.
func (c *CallController) finish(to models.CallState, noticeKey string, cause error) {
	c.mu.Lock()
	if c.session.State.IsTerminal() {
		c.mu.Unlock()
		return
	}
	if err := c.session.Transition(to); err != nil {
		c.mu.Unlock()
		log.Printf("[call] %v", err)
		return
	}
	snapshot := c.session.Snapshot()
	c.mu.Unlock()

	c.teardown()

	c.deps.Metrics.ObserveCallState(string(to))
	c.observer.OnCallState(snapshot)
	if noticeKey != "" {
		c.notify(noticeKey, map[string]string{"message": gateway.UserMessage(cause)}, cause)
	}
}

// teardown, zamanlayıcıyı durdurur, PeerConnection'ı kapatır ve slotu bırakır.
func (c *CallController) teardown() {
	c.teardownOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pc, release, timer := c.pc, c.release, c.disconnectTimer
		c.pc, c.track, c.release, c.disconnectTimer = nil, nil, nil, nil
		c.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if pc != nil {
			if err := pc.Close(); err != nil {
				log.Printf("[call] peer close error call=%s: %v", c.session.ID, err)
			}
		}
		if release != nil {
			release()
		}
	})
}

// isClosed, arama terminal state'e geçmişse (teardown henüz bitmemiş olsa bile) true döner.
func (c *CallController) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.session.State.IsTerminal()
}

// endedErr, arama bir adım sürerken sonlandırıldığında dönen hata.
func (c *CallController) endedErr() error {
	c.mu.Lock()
	state := c.session.State
	c.mu.Unlock()
	return fmt.Errorf("%w: call %s is %s", pkg.ErrInvalidState, c.session.ID, state)
}

func (c *CallController) notify(key string, params map[string]string, err error) {
	c.observer.OnNotice(Notice{Key: key, Params: params, Err: err})
}
