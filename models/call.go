// Package models: P2P sesli arama domain modeli.
//
// Arama state makinesi:
//   - "idle": Henüz hiçbir signaling yapılmadı
//   - "offer_sent": Arayan taraf offer'ı gönderdi, karşı tarafı bekliyor
//   - "incoming_ringing": Aranan taraf, gelen aramayı henüz yanıtlamadı
//   - "connected": Uzak medya akışı gözlemlendi
//   - "ended" / "failed": Terminal: session artık kullanılamaz
//
// Tüm state ephemeral (in-memory): hiçbir yere kaydedilmez.
package models

import (
	"fmt"
	"time"
)

// CallRole, bu client'ın aramadaki rolü.
type CallRole string

const (
	CallRoleCaller CallRole = "caller"
	CallRoleCallee CallRole = "callee"
)

// CallState, arama durumunu temsil eden typed constant.
type CallState string

const (
	CallStateIdle            CallState = "idle"
	CallStateOfferSent       CallState = "offer_sent"
	CallStateIncomingRinging CallState = "incoming_ringing"
	CallStateConnected       CallState = "connected"
	CallStateEnded           CallState = "ended"
	CallStateFailed          CallState = "failed"
)

// callTransitions, izin verilen tüm geçişlerin tablosu.
// Tabloda olmayan geçiş reddedilir: örn. Failed → Connected imkansızdır.
var callTransitions = map[CallState][]CallState{
	CallStateIdle:            {CallStateOfferSent, CallStateFailed, CallStateEnded},
	CallStateOfferSent:       {CallStateConnected, CallStateEnded, CallStateFailed},
	CallStateIncomingRinging: {CallStateConnected, CallStateEnded, CallStateFailed},
	CallStateConnected:       {CallStateEnded, CallStateFailed},
	CallStateEnded:           {},
	CallStateFailed:          {},
}

// IsTerminal, state'in terminal (Ended/Failed) olup olmadığını döner.
func (s CallState) IsTerminal() bool {
	return s == CallStateEnded || s == CallStateFailed
}

// CanTransition, from → to geçişinin tabloda olup olmadığını döner.
func (s CallState) CanTransition(to CallState) bool {
	for _, allowed := range callTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IceCandidate, trickle ICE ile gönderilen/alınan tek bir aday.
type IceCandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// CallSession, tek bir P2P sesli aramanın client tarafındaki kaydı.
//
// ICECandidates sadece ekleme yapılan (append-only) bir listedir;
// yerel olarak keşfedilen ve karşıdan gelen adaylar birlikte tutulur.
type CallSession struct {
	ID            string         `json:"id"`
	LocalUser     string         `json:"local_user"`
	RemoteUser    string         `json:"remote_user"`
	Channel       string         `json:"channel"`
	Role          CallRole       `json:"role"`
	State         CallState      `json:"state"`
	OfferSDP      string         `json:"offer_sdp,omitempty"`
	AnswerSDP     string         `json:"answer_sdp,omitempty"`
	ICECandidates []IceCandidate `json:"ice_candidates"`
	Muted         bool           `json:"muted"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Transition, session state'ini tabloya göre değiştirir.
func (c *CallSession) Transition(to CallState) error {
	if !c.State.CanTransition(to) {
		return fmt.Errorf("call %s: %s -> %s not allowed", c.ID, c.State, to)
	}
	c.State = to
	return nil
}

// Snapshot, observer'a verilecek bağımsız kopyayı döner.
func (c *CallSession) Snapshot() CallSession {
	out := *c
	out.ICECandidates = append([]IceCandidate(nil), c.ICECandidates...)
	return out
}

// ─── Signaling istek gövdeleri ───

// OfferRequest, POST /api/webrtc/offer gövdesi.
type OfferRequest struct {
	ToUser  string `json:"toUser"`
	Channel string `json:"channel"`
	Offer   string `json:"offer"`
}

// AnswerRequest, POST /api/webrtc/answer gövdesi.
type AnswerRequest struct {
	ToUser string `json:"toUser"`
	Answer string `json:"answer"`
}

// IceCandidateRequest, POST /api/webrtc/ice-candidate gövdesi.
type IceCandidateRequest struct {
	ToUser        string `json:"toUser"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// EndCallRequest, POST /api/webrtc/end-call gövdesi.
type EndCallRequest struct {
	TargetUser string `json:"targetUser"`
}
