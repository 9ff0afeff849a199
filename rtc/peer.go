// Package rtc, P2P sesli arama için peer connection soyutlamasını içerir.
//
// CallSignalingController sadece buradaki interface'leri bilir; gerçek
// implementasyon pion/webrtc (pion.go), testlerde ise in-memory sahte bağlantı kullanılır.
//
// WebRTC akışı:
//   - SDP (Session Description Protocol): iki tarafın medya yeteneklerini
//     tanımlayan metin. "Offer" önerilir, "Answer" ile yanıtlanır.
//   - ICE (Interactive Connectivity Establishment): NAT arkasındaki cihazların
//     birbirini bulması. STUN ile public adres öğrenilir, her aday karşı tarafa
//     ayrı ayrı gönderilir (trickle ICE).
package rtc

import (
	"time"

	"github.com/akinalp/mqvi-client/models"
)

// DefaultSTUNServers, yapılandırma verilmezse kullanılan STUN sunucuları.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// SDPType, session description türü.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// ConnectionState, ICE bağlantı durumunun sadeleştirilmiş hali.
type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateChecking     ConnectionState = "checking"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateFailed       ConnectionState = "failed"
	ConnectionStateClosed       ConnectionState = "closed"
)

// IsDown, bağlantının koptuğunu (geçici ya da kalıcı) bildirir.
// Controller bu durumda gecikmeli sonlandırma planlar.
func (s ConnectionState) IsDown() bool {
	return s == ConnectionStateDisconnected || s == ConnectionStateFailed
}

// AudioTrack, yerel mikrofon track'i.
type AudioTrack interface {
	// SetEnabled, false iken track'e yazılan örnekler düşürülür (mute).
	SetEnabled(enabled bool)
	Enabled() bool

	// WriteSample, kodlanmış bir ses çerçevesini (Opus) track'e yazar.
	WriteSample(payload []byte, duration time.Duration) error
}

// PeerConnection, tek bir aramanın WebRTC bağlantısı.
//
// Callback'ler (OnICECandidate, OnRemoteTrack, OnConnectionStateChange)
// implementasyonun kendi goroutine'lerinden çağrılabilir.
type PeerConnection interface {
	AddLocalAudio() (AudioTrack, error)

	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetLocalDescription(kind SDPType, sdp string) error
	SetRemoteDescription(kind SDPType, sdp string) error
	AddICECandidate(candidate models.IceCandidate) error

	OnICECandidate(fn func(candidate models.IceCandidate))
	OnRemoteTrack(fn func())
	OnConnectionStateChange(fn func(state ConnectionState))

	Close() error
}

// Factory, yeni PeerConnection üretir. Her arama kendi bağlantısını alır.
type Factory interface {
	NewPeerConnection(iceServers []string) (PeerConnection, error)
}
