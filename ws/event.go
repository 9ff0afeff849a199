// Package ws, sunucunun canlı push kanalına (WebSocket) bağlanır ve gelen
// event'leri abone olan servislere dağıtır.
//
// Mimari:
//   - Client: sunucuya açılan tek bağlantı; okur, ping atar, koparsa yeniden bağlanır
//   - Hub: gelen event'leri tipine göre abonelere dağıtan merkezi yapı
//   - PushEvent: sunucudan gelen düz JSON event formatı
//
// Event akışı:
//  1. Başka bir kullanıcı mesaj gönderir → sunucu {type:"message", action:"new", ...} yayınlar
//  2. Client.readPump event'i parse eder → Hub.Publish
//  3. Hub, event'i o tipe abone olan her subscriber'a kendi kuyruğu üzerinden iletir
//  4. TranscriptSynchronizer aktif kanalı filtreler ve transcript'e ekler
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/akinalp/mqvi-client/models"
)

// Event tipleri
const (
	TypeMessage = "message" // Chat mesajı event'leri
	TypeWebRTC  = "webrtc"  // P2P arama signaling event'leri
)

// Action sabitleri
const (
	ActionNew = "new" // Yeni mesaj

	ActionOffer        = "offer"         // Gelen arama (offer mailbox'a bırakıldı)
	ActionAnswer       = "answer"        // Karşı taraf yanıtladı
	ActionIceCandidate = "ice-candidate" // Karşı tarafın ICE adayı
	ActionEndCall      = "end-call"      // Karşı taraf kapattı
)

// PushEvent, push kanalından gelen bir event.
//
// Sunucu event'i zarfsız, düz bir JSON objesi olarak yollar; alanların
// hangilerinin dolu olduğu Type/Action'a göre değişir.
// Seq alanı sunucudan gelmez: Hub her dağıtılan event'e yerel sıra numarası verir.
type PushEvent struct {
	Type   string `json:"type"`
	Action string `json:"action"`

	// Mesaj alanları (type=message)
	ID      string                  `json:"id,omitempty"`
	From    string                  `json:"from,omitempty"`
	Text    string                  `json:"text,omitempty"`
	TS      int64                   `json:"ts,omitempty"`
	Channel string                  `json:"channel,omitempty"`
	Voice   *models.VoiceAttachment `json:"voice,omitempty"`

	// Signaling alanları (type=webrtc)
	SDP           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`

	Seq int64 `json:"-"`
}

// DecodePushEvent, ham WS mesajını PushEvent'e çevirir. Type boşsa hata döner.
func DecodePushEvent(raw []byte) (PushEvent, error) {
	var ev PushEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return PushEvent{}, err
	}
	if ev.Type == "" {
		return PushEvent{}, fmt.Errorf("push event without type")
	}
	return ev, nil
}

// IsNewMessage, event'in "yeni mesaj" şeklinde olup olmadığını döner.
func (e PushEvent) IsNewMessage() bool {
	return e.Type == TypeMessage && e.Action == ActionNew && e.ID != ""
}

// Message, yeni mesaj event'ini models.Message'a çevirir.
func (e PushEvent) Message() models.Message {
	return models.Message{
		ID:        e.ID,
		Channel:   e.Channel,
		From:      e.From,
		Text:      e.Text,
		Timestamp: e.TS,
		Voice:     e.Voice,
	}
}

// IceCandidate, signaling event'indeki ICE adayını döner.
func (e PushEvent) IceCandidate() models.IceCandidate {
	return models.IceCandidate{
		Candidate:     e.Candidate,
		SDPMid:        e.SDPMid,
		SDPMLineIndex: e.SDPMLineIndex,
	}
}
