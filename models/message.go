package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Message, bir kanal transcript'indeki tek bir chat mesajını temsil eder.
//
// Sunucu mesajı kabul ettiğinde (send ack) ya da refresh/push ile
// gözlemlendiğinde oluşturulur. Oluşturulduktan sonra değişmez (immutable);
// tek tek silinmez, sadece yeni bir transcript snapshot'ı ile yerini alır.
//
// JSON tag'leri sunucunun wire formatını birebir izler: zaman damgası "ts"
// alanında epoch-ms olarak gelir.
type Message struct {
	ID        string           `json:"id"`
	Channel   string           `json:"channel"`
	From      string           `json:"from"`
	Text      string           `json:"text"`
	Timestamp int64            `json:"ts"`              // epoch-ms
	Voice     *VoiceAttachment `json:"voice,omitempty"` // Nullable: sadece sesli mesajlarda dolu
}

// VoiceAttachment, bir mesaja bağlı sesli mesaj ekini temsil eder.
// Kendi yaşam döngüsü yoktur: sahibi olan Message ile birlikte yaşar.
type VoiceAttachment struct {
	Filename        string `json:"filename"`
	DurationSeconds int    `json:"duration"`
	DownloadRef     string `json:"downloadUrl"`
}

// DurationMillis, ekin süresini milisaniye olarak döner.
// Playback progress yüzdesi bu değere göre hesaplanır.
func (v *VoiceAttachment) DurationMillis() int64 {
	if v == nil || v.DurationSeconds <= 0 {
		return 0
	}
	return int64(v.DurationSeconds) * 1000
}

// Equal, iki mesajın yapısal olarak (içerik dahil) eşit olup olmadığını döner.
// Sadece ID karşılaştırması yetmez: sunucu tarafında düzenlenen bir mesaj
// aynı ID ile farklı içerik taşıyabilir.
func (m Message) Equal(other Message) bool {
	if m.ID != other.ID || m.Channel != other.Channel || m.From != other.From ||
		m.Text != other.Text || m.Timestamp != other.Timestamp {
		return false
	}
	if (m.Voice == nil) != (other.Voice == nil) {
		return false
	}
	if m.Voice != nil && *m.Voice != *other.Voice {
		return false
	}
	return true
}

// HasVoice, mesajın oynatılabilir bir ses eki taşıyıp taşımadığını döner.
func (m Message) HasVoice() bool {
	return m.Voice != nil && m.Voice.DownloadRef != ""
}

// ParseMessage, tek bir ham mesaj kaydını Message'a çevirir.
//
// Bozuk kayıt kuralları:
//   - JSON objesi değilse veya alan tipleri uyuşmuyorsa → hata
//   - "id" boşsa → hata (transcript'te kimliksiz mesaj tutulamaz)
//   - "voice" alanı obje değilse → ek yok sayılır, mesaj yine de kabul edilir
func ParseMessage(raw json.RawMessage) (Message, error) {
	var wire struct {
		ID      string          `json:"id"`
		Channel string          `json:"channel"`
		From    string          `json:"from"`
		Text    string          `json:"text"`
		TS      int64           `json:"ts"`
		Voice   json.RawMessage `json:"voice"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Message{}, fmt.Errorf("malformed message record: %w", err)
	}
	if strings.TrimSpace(wire.ID) == "" {
		return Message{}, fmt.Errorf("malformed message record: missing id")
	}

	msg := Message{
		ID:        wire.ID,
		Channel:   wire.Channel,
		From:      wire.From,
		Text:      wire.Text,
		Timestamp: wire.TS,
	}

	if len(wire.Voice) > 0 && string(wire.Voice) != "null" {
		var voice VoiceAttachment
		if err := json.Unmarshal(wire.Voice, &voice); err == nil {
			if voice.DurationSeconds < 0 {
				voice.DurationSeconds = 0
			}
			msg.Voice = &voice
		}
	}

	return msg, nil
}

// ParseMessages, bir mesaj dizisini parse eder. Bozuk kayıtlar atlanır ve
// ikinci dönüş değerinde sayılır: batch'in geri kalanı için ölümcül değildir.
func ParseMessages(records []json.RawMessage) ([]Message, int) {
	msgs := make([]Message, 0, len(records))
	skipped := 0
	for _, rec := range records {
		msg, err := ParseMessage(rec)
		if err != nil {
			skipped++
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, skipped
}

// CreateMessageRequest, POST /api/message gövdesi.
// VoiceMessage sadece sesli mesajlarda doludur (upload edilen voiceId).
type CreateMessageRequest struct {
	Channel      string `json:"channel"`
	Text         string `json:"text"`
	VoiceMessage string `json:"voiceMessage,omitempty"`
}

// MaxMessageLength, bir mesajın rune cinsinden üst sınırı.
const MaxMessageLength = 2000

// Validate, isteğin ağa gönderilmeye uygun olup olmadığını kontrol eder.
// Metin trim edilir; boş veya sadece boşluktan oluşan metin reddedilir.
func (r *CreateMessageRequest) Validate() error {
	r.Channel = strings.TrimSpace(r.Channel)
	if r.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	r.Text = strings.TrimSpace(r.Text)
	textLen := utf8.RuneCountInString(r.Text)
	if textLen < 1 {
		return fmt.Errorf("message text is required")
	}
	if textLen > MaxMessageLength {
		return fmt.Errorf("message text must be at most %d characters", MaxMessageLength)
	}
	return nil
}
