package pkg

import (
	"encoding/json"
	"strings"
)

// DefaultErrorMessage, sunucu yanıtında "error" alanı yoksa kullanılan metin.
const DefaultErrorMessage = "Unknown error"

// APIResponse, sunucunun tüm yanıtlarında ortak olan zarf (envelope).
// Her yanıt {success: bool, ...} formatındadır; hata yanıtları {error: string} taşır.
//
// Geri kalan alanlar endpoint'e özeldir (messages, voiceId, offer...);
// onları çağıran taraf json.RawMessage'dan kendi struct'ına decode eder.
type APIResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DecodeEnvelope, ham JSON gövdesinden zarfı okur.
// Gövde bir JSON objesi değilse hata döner.
func DecodeEnvelope(body []byte) (APIResponse, error) {
	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return APIResponse{}, err
	}
	return resp, nil
}

// ErrorMessage, gövdedeki "error" alanını döner; yoksa fallback'e düşer.
// Gövde parse edilemese bile (HTML hata sayfası vb.) fallback döner: panic yok.
func ErrorMessage(body []byte, fallback string) string {
	if fallback == "" {
		fallback = DefaultErrorMessage
	}
	var resp APIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fallback
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		return msg
	}
	return fallback
}
