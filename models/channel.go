package models

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Channel, dizin (directory) servisinden gelen bir chat kanalını temsil eder.
// Message ve CallSession kanalı ID ile referans eder.
type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Creator string `json:"creator"`
}

// DisplayName, kanal adı boşsa ID'ye düşer: listelerde boş satır çıkmasın.
func (c Channel) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.ID
}

// SearchChannelsRequest, POST /api/channels/search gövdesi.
// Sunucu SQL LIKE kullanır: "%" tüm kanalları döner.
type SearchChannelsRequest struct {
	Query string `json:"query"`
}

// JoinChannelRequest, POST /api/channels/join gövdesi.
type JoinChannelRequest struct {
	Channel string `json:"channel"`
}

// CreateChannelRequest, POST /api/channels/create gövdesi.
type CreateChannelRequest struct {
	Name string `json:"name"`
}

// Validate, CreateChannelRequest'in geçerli olup olmadığını kontrol eder.
func (r *CreateChannelRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	nameLen := utf8.RuneCountInString(r.Name)
	if nameLen < 1 || nameLen > 100 {
		return fmt.Errorf("channel name must be between 1 and 100 characters")
	}

	// Kanal adı Unicode harf, rakam, boşluk, tire ve alt çizgi içerebilir.
	for _, ch := range r.Name {
		if !isValidChannelNameChar(ch) {
			return fmt.Errorf("channel name contains invalid characters")
		}
	}
	return nil
}

// isValidChannelNameChar, kanal adında izin verilen karakterleri kontrol eder.
// unicode.IsLetter tüm dillerdeki harfleri kapsar (Türkçe ş/ç/ğ/ı/ö/ü dahil).
func isValidChannelNameChar(ch rune) bool {
	return unicode.IsLetter(ch) ||
		unicode.IsDigit(ch) ||
		ch == '-' || ch == '_' || ch == ' '
}

// CallCandidates, arama yapılabilecek üyeleri döner: kendisi hariç,
// boş isimler atlanır, sıra korunur, tekrarlar tek sayılır.
func CallCandidates(members []string, self string) []string {
	out := make([]string, 0, len(members))
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" || m == self || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
