package models

import "sort"

// Transcript, bir kanalın client tarafından bilinen sıralı mesaj dizisidir.
//
// Kurallar:
//   - Timestamp'e göre artan sırada
//   - Aynı ID iki kez bulunmaz
//
// Transcript bir slice üzerine tanımlı tiptir; kopyalanması ucuzdur ama
// içerik paylaşımı olmaması için Clone kullanılmalıdır.
type Transcript []Message

// Clone, transcript'in bağımsız bir kopyasını döner.
// Observer'a verilen liste bu kopyadır: observer'ın değişikliği state'i bozmaz.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	for i := range out {
		if v := out[i].Voice; v != nil {
			voice := *v
			out[i].Voice = &voice
		}
	}
	return out
}

// Equal, iki transcript'in sıra ve içerik olarak tamamen aynı olup olmadığını döner.
func (t Transcript) Equal(other Transcript) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if !t[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Contains, verilen ID'ye sahip mesajın transcript'te olup olmadığını döner.
func (t Transcript) Contains(id string) bool {
	for i := range t {
		if t[i].ID == id {
			return true
		}
	}
	return false
}

// Find, ID'ye göre mesajı döner.
func (t Transcript) Find(id string) (Message, bool) {
	for i := range t {
		if t[i].ID == id {
			return t[i], true
		}
	}
	return Message{}, false
}

// Normalize, sunucudan gelen diziyi transcript kurallarına uydurur:
// aynı ID'nin ilk görüleni tutulur, sonra timestamp'e göre stable sıralanır.
// Sunucu zaten sıralı gönderiyorsa stable sort sırayı değiştirmez.
func Normalize(msgs []Message) Transcript {
	seen := make(map[string]bool, len(msgs))
	out := make(Transcript, 0, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// Append, mesajı timestamp sırasını koruyarak ekler ve yeni transcript döner.
// ID zaten varsa ikinci dönüş değeri false olur ve transcript değişmez.
func (t Transcript) Append(msg Message) (Transcript, bool) {
	if t.Contains(msg.ID) {
		return t, false
	}
	out := make(Transcript, 0, len(t)+1)
	out = append(out, t...)

	// Çoğunlukla yeni mesaj en sona gider; geç gelen push'lar için
	// doğru pozisyonu sondan geriye doğru ara.
	idx := len(out)
	for idx > 0 && out[idx-1].Timestamp > msg.Timestamp {
		idx--
	}
	out = append(out, Message{})
	copy(out[idx+1:], out[idx:])
	out[idx] = msg
	return out, true
}
