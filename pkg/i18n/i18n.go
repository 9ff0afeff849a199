// Package i18n, client bildirimlerini (Notice) kullanıcının diline çevirir.
//
// Dil şu sırayla belirlenir:
//   1. config'teki LOCALE değeri
//   2. LANG / LC_ALL ortam değişkeni ("tr_TR.UTF-8" → "tr")
//   3. Varsayılan dil (en)
//
// Kullanım:
//
//	localizer := i18n.NewLocalizer("tr")
//	msg := localizer.T("voice.permissionDenied")
//	// → "Mikrofon izni reddedildi"
package i18n

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"sync"
)

// SupportedLanguages: desteklenen dil kodları.
var SupportedLanguages = []string{"en", "tr"}

// DefaultLanguage: varsayılan dil.
const DefaultLanguage = "en"

// translations, tüm dil çevirilerini bellekte tutan harita.
// map[lang]map[key]value formatında.
// Uygulama başlangıcında yüklenir, sonra sadece okunur: thread-safe.
var (
	translations map[string]map[string]string
	loadOnce     sync.Once
	loadErr      error
)

// Load, çeviri dosyalarını fs.FS'ten yükler (en.json, tr.json).
// Program ömrü boyunca bir kez çalışır; sonraki çağrılar ilk sonucu döner.
func Load(localesFS fs.FS) error {
	loadOnce.Do(func() {
		translations = make(map[string]map[string]string)

		for _, lang := range SupportedLanguages {
			fileName := lang + ".json"

			data, err := fs.ReadFile(localesFS, fileName)
			if err != nil {
				loadErr = fmt.Errorf("failed to read translation file %s: %w", fileName, err)
				return
			}

			// Nested JSON'u flat key'lere dönüştür: {"auth": {"login": "..."}} → "auth.login"
			var nested map[string]any
			if err := json.Unmarshal(data, &nested); err != nil {
				loadErr = fmt.Errorf("failed to parse translation file %s: %w", fileName, err)
				return
			}

			flat := make(map[string]string)
			flattenMap("", nested, flat)
			translations[lang] = flat

			log.Printf("[i18n] loaded %d keys for language: %s", len(flat), lang)
		}
	})

	return loadErr
}

// LoadEmbedded, binary'ye gömülü çevirileri yükler.
func LoadEmbedded() error {
	sub, err := fs.Sub(EmbeddedLocales, "locales")
	if err != nil {
		return err
	}
	return Load(sub)
}

// Localizer, belirli bir dil için çeviri yapan struct.
type Localizer struct {
	lang string
}

// NewLocalizer, belirli bir dil için Localizer oluşturur.
// Desteklenmeyen dil verilirse varsayılana düşer.
func NewLocalizer(lang string) *Localizer {
	if !isSupported(lang) {
		lang = DefaultLanguage
	}
	return &Localizer{lang: lang}
}

// T, çeviri anahtarına karşılık gelen metni döner.
// Anahtar bulunamazsa → İngilizce'ye düşer.
// İngilizce'de de yoksa → anahtarın kendisini döner.
func (l *Localizer) T(key string) string {
	// Önce kullanıcının dilinde ara
	if msg, ok := translations[l.lang][key]; ok {
		return msg
	}
	// Fallback: İngilizce
	if msg, ok := translations[DefaultLanguage][key]; ok {
		return msg
	}
	// Son çare: anahtarın kendisi
	return key
}

// TWithParams, parametreli çeviri yapar.
// Çeviri metnindeki {{param}} yer tutucularını değerlerle değiştirir.
//
// Örnek:
//
//	localizer.TWithParams("chat.typing", map[string]string{"user": "Ali"})
//	→ "Ali yazıyor..."
func (l *Localizer) TWithParams(key string, params map[string]string) string {
	msg := l.T(key)
	for k, v := range params {
		msg = strings.ReplaceAll(msg, "{{"+k+"}}", v)
	}
	return msg
}

// DetectLanguage, POSIX locale değerinden en uygun dili belirler.
// Örnek: "tr_TR.UTF-8" → "tr", "en_US" → "en", "C" → varsayılan.
// Birden fazla aday verilirse ilk desteklenen kazanır (LOCALE, LC_ALL, LANG).
func DetectLanguage(candidates ...string) string {
	for _, c := range candidates {
		lang := strings.TrimSpace(c)
		if i := strings.IndexAny(lang, "_.-@"); i >= 0 {
			lang = lang[:i]
		}
		lang = strings.ToLower(lang)

		if isSupported(lang) {
			return lang
		}
	}

	return DefaultLanguage
}

// Lang, localizer'ın dil kodunu döner.
func (l *Localizer) Lang() string {
	return l.lang
}

// ─── Helpers ───

func isSupported(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// flattenMap, nested JSON'u "dot notation" key'lere dönüştürür.
// {"auth": {"login": "Giriş"}} → {"auth.login": "Giriş"}
func flattenMap(prefix string, src map[string]any, dst map[string]string) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch val := v.(type) {
		case string:
			dst[key] = val
		case map[string]any:
			flattenMap(key, val, dst)
		}
	}
}
