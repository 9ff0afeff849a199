// Package ratelimit: client tarafı mesaj gönderim kısıtlayıcısı.
//
// Sunucu spam koruması pencere başına belirli sayıda mesaja izin verir ve
// aşıldığında bir ceza süresi uygular. Client aynı kuralı yerelde uygular:
// kullanıcı Enter'a basılı tuttuğunda istekler sunucuya hiç gitmez, kısa
// bir "yavaşla" bildirimi gösterilir.
//
// Algoritma:
//   - window içinde maxMessages mesaja izin verilir.
//   - maxMessages+1. mesajda cooldown başlar; cooldown boyunca her şey reddedilir.
//   - Cooldown bitince pencere sıfırlanır.
package ratelimit

import (
	"sync"
	"time"
)

// sendBucket, bir kanal için pencere sayacı ve cooldown bilgisi.
type sendBucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time // zero value = cooldown yok
}

// SendThrottle, kanal bazlı gönderim kısıtlayıcısı.
//
//	throttle := ratelimit.NewSendThrottle(5, 5*time.Second, 15*time.Second)
//	if !throttle.Allow(channel) { return ErrThrottled }
type SendThrottle struct {
	mu          sync.Mutex
	buckets     map[string]*sendBucket
	maxMessages int
	window      time.Duration
	cooldown    time.Duration
	now         func() time.Time
}

// NewSendThrottle, yeni kısıtlayıcı oluşturur. maxMessages <= 0 ise
// kısıtlama kapalıdır (Allow her zaman true döner).
//
// Client'ta kanal sayısı küçük olduğu için arka plan temizliği yoktur;
// süresi dolmuş bucket'lar Allow içinde sıfırlanır.
func NewSendThrottle(maxMessages int, window, cooldown time.Duration) *SendThrottle {
	return &SendThrottle{
		buckets:     make(map[string]*sendBucket),
		maxMessages: maxMessages,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Allow, kanala şimdi mesaj gönderilip gönderilemeyeceğini döner ve
// izin verilirse sayacı artırır.
func (t *SendThrottle) Allow(channel string) bool {
	if t == nil || t.maxMessages <= 0 {
		return true
	}

	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[channel]
	if !ok {
		t.buckets[channel] = &sendBucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() {
		if now.Before(b.cooldownUntil) {
			return false
		}
		// Cooldown bitti: yeni pencere
		b.count = 1
		b.windowStart = now
		b.cooldownUntil = time.Time{}
		return true
	}

	if now.Sub(b.windowStart) > t.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	if b.count > t.maxMessages {
		b.cooldownUntil = now.Add(t.cooldown)
		return false
	}
	return true
}

// Remaining, kanal için kalan cooldown süresini döner. Cooldown yoksa 0.
// Bildirimde "N saniye bekleyin" göstermek için kullanılır.
func (t *SendThrottle) Remaining(channel string) time.Duration {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[channel]
	if !ok || b.cooldownUntil.IsZero() {
		return 0
	}
	remaining := b.cooldownUntil.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
