// Package cache: generic in-memory TTL cache.
//
// TTLCache, belirli bir süre sonra süresi dolan kayıtları tutan thread-safe,
// generic bir cache yapısıdır. Client'ta indirilen sesli mesaj dosyalarını
// (downloadRef → scoped dosya yolu) tutmak için kullanılır: aynı mesaj
// tekrar çalındığında yeniden indirilmez.
//
// OnEvict callback'i bir entry map'ten çıktığı her durumda (süre dolması,
// Delete, üzerine yazma, Close) tam bir kez çağrılır: scoped dosya bu
// callback'te silinir, diskte sahipsiz dosya kalmaz.
package cache

import (
	"sync"
	"time"
)

// entry, cache'teki tek bir kayıttır.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// pair, mutex dışında OnEvict'e verilecek çıkarılmış kayıt.
type pair[K, V any] struct {
	key   K
	value V
}

// TTLCache, generic in-memory TTL cache.
//
//	c := cache.New[string, string](10*time.Minute, time.Minute)
//	c.OnEvict(func(ref, path string) { os.Remove(path) })
//	c.Set(ref, path)
//	path, ok := c.Get(ref)
type TTLCache[K, V comparable] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	ttl     time.Duration
	onEvict func(key K, value V)
	now     func() time.Time

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New, yeni bir TTLCache oluşturur ve periyodik temizleme goroutine'ini başlatır.
// cleanupInterval <= 0 ise periyodik temizleme yapılmaz; süresi dolan
// entry'ler sadece Get sırasında temizlenir.
func New[K, V comparable](ttl, cleanupInterval time.Duration) *TTLCache[K, V] {
	c := &TTLCache[K, V]{
		entries:     make(map[K]entry[V]),
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					c.evictExpired()
				case <-c.stopCleanup:
					return
				}
			}
		}()
	}

	return c
}

// OnEvict, entry çıkarıldığında çağrılacak fonksiyonu ayarlar.
// Callback mutex dışında çağrılır; içinden cache'e erişmek güvenlidir.
func (c *TTLCache[K, V]) OnEvict(fn func(key K, value V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get, süresi dolmamış değeri döner. Süresi dolmuşsa entry hemen çıkarılır.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		fn := c.onEvict
		c.mu.Unlock()
		if fn != nil {
			fn(key, e.value)
		}
		var zero V
		return zero, false
	}
	c.mu.Unlock()

	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set, cache'e bir değer yazar (TTL ile). Aynı key'de farklı bir eski değer
// varsa eski değer için OnEvict çağrılır; V bu yüzden comparable'dır.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	old, existed := c.entries[key]
	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
	fn := c.onEvict
	c.mu.Unlock()

	if existed && fn != nil && old.value != value {
		fn(key, old.value)
	}
}

// Delete, key'i siler ve OnEvict'i çağırır.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	e, ok := c.entries[key]
	delete(c.entries, key)
	fn := c.onEvict
	c.mu.Unlock()

	if ok && fn != nil {
		fn(key, e.value)
	}
}

// Len, cache'teki toplam entry sayısını döner (süresi dolmuşlar dahil).
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close, temizleme goroutine'ini durdurur ve kalan tüm entry'leri çıkarır.
// Birden fazla çağrılabilir.
func (c *TTLCache[K, V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)

		c.mu.Lock()
		remaining := c.entries
		c.entries = make(map[K]entry[V])
		fn := c.onEvict
		c.mu.Unlock()

		if fn != nil {
			for k, e := range remaining {
				fn(k, e.value)
			}
		}
	})
}

// evictExpired, süresi dolan entry'leri map'ten çıkarır.
func (c *TTLCache[K, V]) evictExpired() {
	c.mu.Lock()
	now := c.now()
	var evicted []pair[K, V]
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted = append(evicted, pair[K, V]{key, e.value})
		}
	}
	fn := c.onEvict
	c.mu.Unlock()

	if fn != nil {
		for _, e := range evicted {
			fn(e.key, e.value)
		}
	}
}
