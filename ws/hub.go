package ws

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// subscriberBufferSize, her aboneye ait kuyruğun boyutu.
// Kuyruk doluysa (abone yavaş) event o abone için düşürülür: diğerleri etkilenmez.
const subscriberBufferSize = 64

// EventPublisher, push event'lerini Hub'a teslim eden taraf (Client) için interface.
//
// Dependency Inversion: Client, Hub'ın concrete struct'ına değil bu interface'e
// bağımlıdır; testlerde bir slice'a yazan sahte publisher kullanılabilir.
type EventPublisher interface {
	Publish(event PushEvent)
}

// Subscriber, belirli bir event tipini dinleyen taraf.
type Subscriber interface {
	HandlePushEvent(event PushEvent)
}

// SubscriberFunc, düz bir fonksiyonu Subscriber'a çevirir (http.HandlerFunc gibi).
type SubscriberFunc func(event PushEvent)

// HandlePushEvent, f(event) çağırır.
func (f SubscriberFunc) HandlePushEvent(event PushEvent) { f(event) }

// subscription, Hub içindeki tek bir abonelik kaydı.
type subscription struct {
	eventType string
	sub       Subscriber
	send      chan PushEvent
	added     chan struct{} // Run aboneliği map'e ekleyince kapanır
	done      chan struct{}
}

// Hub, gelen push event'lerini tipine göre abonelere dağıtan merkezi yapıdır.
//
// Hub.Run() goroutine'i register/unregister channel'larını select ile okur;
// abone listesi ayrıca RWMutex ile korunur çünkü Publish okuma ağırlıklıdır.
// Her aboneliğin kendi pump goroutine'i vardır: yavaş bir abone (ör. diske
// snapshot yazan transcript) diğerlerini bloklamaz.
type Hub struct {
	subs map[string]map[*subscription]bool
	mu   sync.RWMutex

	register   chan *subscription
	unregister chan *subscription

	// stopped: Run bittiğinde kapanır; sonradan gelen Subscribe/unsubscribe bloklamaz.
	stopped chan struct{}

	// seq: dağıtılan her event'e verilen artan sayaç.
	seq atomic.Int64
}

// NewHub, yeni bir Hub oluşturur.
func NewHub() *Hub {
	return &Hub{
		subs:       make(map[string]map[*subscription]bool),
		register:   make(chan *subscription),
		unregister: make(chan *subscription),
		stopped:    make(chan struct{}),
	}
}

// Run, Hub'ın ana event loop'udur. ctx iptal edilince tüm abonelikler kapatılır.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case s := <-h.register:
			h.addSubscription(s)

		case s := <-h.unregister:
			h.removeSubscription(s)

		case <-ctx.Done():
			close(h.stopped)
			h.shutdown()
			return
		}
	}
}

// Subscribe, eventType tipindeki event'ler için abone ekler.
// Dönen fonksiyon aboneliği iptal eder; birden fazla çağrılması güvenlidir.
// Run henüz başlamadıysa Subscribe bloklar: önce `go hub.Run(ctx)` yapılmalı.
func (h *Hub) Subscribe(eventType string, sub Subscriber) (unsubscribe func()) {
	s := &subscription{
		eventType: eventType,
		sub:       sub,
		send:      make(chan PushEvent, subscriberBufferSize),
		added:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.pump()

	// Subscribe döndüğünde abonelik aktif olmalı: hemen ardından gelen
	// Publish kaçırılmasın.
	select {
	case h.register <- s:
		<-s.added
	case <-h.stopped:
		close(s.send)
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			select {
			case h.unregister <- s:
			case <-h.stopped:
			}
		})
	}
}

// Publish, event'i o tipe abone olan herkese iletir. Bloklamaz.
func (h *Hub) Publish(event PushEvent) {
	event.Seq = h.seq.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[event.Type] {
		select {
		case s.send <- event:
		default:
			// Kuyruk dolu: bu abone yavaş, event'i onun için düşür
			log.Printf("[ws] subscriber queue full for type=%s, dropping seq=%d", event.Type, event.Seq)
		}
	}
}

// SubscriberCount, bir event tipine kaç abone olduğunu döner.
func (h *Hub) SubscriberCount(eventType string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[eventType])
}

func (h *Hub) addSubscription(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s.eventType]; !ok {
		h.subs[s.eventType] = make(map[*subscription]bool)
	}
	h.subs[s.eventType][s] = true
	close(s.added)
}

func (h *Hub) removeSubscription(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[s.eventType]; ok {
		if _, exists := set[s]; exists {
			delete(set, s)
			close(s.send)
			if len(set) == 0 {
				delete(h.subs, s.eventType)
			}
		}
	}
}

// shutdown, tüm abonelerin kuyruklarını kapatır ve pump'ların bitmesini bekler.
func (h *Hub) shutdown() {
	h.mu.Lock()
	all := make([]*subscription, 0)
	for _, set := range h.subs {
		for s := range set {
			close(s.send)
			all = append(all, s)
		}
	}
	h.subs = make(map[string]map[*subscription]bool)
	h.mu.Unlock()

	for _, s := range all {
		<-s.done
	}
	log.Println("[ws] hub shut down, all subscriptions closed")
}

// pump, aboneliğin kuyruğunu boşaltır. send kapanınca biter.
func (s *subscription) pump() {
	defer close(s.done)
	for event := range s.send {
		s.sub.HandlePushEvent(event)
	}
}
