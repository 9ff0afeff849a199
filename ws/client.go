package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/mqvi-client/metrics"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir kontrol mesajını (ping/close) yazmak için maksimum süre.
	writeWait = 10 * time.Second

	// pongWait: Sunucudan pong (veya herhangi bir mesaj) beklenen maksimum süre.
	// Bu sürede hiçbir şey gelmezse bağlantı kopmuş sayılır ve yeniden kurulur.
	pongWait = 60 * time.Second

	// pingPeriod: Ping aralığı: pongWait'ten kısa olmalı.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize: Sunucudan kabul edilen en büyük push mesajı (byte).
	maxMessageSize = 64 * 1024

	// handshakeTimeout: WS upgrade handshake'i için süre (HTTP connect ile aynı).
	handshakeTimeout = 10 * time.Second
)

// DefaultReconnectDelay, bağlantı koptuğunda tekrar denemeden önce beklenen süre.
const DefaultReconnectDelay = 3 * time.Second

// Client, sunucunun push kanalına açılan tek WebSocket bağlantısını yönetir.
//
// Her bağlantı için iki goroutine çalışır:
//   - readPump: gelen mesajları okur → PushEvent'e çevirir → publisher'a iletir
//   - pingPump: periyodik ping yollar, pong deadline'ı yeniler
//
// gorilla/websocket aynı anda en fazla bir okuyucu ve bir yazıcı destekler;
// tek yazıcı pingPump olduğu halde Close ile yarışmasın diye yazmalar mutex'lidir.
type Client struct {
	url            string
	token          string
	publisher      EventPublisher
	reconnectDelay time.Duration
	metrics        *metrics.Metrics
	dialer         *websocket.Dialer

	mu   sync.Mutex // conn ve yazma işlemlerini korur
	conn *websocket.Conn

	// onConnect/onDisconnect: bağlantı durumu değişince çağrılır (notice gösterimi için).
	onConnect    func()
	onDisconnect func(err error)
}

// ClientOption, Client'ı yapılandıran fonksiyonel opsiyon.
type ClientOption func(*Client)

// WithReconnectDelay, yeniden bağlanma bekleme süresini ayarlar.
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithMetrics, reconnect sayacını bağlar.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithConnectionCallbacks, bağlantı kuruldu/koptu callback'lerini bağlar.
func WithConnectionCallbacks(onConnect func(), onDisconnect func(err error)) ClientOption {
	return func(c *Client) {
		c.onConnect = onConnect
		c.onDisconnect = onDisconnect
	}
}

// NewClient, constructor. url "ws://" veya "wss://" ile başlamalı; "http(s)://"
// verilirse şema dönüştürülür.
func NewClient(url, token string, publisher EventPublisher, opts ...ClientOption) *Client {
	c := &Client{
		url:            ToWebSocketURL(url),
		token:          token,
		publisher:      publisher,
		reconnectDelay: DefaultReconnectDelay,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ToWebSocketURL, http(s) şemasını ws(s)'e çevirir.
func ToWebSocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Run, ctx iptal edilene kadar bağlı kalmaya çalışır.
// Her kopuşta reconnectDelay kadar bekler ve yeniden dener; ctx iptali dışında dönmez.
func (c *Client) Run(ctx context.Context) {
	for {
		err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			log.Printf("[ws] connection lost: %v", err)
		}
		if c.onDisconnect != nil {
			c.onDisconnect(err)
		}

		c.metrics.ObserveReconnect()
		select {
		case <-time.After(c.reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// connectAndServe, tek bir bağlantı ömrünü yönetir: dial → pump'lar → kapanış.
func (c *Client) connectAndServe(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			log.Printf("[ws] handshake rejected: HTTP %d", resp.StatusCode)
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	log.Printf("[ws] connected to %s", c.url)
	if c.onConnect != nil {
		c.onConnect()
	}

	// ctx iptalinde bağlantıyı kapat: readPump'ın ReadMessage'ı hata ile döner.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.closeConn()
		case <-stop:
		}
	}()

	go c.pingPump(stop)

	err = c.readPump(conn)
	c.closeConn()
	return err
}

// readPump, bağlantıdan gelen mesajları okur. Bağlantı kapanınca hata ile döner.
func (c *Client) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		// Herhangi bir mesaj da canlılık sinyalidir
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return err
		}

		event, err := DecodePushEvent(raw)
		if err != nil {
			log.Printf("[ws] invalid push event: %v", err)
			continue
		}
		c.metrics.ObservePush(event.Type)
		c.publisher.Publish(event)
	}
}

// pingPump, stop kapanana kadar periyodik ping yollar.
func (c *Client) pingPump(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// writeControl, mutex altında kontrol mesajı yazar.
func (c *Client) writeControl(messageType int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.conn.WriteControl(messageType, nil, time.Now().Add(writeWait))
}

// closeConn, aktif bağlantıyı (varsa) düzgünce kapatır. Birden fazla çağrılabilir.
func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.conn.Close()
	c.conn = nil
}
