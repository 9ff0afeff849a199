// Package gateway: sunucuyla konuşan tek giriş noktası (NetworkGateway).
//
// Her istek tam olarak BİR kez denenir: retry yok, backoff yok.
// Üst katmanlar (sync, voice, call) kendi retry mantığını yazmamalıdır;
// başarısız istek bir *Error olarak döner ve orada biter.
//
// Timeout'lar sabittir:
//   - bağlantı kurma (connect): 10 sn, net.Dialer.Timeout
//   - okuma (read): 10 sn; header için ResponseHeaderTimeout, gövde için
//     her Read'de sıfırlanan bir inaktivite timer'ı
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/akinalp/mqvi-client/metrics"
	"github.com/akinalp/mqvi-client/pkg"
)

// DefaultTimeout, hem connect hem read için kullanılan süre.
const DefaultTimeout = 10 * time.Second

// maxBodySize, JSON yanıtları için üst sınır. Ses indirme bu sınıra tabi değildir.
const maxBodySize = 8 * 1024 * 1024

// Error, başarısız bir gateway çağrısını anlatır.
//
// Kind her zaman pkg.ErrNetwork, pkg.ErrProtocol veya pkg.ErrParse'tır;
// Unwrap sayesinde çağıran taraf errors.Is(err, pkg.ErrNetwork) ile kategori sorar.
// Status, HTTP yanıtı hiç alınamadıysa 0'dır.
type Error struct {
	Status  int
	Message string
	Kind    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%v: HTTP %d: %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

// Unwrap, taksonomi sentinel'ini döner.
func (e *Error) Unwrap() error {
	return e.Kind
}

// Gateway, kimlik doğrulamalı istek/yanıt sarmalayıcısı.
type Gateway interface {
	// Send, JSON gövdeli (body nil ise gövdesiz) bir istek yapar ve
	// 2xx + parse edilebilir JSON yanıtı olduğu gibi döner.
	Send(ctx context.Context, method, path string, body any, token string) (json.RawMessage, error)

	// SendRaw, ham byte gövdesiyle istek yapar (ses upload'u).
	SendRaw(ctx context.Context, method, path, contentType string, body []byte, token string) (json.RawMessage, error)

	// Download, bir indirme referansına GET yapar ve ham byte'ları w'ye yazar.
	// ref mutlak URL ya da sunucuya göre relative path olabilir.
	Download(ctx context.Context, ref, token string, w io.Writer) (int64, error)
}

type httpGateway struct {
	baseURL     string
	client      *http.Client
	readTimeout time.Duration
	metrics     *metrics.Metrics
}

// New, constructor. timeout <= 0 ise DefaultTimeout kullanılır.
// m nil olabilir: metrik kapalıdır.
func New(baseURL string, timeout time.Duration, m *metrics.Metrics) Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}

	return &httpGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Client.Timeout bilerek yok: uzun ses indirmeleri toplam süreyle
		// değil, inaktivite ile sınırlanır.
		client:      &http.Client{Transport: transport},
		readTimeout: timeout,
		metrics:     m,
	}
}

func (g *httpGateway) Send(ctx context.Context, method, path string, body any, token string) (json.RawMessage, error) {
	var payload []byte
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Message: "encode request: " + err.Error(), Kind: pkg.ErrParse}
		}
		payload = encoded
		contentType = "application/json"
	}
	return g.do(ctx, method, path, contentType, payload, token)
}

func (g *httpGateway) SendRaw(ctx context.Context, method, path, contentType string, body []byte, token string) (json.RawMessage, error) {
	return g.do(ctx, method, path, contentType, body, token)
}

// do, tek bir JSON istek/yanıt döngüsü.
func (g *httpGateway) do(ctx context.Context, method, path, contentType string, payload []byte, token string) (json.RawMessage, error) {
	start := time.Now()

	raw, err := g.roundTrip(ctx, method, path, contentType, payload, token)

	g.metrics.ObserveRequest(method, outcomeOf(err), time.Since(start))
	if err != nil {
		log.Printf("[gateway] %s %s failed: %v", method, path, err)
	}
	return raw, err
}

func (g *httpGateway) roundTrip(ctx context.Context, method, path, contentType string, payload []byte, token string) (json.RawMessage, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.resolve(path), reqBody)
	if err != nil {
		return nil, &Error{Message: err.Error(), Kind: pkg.ErrNetwork}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	setAuth(req, token)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error(), Kind: pkg.ErrNetwork}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(g.idleReader(resp.Body, cancel), maxBodySize))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: err.Error(), Kind: pkg.ErrNetwork}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: pkg.ErrorMessage(body, pkg.DefaultErrorMessage),
			Kind:    pkg.ErrProtocol,
		}
	}

	if !json.Valid(body) {
		return nil, &Error{Status: resp.StatusCode, Message: "response is not valid JSON", Kind: pkg.ErrParse}
	}

	// Her yanıt {success, ...} zarfındadır. Açıkça success:false gelen 2xx
	// yanıt da protokol hatasıdır; success alanı hiç yoksa yanıt olduğu gibi döner.
	var envelope struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Success != nil && !*envelope.Success {
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: pkg.ErrorMessage(body, pkg.DefaultErrorMessage),
			Kind:    pkg.ErrProtocol,
		}
	}

	return json.RawMessage(body), nil
}

func (g *httpGateway) Download(ctx context.Context, ref, token string, w io.Writer) (int64, error) {
	start := time.Now()
	n, err := g.download(ctx, ref, token, w)
	g.metrics.ObserveRequest(http.MethodGet, outcomeOf(err), time.Since(start))
	if err != nil {
		log.Printf("[gateway] download %s failed: %v", ref, err)
	}
	return n, err
}

func (g *httpGateway) download(ctx context.Context, ref, token string, w io.Writer) (int64, error) {
	if strings.TrimSpace(ref) == "" {
		return 0, &Error{Message: "empty download reference", Kind: pkg.ErrProtocol}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.resolve(ref), nil)
	if err != nil {
		return 0, &Error{Message: err.Error(), Kind: pkg.ErrNetwork}
	}
	setAuth(req, token)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, &Error{Message: err.Error(), Kind: pkg.ErrNetwork}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return 0, &Error{
			Status:  resp.StatusCode,
			Message: pkg.ErrorMessage(body, pkg.DefaultErrorMessage),
			Kind:    pkg.ErrProtocol,
		}
	}

	n, err := io.Copy(w, g.idleReader(resp.Body, cancel))
	if err != nil {
		return n, &Error{Status: resp.StatusCode, Message: err.Error(), Kind: pkg.ErrNetwork}
	}
	return n, nil
}

// resolve, relative path'i base URL'e bağlar. Mutlak URL'ler olduğu gibi kalır.
func (g *httpGateway) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return g.baseURL + path
}

// idleReader, gövdeyi her Read'de sıfırlanan bir timer ile sarar.
// readTimeout boyunca hiç byte gelmezse istek context'i iptal edilir.
func (g *httpGateway) idleReader(r io.Reader, cancel context.CancelFunc) io.Reader {
	return &idleTimeoutReader{
		r:       r,
		timeout: g.readTimeout,
		timer:   time.AfterFunc(g.readTimeout, cancel),
	}
}

type idleTimeoutReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func (t *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil {
		t.timer.Stop()
		return n, err
	}
	t.timer.Reset(t.timeout)
	return n, nil
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// outcomeOf, metrik label'ı için hatanın kategorisini döner.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pkg.ErrNetwork):
		return "network"
	case errors.Is(err, pkg.ErrProtocol):
		return "protocol"
	case errors.Is(err, pkg.ErrParse):
		return "parse"
	}
	return "error"
}

// Decode, başarılı bir yanıtı hedef struct'a çözer. Şekil uyuşmazlığı ErrParse'tır.
func Decode(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{Message: err.Error(), Kind: pkg.ErrParse}
	}
	return nil
}

// UserMessage, hatadan kullanıcıya gösterilecek kısa metni çıkarır.
func UserMessage(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
