package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-client/metrics"
	"github.com/akinalp/mqvi-client/pkg"
)

func TestSendAttachesBearerAndJSONBody(t *testing.T) {
	var gotAuth, gotType string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"id":"m1"}`))
	}))
	defer srv.Close()

	gw := New(srv.URL, time.Second, nil)
	raw, err := gw.Send(context.Background(), http.MethodPost, "/api/message",
		map[string]string{"channel": "general", "text": "hi"}, "tok")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "general", gotBody["channel"])
	assert.JSONEq(t, `{"success":true,"id":"m1"}`, string(raw))
}

func TestSendWithoutTokenOmitsAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Send(context.Background(), http.MethodGet, "/api/channels", nil, "")
	require.NoError(t, err)
}

func TestSendNon2xxCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false,"error":"not a member"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Send(context.Background(), http.MethodGet, "/api/messages", nil, "tok")
	require.Error(t, err)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusForbidden, gwErr.Status)
	assert.Equal(t, "not a member", gwErr.Message)
	assert.ErrorIs(t, err, pkg.ErrProtocol)
}

func TestSendNon2xxWithoutErrorFieldUsesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Send(context.Background(), http.MethodGet, "/x", nil, "")
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, pkg.DefaultErrorMessage, gwErr.Message)
}

func TestSendSuccessFalseIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"channel gone"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Send(context.Background(), http.MethodPost, "/api/message", map[string]string{}, "")
	assert.ErrorIs(t, err, pkg.ErrProtocol)
	assert.Equal(t, "channel gone", UserMessage(err))
}

func TestSendUnparseableBodyIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":tru`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Send(context.Background(), http.MethodGet, "/x", nil, "")
	assert.ErrorIs(t, err, pkg.ErrParse)
}

func TestSendConnectionRefusedIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second, nil).Send(context.Background(), http.MethodGet, "/x", nil, "")
	assert.ErrorIs(t, err, pkg.ErrNetwork)
}

func TestSendMakesExactlyOneAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).Send(context.Background(), http.MethodGet, "/x", nil, "")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSendReadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := New(srv.URL, 100*time.Millisecond, nil).Send(context.Background(), http.MethodGet, "/slow", nil, "")
	assert.ErrorIs(t, err, pkg.ErrNetwork)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendRawUsesGivenContentType(t *testing.T) {
	payload := []byte("RIFF....WAVE")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload/voice/v1", r.URL.Path)
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, payload, body)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second, nil).SendRaw(context.Background(), http.MethodPost, "/api/upload/voice/v1", "audio/wav", payload, "tok")
	require.NoError(t, err)
}

func TestDownloadRelativeAndAbsoluteRefs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	gw := New(srv.URL, time.Second, nil)

	var buf bytes.Buffer
	n, err := gw.Download(context.Background(), "/api/voice/v1", "tok", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, "audio-bytes", buf.String())

	buf.Reset()
	_, err = gw.Download(context.Background(), srv.URL+"/api/voice/v1", "tok", &buf)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", buf.String())
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"voice not found"}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := New(srv.URL, time.Second, nil).Download(context.Background(), "/api/voice/x", "", &buf)
	assert.ErrorIs(t, err, pkg.ErrProtocol)
	assert.Equal(t, "voice not found", UserMessage(err))
	assert.Zero(t, buf.Len())
}

func TestRequestsAreCountedInMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	m := metrics.New()
	gw := New(srv.URL, time.Second, m)
	for i := 0; i < 3; i++ {
		_, err := gw.Send(context.Background(), http.MethodGet, "/x", nil, "")
		require.NoError(t, err)
	}

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() == metrics.NameRequests {
			for _, metric := range f.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(3), total)
}

func TestNewDefaultsToFixedTimeouts(t *testing.T) {
	g := New("http://example.invalid/", 0, nil).(*httpGateway)
	assert.Equal(t, DefaultTimeout, g.readTimeout)
	assert.Equal(t, 10*time.Second, g.client.Transport.(*http.Transport).ResponseHeaderTimeout)
	assert.Equal(t, "http://example.invalid", g.baseURL)
}
