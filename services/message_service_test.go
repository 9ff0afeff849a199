package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/pkg/ratelimit"
)

func TestSendRejectsBlankTextWithoutNetwork(t *testing.T) {
	fs := newFakeServer(t)
	svc := NewMessageService(fs.gateway(), nil, nil, "general", "tok")

	for _, text := range []string{"", "   ", "\n\t"} {
		err := svc.Send(context.Background(), text)
		assert.True(t, errors.Is(err, pkg.ErrBadRequest), "text %q", text)
	}

	err := svc.Send(context.Background(), strings.Repeat("a", models.MaxMessageLength+1))
	assert.True(t, errors.Is(err, pkg.ErrBadRequest))

	assert.Zero(t, fs.count())
}

func TestSendThenRefreshShowsMessage(t *testing.T) {
	fs := newFakeServer(t)
	m1 := models.Message{ID: "m1", Channel: "general", From: "alice", Text: "hello", Timestamp: 1700000000000}

	var sent atomic.Bool
	fs.handle(http.MethodPost, "/api/message", func(w http.ResponseWriter, r *http.Request) {
		sent.Store(true)
		w.Write([]byte(`{"success":true}`))
	})
	fs.handle(http.MethodGet, "/api/messages", func(w http.ResponseWriter, r *http.Request) {
		if !sent.Load() {
			w.Write([]byte(`{"success":true,"messages":[]}`))
			return
		}
		w.Write([]byte(messagesJSON(m1)))
	})

	obs := &recordingObserver{}
	transcript := NewTranscriptService(fs.gateway(), nil, obs, nil, TranscriptConfig{Channel: "general", Token: "tok", Interval: time.Hour})
	svc := NewMessageService(fs.gateway(), transcript, nil, "general", "tok")

	require.NoError(t, svc.Send(context.Background(), "  hello  "))

	post := fs.calls(http.MethodPost, "/api/message")
	require.Len(t, post, 1)
	body := decodeBody(t, post[0])
	assert.Equal(t, "general", body["channel"])
	assert.Equal(t, "hello", body["text"])
	assert.NotContains(t, body, "voiceMessage")

	assert.Equal(t, models.Transcript{m1}, transcript.Transcript())
	assert.Equal(t, 1, obs.transcriptCount())
	assert.True(t, obs.lastTranscript().Appended)
}

func TestSendSurfacesServerError(t *testing.T) {
	fs := newFakeServer(t)
	fs.respond(http.MethodPost, "/api/message", http.StatusForbidden, `{"success":false,"error":"not a member"}`)
	refresher := &countingRefresher{}
	svc := NewMessageService(fs.gateway(), refresher, nil, "general", "tok")

	err := svc.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkg.ErrProtocol))
	assert.Contains(t, err.Error(), "not a member")
	assert.Zero(t, refresher.count(), "failed send does not refresh")
}

func TestSendRefreshFailureDoesNotFailSend(t *testing.T) {
	fs := newFakeServer(t)
	fs.respond(http.MethodPost, "/api/message", http.StatusOK, `{"success":true}`)
	refresher := &countingRefresher{err: errors.New("boom")}
	svc := NewMessageService(fs.gateway(), refresher, nil, "general", "tok")

	require.NoError(t, svc.Send(context.Background(), "hi"))
	assert.Equal(t, 1, refresher.count())
}

func TestSendThrottled(t *testing.T) {
	fs := newFakeServer(t)
	fs.respond(http.MethodPost, "/api/message", http.StatusOK, `{"success":true}`)
	throttle := ratelimit.NewSendThrottle(2, time.Minute, time.Minute)
	svc := NewMessageService(fs.gateway(), nil, throttle, "general", "tok")

	require.NoError(t, svc.Send(context.Background(), "one"))
	require.NoError(t, svc.Send(context.Background(), "two"))
	err := svc.Send(context.Background(), "three")
	assert.True(t, errors.Is(err, pkg.ErrThrottled))
	assert.Len(t, fs.calls(http.MethodPost, "/api/message"), 2)
}
