package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/mqvi-client/media"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/ws"
)

func newTestSession(t *testing.T, fs *fakeServer, hub *ws.Hub, obs Observer) *ChatSession {
	t.Helper()
	session, err := NewChatSession(ChatSessionDeps{
		Gateway:     fs.gateway(),
		Hub:         hub,
		Peers:       &fakeFactory{},
		Permission:  media.NewStaticPermission(true, true),
		NewRecorder: func() media.Recorder { return &fakeRecorder{} },
		NewPlayer:   (&playerPool{}).factory(),
		Observer:    obs,
	}, ChatSessionConfig{
		Channel:      "general",
		Token:        "tok",
		LocalUser:    "alice",
		SyncInterval: time.Hour,
		DataDir:      t.TempDir(),
	})
	require.NoError(t, err)
	return session
}

func TestNewChatSessionRequiresChannel(t *testing.T) {
	_, err := NewChatSession(ChatSessionDeps{}, ChatSessionConfig{})
	assert.True(t, errors.Is(err, pkg.ErrBadRequest))
}

func TestChatSessionRoutesPushEvents(t *testing.T) {
	fs := newFakeServer(t)
	fs.respond(http.MethodGet, "/api/messages", http.StatusOK, `{"success":true,"messages":[]}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := ws.NewHub()
	go hub.Run(ctx)

	obs := &recordingObserver{}
	session := newTestSession(t, fs, hub, obs)
	session.Open()
	session.Open()
	defer session.Close()

	assert.Equal(t, 1, hub.SubscriberCount(ws.TypeMessage))
	assert.Equal(t, 1, hub.SubscriberCount(ws.TypeWebRTC))

	hub.Publish(ws.PushEvent{Type: ws.TypeMessage, Action: ws.ActionNew, ID: "p1", From: "bob", Text: "hey", TS: 10, Channel: "general"})
	hub.Publish(ws.PushEvent{Type: ws.TypeWebRTC, Action: ws.ActionOffer, From: "bob"})

	require.Eventually(t, func() bool { return session.Transcript.Transcript().Contains("p1") }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		s, ok := session.Calls.Active()
		return ok && s.State == models.CallStateIncomingRinging
	}, 2*time.Second, 5*time.Millisecond)
}

func TestChatSessionCloseUnsubscribesAndIsIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	fs.respond(http.MethodGet, "/api/messages", http.StatusOK, `{"success":true,"messages":[]}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := ws.NewHub()
	go hub.Run(ctx)

	session := newTestSession(t, fs, hub, nil)
	session.Open()
	session.Close()
	session.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(ws.TypeMessage) == 0 && hub.SubscriberCount(ws.TypeWebRTC) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestToggleVoiceLooksUpTranscript(t *testing.T) {
	fs := newFakeServer(t)
	fs.respond(http.MethodGet, "/api/messages", http.StatusOK, messagesJSON(
		models.Message{ID: "t1", Channel: "general", From: "bob", Text: "plain", Timestamp: 1},
	))
	obs := &recordingObserver{}
	session := newTestSession(t, fs, nil, obs)
	defer session.Close()

	require.NoError(t, session.Transcript.Refresh(context.Background()))

	err := session.ToggleVoice(context.Background(), "nope")
	assert.True(t, errors.Is(err, pkg.ErrNotFound))

	err = session.ToggleVoice(context.Background(), "t1")
	assert.True(t, errors.Is(err, pkg.ErrBadRequest))
	assert.Contains(t, obs.noticeKeys(), "voice.notVoice")
}
