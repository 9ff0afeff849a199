package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher, Publish edilen event'leri biriktirir.
type recordingPublisher struct {
	mu     sync.Mutex
	events []PushEvent
}

func (p *recordingPublisher) Publish(ev PushEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) snapshot() []PushEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PushEvent(nil), p.events...)
}

func TestDecodePushEventNewMessage(t *testing.T) {
	ev, err := DecodePushEvent([]byte(`{"type":"message","action":"new","id":"m1","from":"bob","text":"yo","ts":1700000000000,"channel":"general"}`))
	require.NoError(t, err)
	assert.True(t, ev.IsNewMessage())

	msg := ev.Message()
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "bob", msg.From)
	assert.Equal(t, int64(1700000000000), msg.Timestamp)
	assert.Equal(t, "general", msg.Channel)
}

func TestDecodePushEventRejectsMissingType(t *testing.T) {
	_, err := DecodePushEvent([]byte(`{"action":"new"}`))
	assert.Error(t, err)

	_, err = DecodePushEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestHubDispatchesByType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	messages := make(chan PushEvent, 4)
	signals := make(chan PushEvent, 4)
	hub.Subscribe(TypeMessage, SubscriberFunc(func(ev PushEvent) { messages <- ev }))
	hub.Subscribe(TypeWebRTC, SubscriberFunc(func(ev PushEvent) { signals <- ev }))

	hub.Publish(PushEvent{Type: TypeMessage, Action: ActionNew, ID: "m1"})
	hub.Publish(PushEvent{Type: TypeWebRTC, Action: ActionEndCall, From: "bob"})

	select {
	case ev := <-messages:
		assert.Equal(t, "m1", ev.ID)
		assert.Positive(t, ev.Seq)
	case <-time.After(time.Second):
		t.Fatal("message event not delivered")
	}

	select {
	case ev := <-signals:
		assert.Equal(t, ActionEndCall, ev.Action)
	case <-time.After(time.Second):
		t.Fatal("webrtc event not delivered")
	}

	assert.Empty(t, messages)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	got := make(chan PushEvent, 4)
	unsubscribe := hub.Subscribe(TypeMessage, SubscriberFunc(func(ev PushEvent) { got <- ev }))
	require.Equal(t, 1, hub.SubscriberCount(TypeMessage))

	unsubscribe()
	unsubscribe() // ikinci çağrı zararsız

	require.Eventually(t, func() bool { return hub.SubscriberCount(TypeMessage) == 0 },
		time.Second, 10*time.Millisecond)

	hub.Publish(PushEvent{Type: TypeMessage, Action: ActionNew, ID: "m1"})
	select {
	case <-got:
		t.Fatal("unsubscribed handler received event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSubscribeAfterShutdownDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	unsubscribe := hub.Subscribe(TypeMessage, SubscriberFunc(func(PushEvent) {}))
	unsubscribe()
}

func TestClientReceivesAndPublishesEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	authSeen := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authSeen <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","action":"new","id":"m9","channel":"general","from":"bob","text":"hey","ts":5}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"webrtc","action":"end-call","from":"bob"}`))

		// İstemci kapatana kadar açık tut
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(srv.URL, "tok", pub, WithReconnectDelay(20*time.Millisecond))

	done := make(chan struct{})
	go func() {
		client.Run(ctx)
		close(done)
	}()

	assert.Equal(t, "Bearer tok", <-authSeen)
	require.Eventually(t, func() bool { return len(pub.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	events := pub.snapshot()
	assert.Equal(t, "m9", events[0].ID)
	assert.Equal(t, TypeWebRTC, events[1].Type)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop after cancel")
	}
}

func TestClientReconnectsAfterServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	connects := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connects++
		mu.Unlock()
		// Hemen kapat: istemci yeniden bağlanmalı
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewClient(srv.URL, "", &recordingPublisher{}, WithReconnectDelay(10*time.Millisecond))
	go client.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestToWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://host:3000/ws", ToWebSocketURL("http://host:3000/ws"))
	assert.Equal(t, "wss://host/ws", ToWebSocketURL("https://host/ws"))
	assert.Equal(t, "ws://already", ToWebSocketURL("ws://already"))
}
