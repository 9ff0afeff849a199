// Package main: Observer ve bağlantı callback'leri.
//
// Servisler sonuçlarını services.Observer üzerinden bildirir; terminalde
// bunları satır satır yazan tek implementasyon terminalObserver'dır.
// Callback'ler farklı goroutine'lerden gelir, yazmalar mutex ile sıralanır.
package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg/i18n"
	"github.com/akinalp/mqvi-client/services"
)

// terminalObserver, observer callback'lerini terminale yazar.
type terminalObserver struct {
	out io.Writer
	loc *i18n.Localizer

	mu       sync.Mutex
	seen     map[string]bool // yazdırılmış mesaj ID'leri
	playing  map[string]models.PlaybackState
	lastCall models.CallState
}

func newTerminalObserver(out io.Writer, loc *i18n.Localizer) *terminalObserver {
	return &terminalObserver{
		out:     out,
		loc:     loc,
		seen:    make(map[string]bool),
		playing: make(map[string]models.PlaybackState),
	}
}

// OnTranscript, sadece daha önce yazılmamış mesajları basar.
// Wholesale replace'te aynı mesajlar tekrar gelir; tekrar basılmazlar.
func (o *terminalObserver) OnTranscript(channel string, msgs []models.Message, appended bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, m := range msgs {
		if o.seen[m.ID] {
			continue
		}
		o.seen[m.ID] = true
		fmt.Fprintln(o.out, formatMessage(m))
	}
}

func (o *terminalObserver) OnNotice(n services.Notice) {
	text := o.loc.TWithParams(n.Key, n.Params)

	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, "* %s\n", text)
}

func (o *terminalObserver) OnRecordState(state models.RecordState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, "* [voice] %s\n", state)
}

// OnPlayback, sadece state değişimlerini yazar; 100ms'lik progress
// tick'leri terminali doldurmasın diye yutulur.
func (o *terminalObserver) OnPlayback(messageID string, state models.PlaybackState, progress int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.playing[messageID] == state {
		return
	}
	o.playing[messageID] = state
	if state == models.PlaybackStateIdle || state == models.PlaybackStateStopped {
		delete(o.playing, messageID)
	}
	fmt.Fprintf(o.out, "* [play %s] %s %d%%\n", messageID, state, progress)
}

func (o *terminalObserver) OnCallState(session models.CallSession) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if session.State == o.lastCall && !session.State.IsTerminal() {
		return
	}
	o.lastCall = session.State
	muted := ""
	if session.Muted {
		muted = " (muted)"
	}
	fmt.Fprintf(o.out, "* [call %s] %s %s%s\n", session.RemoteUser, session.Role, session.State, muted)
}

// printf, diğer callback'lerle sıralı yazar.
func (o *terminalObserver) printf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, format, args...)
}

// notice, bir i18n anahtarını doğrudan yazar.
func (o *terminalObserver) notice(key string, params map[string]string) {
	o.OnNotice(services.Notice{Key: key, Params: params})
}

// formatMessage, "[15:04] alice: merhaba" biçiminde tek satır üretir.
// Sesli mesajlarda ID ve süre eklenir ki /play ile çalınabilsin.
func formatMessage(m models.Message) string {
	ts := time.UnixMilli(m.Timestamp).Format("15:04")
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", ts, m.From, m.Text)
	if m.Voice != nil {
		fmt.Fprintf(&b, " [voice %s, %ds]", m.ID, m.Voice.DurationSeconds)
	}
	return b.String()
}

// ─── WebSocket bağlantı callback'leri ───

// connectionCallbacks, ws.Client'ın bağlandı/koptu olaylarını bildirime çevirir.
// Aynı durum art arda bildirilmez; her reconnect denemesi ekrana düşmez.
func connectionCallbacks(obs *terminalObserver) (onConnect func(), onDisconnect func(error)) {
	var (
		mu        sync.Mutex
		connected bool
	)

	onConnect = func() {
		mu.Lock()
		changed := !connected
		connected = true
		mu.Unlock()
		if changed {
			obs.notice("session.connected", nil)
		}
	}
	onDisconnect = func(error) {
		mu.Lock()
		changed := connected
		connected = false
		mu.Unlock()
		if changed {
			obs.notice("session.disconnected", nil)
		}
	}
	return onConnect, onDisconnect
}
