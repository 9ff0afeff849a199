// Package main: Etkileşimli terminal döngüsü.
//
// Her satır ya bir komuttur ("/" ile başlar) ya da kanala gönderilecek
// metin mesajıdır. Komutlar ayrı goroutine'de çalışır; upload veya arama
// kurulumu sürerken yeni satır okunmaya devam eder. Mikrofon izni sorusu
// açıksa bir sonraki satır o soruya cevap olarak tüketilir.
package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/akinalp/mqvi-client/media"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/services"
)

const helpText = `Commands:
  /help                 show this help
  /record               start recording a voice message
  /stop                 stop recording and send it
  /cancel               discard the current recording
  /play <id>            play or stop a voice message
  /call [user]          call a user (defaults to the first channel member)
  /answer [user]        answer the incoming call
  /hangup               end the current call
  /mute                 toggle microphone during a call
  /refresh              fetch the transcript now
  /members              list channel members
  /join <channel>       switch to another channel
  /quit                 exit
Any other line is sent as a message.`

// terminal, stdin satırlarını ChatSession işlemlerine çevirir.
type terminal struct {
	app  *App
	obs  *terminalObserver
	in   io.Reader
	perm *media.PromptPermission // verilen izin kanal değişse de hatırlanır

	mu      sync.Mutex
	session *services.ChatSession
	pending chan bool // açık izin sorusunun cevap kanalı

	wg sync.WaitGroup
}

func newTerminal(app *App, obs *terminalObserver, in io.Reader) *terminal {
	t := &terminal{app: app, obs: obs, in: in}
	t.perm = &media.PromptPermission{Ask: t.askPermission}
	return t
}

// askPermission, media.PromptPermission.Ask olarak kullanılır.
// Soru terminale yazılır; cevap run döngüsünün okuduğu bir sonraki satırdır.
func (t *terminal) askPermission(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)

	t.obs.notice("session.permissionPrompt", nil)

	t.mu.Lock()
	t.pending = reply
	t.mu.Unlock()

	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		t.mu.Lock()
		if t.pending == reply {
			t.pending = nil
		}
		t.mu.Unlock()
		return false, ctx.Err()
	}
}

// current, aktif oturumu döner.
func (t *terminal) current() *services.ChatSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// swap, aktif oturumu değiştirir ve eskisini döner.
func (t *terminal) swap(s *services.ChatSession) *services.ChatSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	old := t.session
	t.session = s
	return old
}

// run, stdin kapanana, /quit gelene ya da ctx iptal edilene kadar döner.
// Dönmeden önce çalışan komutların bitmesini bekler.
func (t *terminal) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		t.wg.Wait()
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if t.answerPending(line) {
				continue
			}
			if !t.handleLine(ctx, line) {
				return
			}
		}
	}
}

// answerPending, açık bir izin sorusu varsa satırı cevap olarak tüketir.
func (t *terminal) answerPending(line string) bool {
	t.mu.Lock()
	reply := t.pending
	t.pending = nil
	t.mu.Unlock()

	if reply == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "e", "evet":
		reply <- true
	default:
		reply <- false
	}
	return true
}

// handleLine, tek bir satırı işler. false dönerse döngü biter.
func (t *terminal) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		t.async(func() { t.send(ctx, line) })
		return true
	}

	fields := strings.Fields(line)
	cmd, arg := fields[0], ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	session := t.current()
	switch cmd {
	case "/quit", "/exit":
		return false
	case "/help":
		t.obs.printf("%s\n", helpText)
	case "/record":
		t.async(func() { t.logErr("record", session.Voice.StartRecording(ctx)) })
	case "/stop":
		t.async(func() { t.logErr("stop", session.Voice.StopRecording(ctx)) })
	case "/cancel":
		session.Voice.CancelRecording()
	case "/play":
		if arg == "" {
			t.obs.printf("usage: /play <id>\n")
			return true
		}
		t.async(func() { t.report(session.ToggleVoice(ctx, arg)) })
	case "/call":
		t.async(func() { t.call(ctx, session, arg) })
	case "/answer":
		t.async(func() { t.answer(ctx, session, arg) })
	case "/hangup":
		t.async(func() { t.logErr("hangup", session.Calls.EndCall(ctx)) })
	case "/mute":
		if _, err := session.Calls.ToggleMute(); err != nil {
			t.report(err)
		}
	case "/refresh":
		t.async(func() { t.report(session.Transcript.Refresh(ctx)) })
	case "/members":
		t.async(func() { t.members(ctx, session) })
	case "/join":
		if arg == "" {
			t.obs.printf("usage: /join <channel>\n")
			return true
		}
		t.async(func() { t.join(ctx, arg) })
	default:
		t.obs.notice("session.unknownCommand", map[string]string{"command": cmd})
	}
	return true
}

func (t *terminal) async(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

// ─── Komutlar ───

func (t *terminal) send(ctx context.Context, text string) {
	session := t.current()
	err := session.Messages.Send(ctx, text)
	switch {
	case err == nil:
	case errors.Is(err, pkg.ErrBadRequest):
		key := "notice.emptyMessage"
		if utf8.RuneCountInString(strings.TrimSpace(text)) > models.MaxMessageLength {
			key = "notice.messageTooLong"
		}
		t.obs.notice(key, nil)
	case errors.Is(err, pkg.ErrThrottled):
		secs := int(t.app.Throttle.Remaining(session.Channel()).Seconds()) + 1
		t.obs.notice("notice.throttled", map[string]string{"seconds": strconv.Itoa(secs)})
	default:
		t.report(err)
	}
}

// call, hedef verilmezse kanal üyelerinden ilk uygun kişiyi arar.
func (t *terminal) call(ctx context.Context, session *services.ChatSession, target string) {
	if target == "" {
		candidates, err := t.app.Channels.CallCandidates(ctx, session.Channel(), session.LocalUser())
		if err != nil {
			t.report(err)
			return
		}
		if len(candidates) == 0 {
			t.obs.notice("call.noTargets", nil)
			return
		}
		target = candidates[0]
		if len(candidates) > 1 {
			t.obs.printf("* calling %s (others: %s)\n", target, strings.Join(candidates[1:], ", "))
		}
	}
	t.logErr("call", session.Calls.Call(ctx, target))
}

func (t *terminal) answer(ctx context.Context, session *services.ChatSession, from string) {
	err := session.Calls.Answer(ctx, from)
	if errors.Is(err, pkg.ErrInvalidState) {
		t.obs.notice("session.noRinging", nil)
		return
	}
	t.logErr("answer", err)
}

func (t *terminal) members(ctx context.Context, session *services.ChatSession) {
	members, err := t.app.Channels.Members(ctx, session.Channel())
	if err != nil {
		t.report(err)
		return
	}
	t.obs.printf("* #%s: %s\n", session.Channel(), strings.Join(members, ", "))
}

// join, sunucuda kanala katılır ve yeni oturumu açar. Eski oturum
// (kayıt, oynatma, arama dahil) yenisi açıldıktan sonra kapatılır.
func (t *terminal) join(ctx context.Context, channel string) {
	if err := t.app.Channels.Join(ctx, channel); err != nil {
		t.report(err)
		return
	}

	next, err := t.app.openSession(channel, t.obs, t.perm)
	if err != nil {
		t.report(err)
		return
	}
	if old := t.swap(next); old != nil {
		old.Close()
	}
	t.obs.notice("channel.joined", map[string]string{"channel": channel})
}

// ─── Hata raporlama ───

// report, kendi bildirimini üretmeyen işlemlerin hatasını notice'e çevirir.
func (t *terminal) report(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, pkg.ErrNotFound) {
		t.obs.printf("* %v\n", err)
		return
	}
	if errors.Is(err, pkg.ErrBadRequest) {
		// ToggleVoice gibi işlemler bildirimi zaten yaptı.
		return
	}
	t.obs.OnNotice(services.NoticeFor(err))
}

// logErr, servis bildirimini kendisi yapan işlemler içindir; sadece loglar.
func (t *terminal) logErr(op string, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[cli] %s: %v", op, err)
	}
}
