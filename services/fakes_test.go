package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/media"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/rtc"
)

// ─── Sahte sunucu ───

// fakeServer, route bazlı cevap veren ve gelen istekleri kaydeden httptest sunucusu.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
	Type   string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{routes: make(map[string]http.HandlerFunc)}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		fs.mu.Lock()
		fs.requests = append(fs.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   body,
			Type:   r.Header.Get("Content-Type"),
		})
		h, ok := fs.routes[r.Method+" "+r.URL.Path]
		fs.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"error":"no route"}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) handle(method, path string, h http.HandlerFunc) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.routes[method+" "+path] = h
}

// respond, sabit bir JSON gövdesi dönen route ekler.
func (fs *fakeServer) respond(method, path string, status int, body string) {
	fs.handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func (fs *fakeServer) gateway() gateway.Gateway {
	return gateway.New(fs.URL, 2*time.Second, nil)
}

func (fs *fakeServer) calls(method, path string) []recordedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []recordedRequest
	for _, r := range fs.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (fs *fakeServer) count() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.requests)
}

func decodeBody(t *testing.T, r recordedRequest) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(r.Body, &m); err != nil {
		t.Fatalf("decode body %s: %v", r.Path, err)
	}
	return m
}

func messagesJSON(msgs ...models.Message) string {
	b, _ := json.Marshal(map[string]any{"success": true, "messages": msgs})
	return string(b)
}

// ─── Observer ───

type recordingObserver struct {
	mu          sync.Mutex
	transcripts []transcriptNote
	notices     []Notice
	recStates   []models.RecordState
	playback    []playbackNote
	calls       []models.CallSession
}

type transcriptNote struct {
	Channel  string
	Msgs     []models.Message
	Appended bool
}

type playbackNote struct {
	ID       string
	State    models.PlaybackState
	Progress int
}

func (o *recordingObserver) OnTranscript(channel string, msgs []models.Message, appended bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcripts = append(o.transcripts, transcriptNote{channel, msgs, appended})
}

func (o *recordingObserver) OnNotice(n Notice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, n)
}

func (o *recordingObserver) OnRecordState(state models.RecordState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recStates = append(o.recStates, state)
}

func (o *recordingObserver) OnPlayback(id string, state models.PlaybackState, progress int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playback = append(o.playback, playbackNote{id, state, progress})
}

func (o *recordingObserver) OnCallState(session models.CallSession) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, session)
}

func (o *recordingObserver) transcriptCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.transcripts)
}

func (o *recordingObserver) lastTranscript() transcriptNote {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.transcripts) == 0 {
		return transcriptNote{}
	}
	return o.transcripts[len(o.transcripts)-1]
}

func (o *recordingObserver) noticeKeys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.notices))
	for _, n := range o.notices {
		keys = append(keys, n.Key)
	}
	return keys
}

func (o *recordingObserver) recordStates() []models.RecordState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.RecordState(nil), o.recStates...)
}

func (o *recordingObserver) playbackNotes() []playbackNote {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]playbackNote(nil), o.playback...)
}

func (o *recordingObserver) callStates() []models.CallState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.CallState, 0, len(o.calls))
	for _, c := range o.calls {
		out = append(out, c.State)
	}
	return out
}

// ─── Medya ───

type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	path     string
	started  bool
	stopped  int
	released int
	payload  []byte
}

func (r *fakeRecorder) Start(path string, _ media.RecorderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.path = path
	r.started = true
	return os.WriteFile(path, r.payloadBytes(), 0o600)
}

func (r *fakeRecorder) payloadBytes() []byte {
	if r.payload == nil {
		return []byte("RIFF-fake-audio")
	}
	return r.payload
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	return r.stopErr
}

func (r *fakeRecorder) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released++
}

func (r *fakeRecorder) ContentType() string { return "audio/wav" }
func (r *fakeRecorder) Extension() string   { return "wav" }

func (r *fakeRecorder) releaseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// fakePlayer, Done kanalı test tarafından kapatılan oynatıcı.
type fakePlayer struct {
	mu         sync.Mutex
	prepareErr error
	path       string
	position   time.Duration
	done       chan struct{}
	released   int
	doneOnce   sync.Once
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{done: make(chan struct{})}
}

func (p *fakePlayer) Prepare(path string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = path
	return p.prepareErr
}

func (p *fakePlayer) Start() error { return nil }

func (p *fakePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) Done() <-chan struct{} { return p.done }

func (p *fakePlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
}

func (p *fakePlayer) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *fakePlayer) releaseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// playerPool, her NewPlayer çağrısında yeni bir fakePlayer üretir ve saklar.
type playerPool struct {
	mu      sync.Mutex
	players []*fakePlayer
	newErr  error
}

func (pp *playerPool) factory() media.PlayerFactory {
	return func() media.Player {
		pp.mu.Lock()
		defer pp.mu.Unlock()
		p := newFakePlayer()
		p.prepareErr = pp.newErr
		pp.players = append(pp.players, p)
		return p
	}
}

func (pp *playerPool) get(i int) *fakePlayer {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if i >= len(pp.players) {
		return nil
	}
	return pp.players[i]
}

// ─── WebRTC ───

type fakeTrack struct {
	mu      sync.Mutex
	enabled bool
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) WriteSample([]byte, time.Duration) error { return nil }

type fakePeer struct {
	mu sync.Mutex

	offerErr     error
	setRemoteErr error

	local      []string
	remote     []string
	candidates []models.IceCandidate
	closed     int
	track      *fakeTrack

	onCandidate func(models.IceCandidate)
	onTrack     func()
	onState     func(rtc.ConnectionState)
}

func (p *fakePeer) AddLocalAudio() (rtc.AudioTrack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = &fakeTrack{enabled: true}
	return p.track, nil
}

func (p *fakePeer) CreateOffer() (string, error) {
	if p.offerErr != nil {
		return "", p.offerErr
	}
	return "v=0 offer", nil
}

func (p *fakePeer) CreateAnswer() (string, error) { return "v=0 answer", nil }

func (p *fakePeer) SetLocalDescription(kind rtc.SDPType, sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = append(p.local, string(kind)+":"+sdp)
	return nil
}

func (p *fakePeer) SetRemoteDescription(kind rtc.SDPType, sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setRemoteErr != nil {
		return p.setRemoteErr
	}
	p.remote = append(p.remote, string(kind)+":"+sdp)
	return nil
}

func (p *fakePeer) AddICECandidate(c models.IceCandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.remote) == 0 {
		return errors.New("remote description not set")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(models.IceCandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCandidate = fn
}

func (p *fakePeer) OnRemoteTrack(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *fakePeer) OnConnectionStateChange(fn func(rtc.ConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) emitCandidate(c models.IceCandidate) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	fn(c)
}

func (p *fakePeer) emitTrack() {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn()
}

func (p *fakePeer) emitState(s rtc.ConnectionState) {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	fn(s)
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) remoteCandidates() []models.IceCandidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.IceCandidate(nil), p.candidates...)
}

type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
	next  func() *fakePeer
	block func() // varsa oluşturmadan önce çağrılır (yavaş ICE kurulumu)
}

func (f *fakeFactory) NewPeerConnection([]string) (rtc.PeerConnection, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		block()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{}
	if f.next != nil {
		p = f.next()
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) peer(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.peers) {
		panic(fmt.Sprintf("no peer %d", i))
	}
	return f.peers[i]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

// countingRefresher, Refresh çağrılarını sayar.
type countingRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
