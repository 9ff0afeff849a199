// Package services: VoiceService, sesli mesaj pipeline'ı.
//
// Kayıt:  Idle → Recording → UploadingMetadata → UploadingBytes → Sent | Failed
// Oynatma: Idle → Downloading → Playing → Stopped
//
// Upload üç ayrı fazdır ve fazlar arası retry yoktur:
//  1. POST /api/voice/upload {channel, duration} → {voiceId}
//  2. POST /api/upload/voice/{voiceId} ham byte'lar (recorder'ın content type'ı)
//  3. POST /api/message {channel, text:"Voice message", voiceMessage: voiceId}
//
// Faz 3 sadece faz 2 başarılıysa çalışır; böylece sunucuda byte'ı olmayan
// bir sesli mesaj referansı oluşmaz. Her faz kendi hatasını döner.
//
// Kayıt dosyası voice_<uuid>.<ext> adıyla DataDir altında oluşturulur ve
// upload sonucu ne olursa olsun silinir. İndirilen dosyalar TTL cache'te
// tutulur; cache'ten çıkan dosya diskten de silinir.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/media"
	"github.com/akinalp/mqvi-client/metrics"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/pkg/cache"
)

// Upload faz hataları. Gateway hatası bunların altına sarılır:
//
//	errors.Is(err, ErrUploadBytes) && errors.Is(err, pkg.ErrNetwork)
var (
	ErrUploadMetadata = errors.New("voice upload metadata failed")
	ErrUploadBytes    = errors.New("voice upload bytes failed")
	ErrUploadMessage  = errors.New("voice message post failed")
)

// defaultProgressInterval, oynatma ilerleme bildirim aralığı.
const defaultProgressInterval = 100 * time.Millisecond

// VoiceService, sesli mesaj kayıt/upload ve indirme/oynatma interface'i.
type VoiceService interface {
	// StartRecording, mikrofon izni yoksa ister; izin verilirse kaydı başlatır.
	StartRecording(ctx context.Context) error
	// StopRecording, kaydı durdurur (recorder her durumda bırakılır) ve
	// upload sırasını çalıştırır.
	StopRecording(ctx context.Context) error
	// CancelRecording, upload etmeden kaydı atar.
	CancelRecording()
	RecordState() models.RecordState

	// Play, önce başka oynatmayı durdurur, sonra indirip çalar.
	Play(ctx context.Context, msg models.Message) error
	// StopPlayback, oynatıcıyı bir kez bırakır ve ilerlemeyi sıfırlar.
	StopPlayback()
	// Toggle, mesaj çalıyorsa durdurur, çalmıyorsa başlatır.
	Toggle(ctx context.Context, msg models.Message) error
	IsPlaying(messageID string) bool
	Progress(messageID string) int
	PlaybackState() models.PlaybackState

	// Close, kayıt/oynatmayı bırakır ve indirme cache'ini temizler.
	Close()
}

// VoiceConfig, VoiceService ayarları.
type VoiceConfig struct {
	Channel          string
	Token            string
	DataDir          string
	Recorder         media.RecorderConfig
	CacheTTL         time.Duration
	ProgressInterval time.Duration
}

// VoiceDeps, VoiceService'in collaborator'ları.
type VoiceDeps struct {
	Gateway     gateway.Gateway
	Sessions    *MediaSessionManager
	Permission  media.PermissionProvider
	NewRecorder media.RecorderFactory
	NewPlayer   media.PlayerFactory
	Refresher   Refresher
	Observer    Observer
	Metrics     *metrics.Metrics
}

type voiceService struct {
	deps      VoiceDeps
	observer  Observer
	cfg       VoiceConfig
	downloads *cache.TTLCache[string, string]
	now       func() time.Time

	mu sync.Mutex

	// ─── Kayıt state ───
	recState   models.RecordState
	recorder   media.Recorder
	recPath    string
	recStarted time.Time
	releaseRec func()

	// ─── Oynatma state ───
	playState   models.PlaybackState
	playID      string
	playGen     uint64 // her Play/Stop'ta artar; eski tamamlanmalar bunu kontrol eder
	progress    int
	player      media.Player
	releasePlay func()
	tickerStop  chan struct{}
	tickerDone  chan struct{}
}

// NewVoiceService, constructor.
func NewVoiceService(deps VoiceDeps, cfg VoiceConfig) VoiceService {
	if cfg.Recorder.SampleRate == 0 {
		cfg.Recorder = media.DefaultRecorderConfig
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if deps.Sessions == nil {
		deps.Sessions = NewMediaSessionManager()
	}

	downloads := cache.New[string, string](cfg.CacheTTL, time.Minute)
	downloads.OnEvict(func(ref, path string) {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[voice] failed to remove cached download %s: %v", path, err)
		}
	})

	return &voiceService{
		deps:      deps,
		observer:  observerOrNop(deps.Observer),
		cfg:       cfg,
		downloads: downloads,
		now:       time.Now,
		recState:  models.RecordStateIdle,
		playState: models.PlaybackStateIdle,
	}
}

// ─── Kayıt ───

func (s *voiceService) RecordState() models.RecordState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recState
}

func (s *voiceService) StartRecording(ctx context.Context) error {
	if s.RecordState().IsBusy() {
		s.notify("voice.busy", nil, pkg.ErrResource)
		return fmt.Errorf("%w: recording already in progress", pkg.ErrResource)
	}

	if p := s.deps.Permission; p != nil && !p.Granted() {
		granted, err := p.Request(ctx)
		if err != nil {
			return err
		}
		if !granted {
			s.notify("voice.permissionDenied", nil, pkg.ErrPermissionDenied)
			return fmt.Errorf("%w: microphone", pkg.ErrPermissionDenied)
		}
	}

	release, err := s.deps.Sessions.AcquireRecording("voice")
	if err != nil {
		s.notify("voice.busy", nil, err)
		return err
	}

	rec := s.deps.NewRecorder()
	path := filepath.Join(s.cfg.DataDir, "voice_"+uuid.NewString()+"."+rec.Extension())

	if err := os.MkdirAll(s.cfg.DataDir, 0o700); err != nil {
		return s.abortStart(rec, release, path, err)
	}
	if err := rec.Start(path, s.cfg.Recorder); err != nil {
		return s.abortStart(rec, release, path, err)
	}

	s.mu.Lock()
	if err := models.ValidateRecordTransition(s.recState, models.RecordStateRecording); err != nil {
		s.mu.Unlock()
		return s.abortStart(rec, release, path, err)
	}
	s.recState = models.RecordStateRecording
	s.recorder = rec
	s.recPath = path
	s.recStarted = s.now()
	s.releaseRec = release
	s.mu.Unlock()

	log.Printf("[voice] recording started channel=%s file=%s", s.cfg.Channel, filepath.Base(path))
	s.observer.OnRecordState(models.RecordStateRecording)
	return nil
}

// abortStart, yarım kalan başlatmanın kaynaklarını bırakır. State Idle kalır.
func (s *voiceService) abortStart(rec media.Recorder, release func(), path string, cause error) error {
	rec.Release()
	release()
	removeScoped(path)

	s.mu.Lock()
	if s.recState != models.RecordStateIdle && s.recState.CanTransition(models.RecordStateIdle) {
		s.recState = models.RecordStateIdle
	}
	s.mu.Unlock()

	log.Printf("[voice] recorder open failed: %v", cause)
	s.notify("voice.recorderFailed", nil, cause)
	s.observer.OnRecordState(models.RecordStateIdle)
	return fmt.Errorf("%w: %v", pkg.ErrResource, cause)
}

func (s *voiceService) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.recState != models.RecordStateRecording {
		state := s.recState
		s.mu.Unlock()
		return fmt.Errorf("%w: not recording (state=%s)", pkg.ErrInvalidState, state)
	}
	rec, path, started, release := s.recorder, s.recPath, s.recStarted, s.releaseRec
	s.recorder, s.recPath, s.releaseRec = nil, "", nil
	s.mu.Unlock()

	defer release()
	defer removeScoped(path)

	// Stop hata verse bile recorder bırakılır.
	stopErr := rec.Stop()
	rec.Release()

	if stopErr != nil {
		_ = s.setRecState(models.RecordStateFailed)
		s.deps.Metrics.ObserveUpload("record_failed")
		s.notify("voice.recorderFailed", nil, stopErr)
		return fmt.Errorf("%w: %v", pkg.ErrResource, stopErr)
	}

	duration := recordedSeconds(s.now().Sub(started))
	data, err := os.ReadFile(path)
	if err != nil {
		_ = s.setRecState(models.RecordStateFailed)
		s.deps.Metrics.ObserveUpload("record_failed")
		s.notify("voice.recorderFailed", nil, err)
		return fmt.Errorf("%w: %v", pkg.ErrResource, err)
	}

	return s.upload(ctx, data, rec.ContentType(), duration)
}

// upload, üç fazlı gönderimi sırayla çalıştırır.
func (s *voiceService) upload(ctx context.Context, data []byte, contentType string, duration int) error {
	if err := s.setRecState(models.RecordStateUploadingMetadata); err != nil {
		return err
	}

	// Faz 1: metadata
	raw, err := s.deps.Gateway.Send(ctx, http.MethodPost, "/api/voice/upload",
		models.VoiceUploadRequest{Channel: s.cfg.Channel, Duration: duration}, s.cfg.Token)
	if err != nil {
		return s.failUpload(ErrUploadMetadata, "voice.uploadMetadataFailed", "metadata", err)
	}
	var meta models.VoiceUploadResponse
	if err := gateway.Decode(raw, &meta); err != nil {
		return s.failUpload(ErrUploadMetadata, "voice.uploadMetadataFailed", "metadata", err)
	}
	if meta.VoiceID == "" {
		return s.failUpload(ErrUploadMetadata, "voice.uploadMetadataFailed", "metadata",
			&gateway.Error{Message: "missing voiceId", Kind: pkg.ErrParse})
	}

	if err := s.setRecState(models.RecordStateUploadingBytes); err != nil {
		return err
	}

	// Faz 2: ham byte'lar
	if _, err := s.deps.Gateway.SendRaw(ctx, http.MethodPost, "/api/upload/voice/"+url.PathEscape(meta.VoiceID),
		contentType, data, s.cfg.Token); err != nil {
		return s.failUpload(ErrUploadBytes, "voice.uploadBytesFailed", "bytes", err)
	}

	// Faz 3: mesaj referansı
	msg := models.CreateMessageRequest{
		Channel:      s.cfg.Channel,
		Text:         models.VoiceMessageText,
		VoiceMessage: meta.VoiceID,
	}
	if _, err := s.deps.Gateway.Send(ctx, http.MethodPost, "/api/message", msg, s.cfg.Token); err != nil {
		return s.failUpload(ErrUploadMessage, "voice.uploadMessageFailed", "message", err)
	}

	if err := s.setRecState(models.RecordStateSent); err != nil {
		return err
	}
	s.deps.Metrics.ObserveUpload("ok")
	log.Printf("[voice] voice message sent channel=%s voiceId=%s duration=%ds bytes=%d",
		s.cfg.Channel, meta.VoiceID, duration, len(data))
	s.notify("voice.sent", nil, nil)

	if s.deps.Refresher != nil {
		if err := s.deps.Refresher.Refresh(ctx); err != nil {
			log.Printf("[voice] post-upload refresh failed: %v", err)
		}
	}
	return nil
}

func (s *voiceService) failUpload(phase error, noticeKey, outcome string, cause error) error {
	_ = s.setRecState(models.RecordStateFailed)
	s.deps.Metrics.ObserveUpload(outcome + "_failed")
	log.Printf("[voice] %v: %v", phase, cause)
	s.notify(noticeKey, map[string]string{"message": gateway.UserMessage(cause)}, cause)
	return fmt.Errorf("%w: %w", phase, cause)
}

func (s *voiceService) setRecState(to models.RecordState) error {
	s.mu.Lock()
	if err := models.ValidateRecordTransition(s.recState, to); err != nil {
		s.mu.Unlock()
		log.Printf("[voice] %v", err)
		return fmt.Errorf("%w: %v", pkg.ErrInvalidState, err)
	}
	s.recState = to
	s.mu.Unlock()

	s.observer.OnRecordState(to)
	return nil
}

func (s *voiceService) CancelRecording() {
	s.mu.Lock()
	if s.recState != models.RecordStateRecording {
		s.mu.Unlock()
		return
	}
	rec, path, release := s.recorder, s.recPath, s.releaseRec
	s.recorder, s.recPath, s.releaseRec = nil, "", nil
	s.recState = models.RecordStateIdle
	s.mu.Unlock()

	_ = rec.Stop()
	rec.Release()
	release()
	removeScoped(path)
	s.observer.OnRecordState(models.RecordStateIdle)
}

// ─── Oynatma ───

func (s *voiceService) PlaybackState() models.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playState
}

func (s *voiceService) IsPlaying(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playID == messageID && s.playActiveLocked()
}

func (s *voiceService) Progress(messageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playID != messageID {
		return 0
	}
	return s.progress
}

func (s *voiceService) Toggle(ctx context.Context, msg models.Message) error {
	if s.IsPlaying(msg.ID) {
		s.StopPlayback()
		return nil
	}
	return s.Play(ctx, msg)
}

func (s *voiceService) Play(ctx context.Context, msg models.Message) error {
	if !msg.HasVoice() {
		s.notify("voice.notVoice", map[string]string{"id": msg.ID}, pkg.ErrBadRequest)
		return fmt.Errorf("%w: message %s has no voice attachment", pkg.ErrBadRequest, msg.ID)
	}

	// Önceki oynatmayı durdur ve slotu tek kritik bölgede yeniden al.
	s.mu.Lock()
	cleanup := s.stopPlaybackLocked()
	release, err := s.deps.Sessions.AcquirePlayback(msg.ID)
	if err != nil {
		s.mu.Unlock()
		cleanup()
		s.notify("voice.playbackFailed", nil, err)
		return err
	}
	s.playGen++
	gen := s.playGen
	s.playState = models.PlaybackStateDownloading
	s.playID = msg.ID
	s.progress = 0
	s.releasePlay = release
	s.mu.Unlock()

	cleanup()
	s.observer.OnPlayback(msg.ID, models.PlaybackStateDownloading, 0)

	path, err := s.fetch(ctx, msg.Voice)
	if err != nil {
		return s.failPlayback(gen, msg.ID, err)
	}

	player := s.deps.NewPlayer()
	hint := time.Duration(msg.Voice.DurationMillis()) * time.Millisecond
	if err := player.Prepare(path, hint); err != nil {
		player.Release()
		return s.failPlayback(gen, msg.ID, err)
	}
	if err := player.Start(); err != nil {
		player.Release()
		return s.failPlayback(gen, msg.ID, err)
	}

	s.mu.Lock()
	if gen != s.playGen {
		// Bu arada Stop veya başka bir Play geldi.
		s.mu.Unlock()
		player.Release()
		return nil
	}
	s.playState = models.PlaybackStatePlaying
	s.player = player
	s.tickerStop = make(chan struct{})
	s.tickerDone = make(chan struct{})
	go s.progressLoop(gen, msg.ID, player, msg.Voice.DurationMillis(), s.tickerStop, s.tickerDone)
	s.mu.Unlock()

	log.Printf("[voice] playing message=%s", msg.ID)
	s.observer.OnPlayback(msg.ID, models.PlaybackStatePlaying, 0)
	return nil
}

func (s *voiceService) StopPlayback() {
	s.mu.Lock()
	cleanup := s.stopPlaybackLocked()
	s.mu.Unlock()
	cleanup()
}

// stopPlaybackLocked, aktif oynatmayı Stopped'a çeker ve mutex dışında
// çalıştırılacak temizlik fonksiyonunu döner. s.mu tutulurken çağrılır.
func (s *voiceService) stopPlaybackLocked() func() {
	if !s.playActiveLocked() {
		return func() {}
	}

	id, player, stop, done, release := s.playID, s.player, s.tickerStop, s.tickerDone, s.releasePlay
	s.playGen++
	s.playState = models.PlaybackStateStopped
	s.progress = 0
	s.player, s.tickerStop, s.tickerDone, s.releasePlay = nil, nil, nil, nil
	if release != nil {
		release()
	}

	return func() {
		if stop != nil {
			close(stop)
			<-done
		}
		if player != nil {
			player.Release()
		}
		s.deps.Metrics.ObservePlayback("stopped")
		s.observer.OnPlayback(id, models.PlaybackStateStopped, 0)
	}
}

func (s *voiceService) playActiveLocked() bool {
	return s.playState == models.PlaybackStateDownloading || s.playState == models.PlaybackStatePlaying
}

// progressLoop, her ProgressInterval'de ilerleme yüzdesini bildirir ve
// doğal bitişte oynatmayı sonlandırır.
func (s *voiceService) progressLoop(gen uint64, id string, player media.Player, durationMs int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-player.Done():
			s.finishPlayback(gen, id)
			return
		case <-ticker.C:
			pct := progressPercent(player.Position(), durationMs)

			s.mu.Lock()
			if gen != s.playGen {
				s.mu.Unlock()
				return
			}
			s.progress = pct
			s.mu.Unlock()

			s.observer.OnPlayback(id, models.PlaybackStatePlaying, pct)
		}
	}
}

// finishPlayback, doğal bitiş. progressLoop goroutine'inden çağrılır;
// kendi done channel'ını beklemez.
func (s *voiceService) finishPlayback(gen uint64, id string) {
	s.mu.Lock()
	if gen != s.playGen {
		s.mu.Unlock()
		return
	}
	player, release := s.player, s.releasePlay
	s.playGen++
	s.playState = models.PlaybackStateStopped
	s.progress = 0
	s.player, s.tickerStop, s.tickerDone, s.releasePlay = nil, nil, nil, nil
	if release != nil {
		release()
	}
	s.mu.Unlock()

	if player != nil {
		player.Release()
	}
	s.deps.Metrics.ObservePlayback("completed")
	s.observer.OnPlayback(id, models.PlaybackStateStopped, 100)
}

func (s *voiceService) failPlayback(gen uint64, id string, cause error) error {
	s.mu.Lock()
	if gen != s.playGen {
		s.mu.Unlock()
		return nil
	}
	release := s.releasePlay
	s.playGen++
	s.playState = models.PlaybackStateStopped
	s.progress = 0
	s.releasePlay = nil
	if release != nil {
		release()
	}
	s.mu.Unlock()

	s.deps.Metrics.ObservePlayback("failed")
	log.Printf("[voice] playback failed message=%s: %v", id, cause)
	s.notify("voice.playbackFailed", nil, cause)
	s.observer.OnPlayback(id, models.PlaybackStateStopped, 0)
	return fmt.Errorf("%w: %w", pkg.ErrPlayback, cause)
}

// fetch, indirme referansını yerel bir dosyaya çözer. Cache'te varsa tekrar indirmez.
func (s *voiceService) fetch(ctx context.Context, v *models.VoiceAttachment) (string, error) {
	if path, ok := s.downloads.Get(v.DownloadRef); ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		s.downloads.Delete(v.DownloadRef)
	}

	if err := os.MkdirAll(s.cfg.DataDir, 0o700); err != nil {
		return "", err
	}

	ext := filepath.Ext(v.Filename)
	if ext == "" {
		ext = ".audio"
	}
	path := filepath.Join(s.cfg.DataDir, "play_"+uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	n, err := s.deps.Gateway.Download(ctx, v.DownloadRef, s.cfg.Token, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		removeScoped(path)
		return "", err
	}

	log.Printf("[voice] downloaded %d bytes ref=%s", n, v.DownloadRef)
	s.downloads.Set(v.DownloadRef, path)
	return path, nil
}

func (s *voiceService) Close() {
	s.CancelRecording()
	s.StopPlayback()
	s.downloads.Close()
}

func (s *voiceService) notify(key string, params map[string]string, err error) {
	s.observer.OnNotice(Notice{Key: key, Params: params, Err: err})
}

// ─── Helpers ───

// recordedSeconds, ölçülen kayıt süresini saniyeye yuvarlar; boş olmayan
// bir kayıt en az 1 saniye sayılır.
func recordedSeconds(elapsed time.Duration) int {
	secs := int(elapsed.Round(time.Second) / time.Second)
	if secs < 1 && elapsed > 0 {
		secs = 1
	}
	return secs
}

// progressPercent, pozisyonun toplam süreye oranı (0-100).
func progressPercent(pos time.Duration, durationMs int64) int {
	if durationMs <= 0 || pos <= 0 {
		return 0
	}
	pct := int(pos.Milliseconds() * 100 / durationMs)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func removeScoped(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[voice] failed to remove %s: %v", path, err)
	}
}
