package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// frameDuration, kaynaktan her okumada alınan ses miktarı.
const frameDuration = 20 * time.Millisecond

// SampleSource, PCM-16 örnek kaynağı (mikrofon sürücüsü).
type SampleSource interface {
	ReadSamples(buf []int16) (int, error)
}

// SilenceSource, sessizlik üreten kaynak. Mikrofonu olmayan headless
// ortamda kayıt akışının uçtan uca çalışması için kullanılır.
type SilenceSource struct{}

// ReadSamples, buf'ı sıfırlar.
func (SilenceSource) ReadSamples(buf []int16) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

// WAVRecorder, SampleSource'tan gelen PCM'i gerçek zamanlı hızda bir WAV
// dosyasına yazar. Başlık önce yer tutucu olarak yazılır, Stop'ta gerçek
// boyutlarla yeniden yazılır.
type WAVRecorder struct {
	source SampleSource

	mu       sync.Mutex
	file     *os.File
	cfg      RecorderConfig
	written  uint32
	stopCh   chan struct{}
	doneCh   chan struct{}
	writeErr error
	released bool
}

// NewWAVRecorder, constructor. source nil ise SilenceSource kullanılır.
func NewWAVRecorder(source SampleSource) *WAVRecorder {
	if source == nil {
		source = SilenceSource{}
	}
	return &WAVRecorder{source: source}
}

// WAVRecorderFactory, her çağrıda aynı kaynağı kullanan yeni bir WAVRecorder üretir.
func WAVRecorderFactory(source SampleSource) RecorderFactory {
	return func() Recorder { return NewWAVRecorder(source) }
}

func (r *WAVRecorder) ContentType() string { return "audio/wav" }
func (r *WAVRecorder) Extension() string   { return "wav" }

// Start, dosyayı açar ve kayıt goroutine'ini başlatır.
func (r *WAVRecorder) Start(path string, cfg RecorderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return errors.New("recorder released")
	}
	if r.file != nil {
		return errors.New("recorder already started")
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return fmt.Errorf("invalid recorder config: rate=%d channels=%d", cfg.SampleRate, cfg.Channels)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open recording file: %w", err)
	}
	if err := writeWAVHeader(f, newWAVHeader(cfg.SampleRate, cfg.Channels, 0)); err != nil {
		f.Close()
		return err
	}

	r.file = f
	r.cfg = cfg
	r.written = 0
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.captureLoop(f, cfg, r.stopCh, r.doneCh)
	return nil
}

// captureLoop, her frameDuration'da bir frame okur ve dosyaya ekler.
func (r *WAVRecorder) captureLoop(w io.Writer, cfg RecorderConfig, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frame := make([]int16, cfg.SampleRate*cfg.Channels*int(frameDuration/time.Millisecond)/1000)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := r.source.ReadSamples(frame)
			if err != nil {
				r.setWriteErr(fmt.Errorf("read samples: %w", err))
				return
			}
			if err := binary.Write(w, binary.LittleEndian, frame[:n]); err != nil {
				r.setWriteErr(fmt.Errorf("write samples: %w", err))
				return
			}
			r.mu.Lock()
			r.written += uint32(n * 2)
			r.mu.Unlock()
		}
	}
}

func (r *WAVRecorder) setWriteErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr == nil {
		r.writeErr = err
	}
}

// Stop, kaydı sonlandırır ve başlığı gerçek boyutla günceller.
// Dosya açık kalır; kapatmak Release'in işidir.
func (r *WAVRecorder) Stop() error {
	r.mu.Lock()
	if r.file == nil || r.stopCh == nil {
		r.mu.Unlock()
		return errors.New("recorder not started")
	}
	stop, done := r.stopCh, r.doneCh
	r.stopCh = nil
	r.mu.Unlock()

	close(stop)
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writeErr != nil {
		return r.writeErr
	}
	if r.written == 0 {
		return errors.New("no audio captured")
	}
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek header: %w", err)
	}
	if err := writeWAVHeader(r.file, newWAVHeader(r.cfg.SampleRate, r.cfg.Channels, r.written)); err != nil {
		return err
	}
	return r.file.Sync()
}

// Release, dosyayı kapatır. Kayıt devam ediyorsa önce goroutine durdurulur.
func (r *WAVRecorder) Release() {
	r.mu.Lock()
	stop, done := r.stopCh, r.doneCh
	r.stopCh = nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	r.released = true
}
