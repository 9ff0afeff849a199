package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ClockPlayer, ses çıkışı olmayan ortamlar için oynatıcı: dosyanın süresini
// bulur ve duvar saatine göre ilerler. Position/Done sözleşmesi gerçek bir
// oynatıcıyla aynıdır; VoicePipeline farkı görmez.
//
// Süre WAV başlığından okunur; başka container'larda (ogg vb.) durationHint kullanılır.
type ClockPlayer struct {
	mu       sync.Mutex
	duration time.Duration
	started  time.Time
	done     chan struct{}
	timer    *time.Timer
	released bool
	now      func() time.Time
}

// NewClockPlayer, constructor.
func NewClockPlayer() *ClockPlayer {
	return &ClockPlayer{done: make(chan struct{}), now: time.Now}
}

// ClockPlayerFactory, PlayerFactory olarak kullanılır.
func ClockPlayerFactory() Player { return NewClockPlayer() }

// Prepare, dosyanın okunabilir olduğunu doğrular ve süresini belirler.
func (p *ClockPlayer) Prepare(path string, durationHint time.Duration) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat audio: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("audio file is empty")
	}

	duration := durationHint
	if info.Size() >= wavHeaderSize {
		if h, err := readWAVHeader(io.LimitReader(f, wavHeaderSize)); err == nil && h.Duration() > 0 {
			duration = h.Duration()
		}
	}
	if duration <= 0 {
		return errors.New("cannot determine audio duration")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.duration = duration
	return nil
}

// Start, oynatmayı başlatır. Süre dolunca Done kapanır.
func (p *ClockPlayer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return errors.New("player released")
	}
	if p.duration <= 0 {
		return errors.New("player not prepared")
	}
	if !p.started.IsZero() {
		return errors.New("player already started")
	}

	p.started = p.now()
	done := p.done
	p.timer = time.AfterFunc(p.duration, func() { close(done) })
	return nil
}

// Position, başlangıçtan beri geçen süre (toplam süreyle sınırlı).
func (p *ClockPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started.IsZero() || p.released {
		return 0
	}
	pos := p.now().Sub(p.started)
	if pos > p.duration {
		pos = p.duration
	}
	return pos
}

// Done, doğal bitişte kapanan channel.
func (p *ClockPlayer) Done() <-chan struct{} {
	return p.done
}

// Release, zamanlayıcıyı durdurur. Birden fazla çağrılabilir.
func (p *ClockPlayer) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return
	}
	p.released = true
	if p.timer != nil {
		p.timer.Stop()
	}
}
