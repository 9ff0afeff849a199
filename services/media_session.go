package services

import (
	"fmt"
	"sync"

	"github.com/akinalp/mqvi-client/pkg"
)

// MediaSessionManager, süreç genelindeki "en fazla bir" kurallarını uygular:
// aynı anda en fazla bir kayıt, bir oynatma ve bir aktif arama.
//
// Acquire* çağrıları bir release fonksiyonu döner; release birden fazla
// çağrılabilir, sadece ilki slotu boşaltır. Global değişken yoktur;
// ChatSession tek bir manager oluşturur ve servislere verir.
type MediaSessionManager struct {
	mu        sync.Mutex
	recording string // sahibin etiketi, boşsa slot boş
	playback  string
	call      string
}

// NewMediaSessionManager, constructor.
func NewMediaSessionManager() *MediaSessionManager {
	return &MediaSessionManager{}
}

// AcquireRecording, kayıt slotunu alır. Dolu ise ErrResource döner.
func (m *MediaSessionManager) AcquireRecording(owner string) (func(), error) {
	return m.acquire(&m.recording, owner, pkg.ErrResource, "recording")
}

// AcquirePlayback, oynatma slotunu alır. Dolu ise ErrPlayback döner;
// VoicePipeline yeni oynatmadan önce eskisini durdurduğu için bu pratikte
// sadece yarış durumlarında görülür.
func (m *MediaSessionManager) AcquirePlayback(owner string) (func(), error) {
	return m.acquire(&m.playback, owner, pkg.ErrPlayback, "playback")
}

// AcquireCall, arama slotunu alır. Dolu ise ErrCallBusy döner.
func (m *MediaSessionManager) AcquireCall(owner string) (func(), error) {
	return m.acquire(&m.call, owner, pkg.ErrCallBusy, "call")
}

// CallActive, aktif bir arama var mı.
func (m *MediaSessionManager) CallActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call != ""
}

// RecordingActive, devam eden bir kayıt var mı.
func (m *MediaSessionManager) RecordingActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording != ""
}

// PlaybackOwner, oynatma slotunun sahibi (boşsa "").
func (m *MediaSessionManager) PlaybackOwner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playback
}

func (m *MediaSessionManager) acquire(slot *string, owner string, busy error, name string) (func(), error) {
	if owner == "" {
		owner = name
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if *slot != "" {
		return nil, fmt.Errorf("%w: %s slot held by %s", busy, name, *slot)
	}
	*slot = owner

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if *slot == owner {
				*slot = ""
			}
		})
	}, nil
}
