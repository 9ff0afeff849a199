// Package media, platform medya alt sistemiyle (mikrofon, hoparlör, izin)
// konuşan interface'leri ve headless bir referans implementasyonu içerir.
//
// VoicePipeline codec detaylarını bilmez: kaydı Recorder'a, çalmayı Player'a,
// mikrofon iznini PermissionProvider'a devreder. Masaüstü/mobil bir client bu
// interface'leri kendi platformuyla implemente eder; bu paketteki WAV recorder
// ve ClockPlayer terminal client'ı ve testler içindir.
package media

import (
	"context"
	"time"
)

// RecorderConfig, kayıt encoder'ının sabit ayarları.
type RecorderConfig struct {
	SampleRate int // Hz
	Channels   int
	BitRate    int // bps: sıkıştırmalı container'larda anlamlı
}

// DefaultRecorderConfig: mono, 48 kHz, 96 kbps.
var DefaultRecorderConfig = RecorderConfig{
	SampleRate: 48000,
	Channels:   1,
	BitRate:    96000,
}

// Recorder, tek bir kayıt oturumu. Her kayıt için yeni bir Recorder alınır.
//
// Sözleşme:
//   - Start başarısız olursa çağıran Release'i yine çağırır (kısmi kaynaklar)
//   - Stop hata dönse bile Release çağrılmalıdır
//   - Release birden fazla çağrılabilir
type Recorder interface {
	Start(path string, cfg RecorderConfig) error
	Stop() error
	Release()

	// ContentType, upload'ta kullanılacak MIME tipi (örn. "audio/wav").
	ContentType() string
	// Extension, scoped dosya uzantısı (noktasız).
	Extension() string
}

// Player, tek bir oynatma oturumu. Her play için yeni bir Player alınır.
type Player interface {
	// Prepare, dosyayı decode eder. durationHint, container süre bilgisi
	// taşımıyorsa kullanılır.
	Prepare(path string, durationHint time.Duration) error
	Start() error

	// Position, şu ana kadar çalınan süre.
	Position() time.Duration
	// Done, çalma doğal olarak bitince kapanır.
	Done() <-chan struct{}

	// Release, kaynakları bırakır; birden fazla çağrılabilir.
	Release()
}

// RecorderFactory, yeni bir Recorder üretir.
type RecorderFactory func() Recorder

// PlayerFactory, yeni bir Player üretir.
type PlayerFactory func() Player

// PermissionProvider, mikrofon iznini yöneten harici collaborator.
type PermissionProvider interface {
	// Granted, izin şu anda verilmiş mi.
	Granted() bool
	// Request, kullanıcıdan izin ister ve kararı bekler.
	// ctx iptal edilirse ctx.Err() döner.
	Request(ctx context.Context) (bool, error)
}
