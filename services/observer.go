package services

import (
	"errors"

	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
)

// Notice, kullanıcıya gösterilecek kısa bildirim.
//
// Key bir i18n anahtarıdır (örn. "voice.permissionDenied"); metne çevirme
// işi UI katmanındadır. Err, bildirimi tetikleyen hatadır (varsa).
type Notice struct {
	Key    string
	Params map[string]string
	Err    error
}

// Observer, servislerin UI'ya sonuç bildirdiği tek arayüz.
//
// Callback'ler servislerin goroutine'lerinden çağrılır; UI tarafı kendi
// thread'ine taşımakla yükümlüdür. Callback içinden servise geri çağrı
// yapmak güvenlidir (servisler callback'i mutex dışında çağırır).
type Observer interface {
	OnTranscript(channel string, msgs []models.Message, appended bool)
	OnNotice(n Notice)
	OnRecordState(state models.RecordState)
	OnPlayback(messageID string, state models.PlaybackState, progress int)
	OnCallState(session models.CallSession)
}

// NopObserver, hiçbir şey yapmayan Observer. Sadece ilgilendiği
// callback'leri yazmak isteyen tipler bunu embed eder.
type NopObserver struct{}

func (NopObserver) OnTranscript(string, []models.Message, bool) {}
func (NopObserver) OnNotice(Notice) {}
func (NopObserver) OnRecordState(models.RecordState) {}
func (NopObserver) OnPlayback(string, models.PlaybackState, int) {}
func (NopObserver) OnCallState(models.CallSession) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}

// NoticeFor, gateway hatasını genel bir bildirime çevirir.
// Kendi özel anahtarı olmayan çağıranlar (CLI komutları vb.) bunu kullanır.
func NoticeFor(err error) Notice {
	key := "notice.server"
	switch {
	case errors.Is(err, pkg.ErrNetwork):
		key = "notice.network"
	case errors.Is(err, pkg.ErrParse):
		key = "notice.parse"
	}
	return Notice{Key: key, Params: map[string]string{"message": gateway.UserMessage(err)}, Err: err}
}
