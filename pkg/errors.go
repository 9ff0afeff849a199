// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya client tarafındaki hata taksonomisini içerir.
//
// Go'da error'lar basit değerlerdir. errors.New() ile sabit error
// değişkenleri tanımlarız; karşılaştırma string yerine referans ile yapılır:
//
//	if errors.Is(err, pkg.ErrNetwork) { ... }
//
// Alt katmanlar bu sentinel'leri fmt.Errorf("%w: ...") ile sarar,
// böylece üst katman hangi kategoride hata olduğunu kaybetmez.
package pkg

import "errors"

// Ağ/protokol katmanı hataları.
// NetworkGateway her başarısız isteği bu üçünden birine bağlar.
var (
	ErrNetwork  = errors.New("network failure")  // timeout, bağlantı reddi
	ErrProtocol = errors.New("protocol error")   // 2xx olmayan yanıt veya success:false
	ErrParse    = errors.New("parse error")      // bozuk / beklenmeyen JSON
)

// Medya ve signaling hataları.
var (
	ErrPermissionDenied = errors.New("permission denied") // mikrofon izni yok
	ErrResource         = errors.New("resource error")    // recorder açılamadı
	ErrPlayback         = errors.New("playback error")    // indirme veya çalma başarısız
	ErrSignaling        = errors.New("signaling failure") // offer/answer/ICE POST başarısız
	ErrCallBusy         = errors.New("call already active")
)

// Genel kullanım hataları.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("not found")
	ErrThrottled    = errors.New("sending too fast")
)
