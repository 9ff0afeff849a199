package rtc

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/akinalp/mqvi-client/models"
)

// pionFactory, pion/webrtc tabanlı Factory.
// MediaEngine bir kere kurulur, tüm bağlantılar aynı API nesnesini paylaşır.
type pionFactory struct {
	api *webrtc.API
}

// NewPionFactory, varsayılan codec'lerle (Opus dahil) bir pion API'si kurar.
func NewPionFactory() (Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &pionFactory{api: webrtc.NewAPI(webrtc.WithMediaEngine(m))}, nil
}

func (f *pionFactory) NewPeerConnection(iceServers []string) (PeerConnection, error) {
	// Boş liste = sadece host adayları (LAN ve testler için)
	var cfg webrtc.Configuration
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	pc, err := f.api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) AddLocalAudio() (AudioTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"audio", "mqvi-client",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add audio track: %w", err)
	}

	// RTCP paketleri okunmazsa interceptor'lar tıkanır: sender kapanana kadar boşalt.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	t := &pionAudioTrack{track: track}
	t.enabled.Store(true)
	return t, nil
}

func (p *pionPeer) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (p *pionPeer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (p *pionPeer) SetLocalDescription(kind SDPType, sdp string) error {
	return p.pc.SetLocalDescription(webrtc.SessionDescription{Type: toPionSDPType(kind), SDP: sdp})
}

func (p *pionPeer) SetRemoteDescription(kind SDPType, sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: toPionSDPType(kind), SDP: sdp})
}

func (p *pionPeer) AddICECandidate(c models.IceCandidate) error {
	mid := c.SDPMid
	idx := c.SDPMLineIndex
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
}

func (p *pionPeer) OnICECandidate(fn func(models.IceCandidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil aday = gathering bitti
		if c == nil {
			return
		}
		init := c.ToJSON()
		out := models.IceCandidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			out.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			out.SDPMLineIndex = *init.SDPMLineIndex
		}
		fn(out)
	})
}

func (p *pionPeer) OnRemoteTrack(fn func()) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("[call] remote track: kind=%s codec=%s", track.Kind(), track.Codec().MimeType)
		fn()

		// Çalma platform medya katmanına ait; burada sadece RTP'yi boşaltıyoruz.
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})
}

func (p *pionPeer) OnConnectionStateChange(fn func(ConnectionState)) {
	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		fn(fromPionICEState(s))
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

// pionAudioTrack, mute desteği eklenmiş TrackLocalStaticSample.
type pionAudioTrack struct {
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

func (t *pionAudioTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *pionAudioTrack) Enabled() bool           { return t.enabled.Load() }

func (t *pionAudioTrack) WriteSample(payload []byte, duration time.Duration) error {
	if !t.enabled.Load() {
		return nil
	}
	return t.track.WriteSample(media.Sample{Data: payload, Duration: duration})
}

func toPionSDPType(kind SDPType) webrtc.SDPType {
	if kind == SDPTypeAnswer {
		return webrtc.SDPTypeAnswer
	}
	return webrtc.SDPTypeOffer
}

func fromPionICEState(s webrtc.ICEConnectionState) ConnectionState {
	switch s {
	case webrtc.ICEConnectionStateChecking:
		return ConnectionStateChecking
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return ConnectionStateConnected
	case webrtc.ICEConnectionStateDisconnected:
		return ConnectionStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return ConnectionStateFailed
	case webrtc.ICEConnectionStateClosed:
		return ConnectionStateClosed
	}
	return ConnectionStateNew
}
