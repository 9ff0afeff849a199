package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/models"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/pkg/ratelimit"
)

// Refresher, gönderim sonrası transcript yenilemesini tetikleyen bağımlılık.
// TranscriptService bunu karşılar; MessageService tüm servisi bilmek zorunda kalmaz.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// MessageService, metin mesajı gönderme iş mantığı.
type MessageService interface {
	// Send, metni doğrular ve POST /api/message ile gönderir.
	// Boş veya sadece boşluktan oluşan metin ağa hiç gitmez (ErrBadRequest).
	// Başarıda transcript yenilenir; refresh hatası Send'i başarısız yapmaz.
	Send(ctx context.Context, text string) error
}

type messageService struct {
	gw        gateway.Gateway
	refresher Refresher
	throttle  *ratelimit.SendThrottle
	channel   string
	token     string
}

// NewMessageService, constructor. throttle nil ise kısıtlama yoktur.
func NewMessageService(gw gateway.Gateway, refresher Refresher, throttle *ratelimit.SendThrottle, channel, token string) MessageService {
	return &messageService{
		gw:        gw,
		refresher: refresher,
		throttle:  throttle,
		channel:   channel,
		token:     token,
	}
}

func (s *messageService) Send(ctx context.Context, text string) error {
	req := models.CreateMessageRequest{Channel: s.channel, Text: text}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	if !s.throttle.Allow(s.channel) {
		return fmt.Errorf("%w: retry in %ss", pkg.ErrThrottled,
			strconv.Itoa(int(s.throttle.Remaining(s.channel).Seconds())+1))
	}

	if _, err := s.gw.Send(ctx, http.MethodPost, "/api/message", req, s.token); err != nil {
		return err
	}

	if s.refresher != nil {
		if err := s.refresher.Refresh(ctx); err != nil {
			log.Printf("[sync] post-send refresh failed channel=%s: %v", s.channel, err)
		}
	}
	return nil
}
