// Package main: Service katmanı başlatma.
//
// initApp, kanal bağımsız parçaları (config, i18n, metrics, gateway, hub,
// repository'ler) bir kez oluşturur. openSession ise seçilen kanal için bir
// ChatSession kurar; kanal değişirse eski oturum kapatılıp yenisi açılır.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/akinalp/mqvi-client/config"
	"github.com/akinalp/mqvi-client/gateway"
	"github.com/akinalp/mqvi-client/media"
	"github.com/akinalp/mqvi-client/metrics"
	"github.com/akinalp/mqvi-client/pkg/i18n"
	"github.com/akinalp/mqvi-client/pkg/ratelimit"
	"github.com/akinalp/mqvi-client/pkg/token"
	"github.com/akinalp/mqvi-client/rtc"
	"github.com/akinalp/mqvi-client/services"
	"github.com/akinalp/mqvi-client/ws"
)

// App, süreç boyunca yaşayan dependency'leri tutan container struct.
type App struct {
	Config    *config.Config
	Metrics   *metrics.Metrics
	Gateway   gateway.Gateway
	Hub       *ws.Hub
	Channels  services.ChannelService
	Localizer *i18n.Localizer
	Throttle  *ratelimit.SendThrottle
	Username  string

	repos *Repositories
	peers rtc.Factory
}

// initApp, kanal bağımsız dependency'leri oluşturur.
func initApp(cfg *config.Config) (*App, error) {
	if err := i18n.LoadEmbedded(); err != nil {
		return nil, fmt.Errorf("failed to load translations: %w", err)
	}
	loc := i18n.NewLocalizer(i18n.DetectLanguage(cfg.Locale, os.Getenv("LC_ALL"), os.Getenv("LANG")))

	m := metrics.New()
	gw := gateway.New(cfg.Server.URL, gateway.DefaultTimeout, m)

	username := token.Username(cfg.Auth.Token, cfg.Auth.Username)
	if cfg.Auth.Token != "" && token.Expired(cfg.Auth.Token, time.Now()) {
		log.Printf("[main] %s", loc.T("session.tokenExpired"))
	}

	// pion başlatılamazsa mesajlaşma yine çalışır; arama denemeleri ErrResource ile biter.
	peers, err := rtc.NewPionFactory()
	if err != nil {
		log.Printf("[main] webrtc unavailable, calls disabled: %v", err)
	}

	return &App{
		Config:    cfg,
		Metrics:   m,
		Gateway:   gw,
		Hub:       ws.NewHub(),
		Channels:  services.NewChannelService(gw, cfg.Auth.Token),
		Localizer: loc,
		Throttle:  ratelimit.NewSendThrottle(cfg.Send.MaxMessages, cfg.Send.Window, cfg.Send.Cooldown),
		Username:  username,
		repos:     initRepositories(cfg),
		peers:     peers,
	}, nil
}

// openSession, kanal için ChatSession oluşturur ve açar.
// Hub'ın Run goroutine'i önceden başlatılmış olmalıdır.
func (a *App) openSession(channel string, obs services.Observer, perm media.PermissionProvider) (*services.ChatSession, error) {
	cfg := a.Config

	session, err := services.NewChatSession(services.ChatSessionDeps{
		Gateway:     a.Gateway,
		Store:       a.repos.Transcript,
		Hub:         a.Hub,
		Peers:       a.peers,
		Permission:  perm,
		NewRecorder: media.WAVRecorderFactory(nil),
		NewPlayer:   media.ClockPlayerFactory,
		Throttle:    a.Throttle,
		Observer:    obs,
		Metrics:     a.Metrics,
	}, services.ChatSessionConfig{
		Channel:         channel,
		Token:           cfg.Auth.Token,
		LocalUser:       a.Username,
		SyncLimit:       cfg.Sync.Limit,
		SyncInterval:    cfg.Sync.Interval,
		DataDir:         cfg.Voice.DataDir,
		VoiceCacheTTL:   cfg.Voice.CacheTTL,
		ICEServers:      cfg.Call.STUNServers,
		DisconnectGrace: cfg.Call.DisconnectGrace,
	})
	if err != nil {
		return nil, err
	}

	session.Open()
	return session, nil
}

// pushURL, canlı push kanalının adresi. Yapılandırılmadıysa REST adresinden türetilir.
func (a *App) pushURL() string {
	if a.Config.Server.WSURL != "" {
		return a.Config.Server.WSURL
	}
	return strings.TrimSuffix(a.Config.Server.URL, "/") + "/ws"
}

// Close, repository'leri kapatır.
func (a *App) Close() {
	a.repos.Close()
}
