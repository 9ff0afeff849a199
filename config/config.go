// Package config, client'ın tüm konfigürasyonunu merkezi olarak yönetir.
//
// Değerler üç katmandan okunur, sonraki öncekini ezer:
//  1. Varsayılanlar (Default)
//  2. CONFIG_FILE ile verilen YAML dosyası (opsiyonel)
//  3. Environment variable'lar (.env dosyası da desteklenir)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config, client'ın tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Sync     SyncConfig     `yaml:"sync"`
	Send     SendConfig     `yaml:"send"`
	Voice    VoiceConfig    `yaml:"voice"`
	Call     CallConfig     `yaml:"call"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Locale   string         `yaml:"locale"`
}

// ServerConfig, sunucu adresleri.
type ServerConfig struct {
	URL   string `yaml:"url"`    // REST base URL (ör: http://localhost:3000)
	WSURL string `yaml:"ws_url"` // boşsa URL + /ws
}

// İstek timeout'ları ayarlanamaz; gateway.DefaultTimeout (10 sn) sabittir.

// AuthConfig, login akışının ürettiği bearer token.
type AuthConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"` // token JWT değilse kullanılır
}

// SyncConfig, transcript senkronizasyon ayarları.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Limit    int           `yaml:"limit"`
	Channel  string        `yaml:"channel"` // açılışta aktif kanal
}

// SendConfig, client tarafı gönderim kısıtlaması. MaxMessages 0 ise kapalı.
type SendConfig struct {
	MaxMessages int           `yaml:"max_messages"`
	Window      time.Duration `yaml:"window"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// VoiceConfig, sesli mesaj ayarları.
type VoiceConfig struct {
	DataDir  string        `yaml:"data_dir"`  // scoped kayıt/indirme dosyaları
	CacheTTL time.Duration `yaml:"cache_ttl"` // indirilen dosyaların ömrü
}

// CallConfig, P2P arama ayarları.
type CallConfig struct {
	STUNServers     []string      `yaml:"stun_servers"`
	DisconnectGrace time.Duration `yaml:"disconnect_grace"`
}

// DatabaseConfig, yerel transcript cache'i. Path boşsa cache kapalıdır.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig, opsiyonel Prometheus endpoint'i. Addr boşsa kapalıdır.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default, varsayılan konfigürasyonu döner.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "http://localhost:3000",
		},
		Sync: SyncConfig{
			Interval: 3 * time.Second,
			Limit:    100,
		},
		Send: SendConfig{
			MaxMessages: 5,
			Window:      5 * time.Second,
			Cooldown:    15 * time.Second,
		},
		Voice: VoiceConfig{
			DataDir:  "./data/voice",
			CacheTTL: 10 * time.Minute,
		},
		Call: CallConfig{
			STUNServers: []string{
				"stun:stun.l.google.com:19302",
				"stun:stun1.l.google.com:19302",
			},
			DisconnectGrace: 2 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/mqvi-client.db",
		},
	}
}

// Load, varsayılanlar + YAML + environment'tan Config oluşturur.
// .env dosyası varsa önce o yüklenir; yoksa sessizce devam edilir.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// mergeFile, YAML dosyasını mevcut değerlerin üzerine decode eder.
// Dosyada olmayan alanlar varsayılan kalır.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Server.URL = getEnv("MQVI_SERVER_URL", c.Server.URL)
	c.Server.WSURL = getEnv("MQVI_WS_URL", c.Server.WSURL)
	c.Auth.Token = getEnv("MQVI_TOKEN", c.Auth.Token)
	c.Auth.Username = getEnv("MQVI_USERNAME", c.Auth.Username)
	c.Sync.Channel = getEnv("MQVI_CHANNEL", c.Sync.Channel)
	c.Voice.DataDir = getEnv("VOICE_DATA_DIR", c.Voice.DataDir)
	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)
	c.Locale = getEnv("LOCALE", c.Locale)

	if v := getEnv("STUN_SERVERS", ""); v != "" {
		c.Call.STUNServers = splitList(v)
	}

	var err error
	if c.Sync.Interval, err = getDuration("SYNC_INTERVAL", c.Sync.Interval); err != nil {
		return err
	}
	if c.Voice.CacheTTL, err = getDuration("VOICE_CACHE_TTL", c.Voice.CacheTTL); err != nil {
		return err
	}
	if c.Call.DisconnectGrace, err = getDuration("CALL_DISCONNECT_GRACE", c.Call.DisconnectGrace); err != nil {
		return err
	}
	if c.Sync.Limit, err = getInt("SYNC_LIMIT", c.Sync.Limit); err != nil {
		return err
	}
	if c.Send.MaxMessages, err = getInt("SEND_MAX_MESSAGES", c.Send.MaxMessages); err != nil {
		return err
	}
	return nil
}

// Validate, zorunlu alanları ve aralıkları kontrol eder.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server url cannot be empty")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.Limit < 1 {
		return fmt.Errorf("sync limit must be at least 1, got %d", c.Sync.Limit)
	}
	if c.Voice.DataDir == "" {
		return fmt.Errorf("voice data_dir cannot be empty")
	}
	if c.Call.DisconnectGrace < 0 {
		return fmt.Errorf("call disconnect_grace cannot be negative")
	}
	return nil
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// splitList, "a, b,,c" → ["a" "b" "c"].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
