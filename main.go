// Package main, mqvi terminal client'ının giriş noktasıdır.
//
// Bu dosyanın görevi Dependency Injection "wire-up":
//   1. Config'i yükle (--config → CONFIG_FILE)
//   2. i18n, metrics, gateway, hub ve yerel cache'i oluştur (initApp)
//   3. WebSocket Hub'ı ve push client'ını başlat
//   4. Metrics endpoint'ini aç (METRICS_ADDR verilmişse)
//   5. Kanal oturumunu aç (ChatSession)
//   6. Terminal döngüsünü çalıştır
//   7. Graceful shutdown
//
// Global değişken YOK: her şey runChat içinde oluşturulup birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akinalp/mqvi-client/config"
	"github.com/akinalp/mqvi-client/metrics"
	"github.com/akinalp/mqvi-client/pkg"
	"github.com/akinalp/mqvi-client/pkg/promparse"
	"github.com/akinalp/mqvi-client/services"
	"github.com/akinalp/mqvi-client/ws"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd, komut ağacını kurar. Varsayılan komut sohbeti açar.
func newRootCmd() *cobra.Command {
	var (
		configFile string
		channel    string
	)

	root := &cobra.Command{
		Use:           "mqvi-client",
		Short:         "Terminal client for mqvi chat: messages, voice notes and P2P calls",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configFile != "" {
				os.Setenv("CONFIG_FILE", configFile)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.InOrStdin(), cmd.OutOrStdout(), channel)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	root.Flags().StringVarP(&channel, "channel", "c", "", "channel to open (overrides MQVI_CHANNEL)")

	root.AddCommand(newChannelsCmd(), newStatsCmd())
	return root
}

// runChat, etkileşimli oturumu başlatır ve bitene kadar bloklar.
func runChat(in io.Reader, out io.Writer, channel string) error {
	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if channel == "" {
		channel = cfg.Sync.Channel
	}
	if channel == "" {
		return fmt.Errorf("no channel given: use --channel or MQVI_CHANNEL")
	}

	// ─── 2. Dependency'ler ───
	app, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ─── 3. Hub + push client ───
	go app.Hub.Run(ctx)

	obs := newTerminalObserver(out, app.Localizer)
	onConnect, onDisconnect := connectionCallbacks(obs)
	push := ws.NewClient(app.pushURL(), cfg.Auth.Token, app.Hub,
		ws.WithMetrics(app.Metrics),
		ws.WithConnectionCallbacks(onConnect, onDisconnect),
	)
	go push.Run(ctx)

	// ─── 4. Metrics ───
	go func() {
		if err := app.Metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
			log.Printf("[metrics] server error: %v", err)
		}
	}()

	// ─── 5. Oturum ───
	term := newTerminal(app, obs, in)
	session, err := app.openSession(channel, obs, term.perm)
	if err != nil {
		return err
	}
	term.swap(session)
	obs.notice("session.opened", map[string]string{"channel": channel, "user": app.Username})

	// ─── 6. Terminal ───
	term.run(ctx)

	// ─── 7. Shutdown ───
	if s := term.swap(nil); s != nil {
		s.Close()
	}
	log.Println("[main] client stopped")
	return nil
}

// ─── channels ───

func newChannelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List, search, join and create channels",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				list, err := app.Channels.List(ctx)
				if err != nil {
					return err
				}
				for _, ch := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ch.ID, ch.DisplayName())
				}
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Search channels by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				list, err := app.Channels.Search(ctx, args[0])
				if err != nil {
					return err
				}
				for _, ch := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ch.ID, ch.DisplayName())
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "join <channel>",
		Short: "Join a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				if err := app.Channels.Join(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), app.Localizer.TWithParams("channel.joined", map[string]string{"channel": args[0]}))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				id, err := app.Channels.Create(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), app.Localizer.TWithParams("channel.created", map[string]string{"channel": args[0]}))
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "members <channel>",
		Short: "List channel members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *App) error {
				members, err := app.Channels.Members(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(members, "\n"))
				return nil
			})
		},
	})

	return cmd
}

// withApp, tek seferlik alt komutlar için config + App kurar.
func withApp(fn func(ctx context.Context, app *App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, app); err != nil {
		if errors.Is(err, pkg.ErrBadRequest) {
			return err
		}
		n := services.NoticeFor(err)
		return errors.New(app.Localizer.TWithParams(n.Key, n.Params))
	}
	return nil
}

// ─── stats ───

func newStatsCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the metrics of a running client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if cfg.Metrics.Addr == "" {
					return fmt.Errorf("no metrics address: use --url or METRICS_ADDR")
				}
				url = metricsURL(cfg.Metrics.Addr)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			body, err := fetchMetrics(ctx, url)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), promparse.Parse(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "metrics endpoint (default http://METRICS_ADDR/metrics)")
	return cmd
}

// metricsURL, ":9100" gibi bir dinleme adresini çekilebilir URL'e çevirir.
func metricsURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/metrics"
}

func fetchMetrics(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch metrics: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read metrics: %w", err)
	}
	return string(data), nil
}

// printStats, client metriklerinin kısa bir özetini yazar.
func printStats(w io.Writer, m *promparse.Metrics) {
	fmt.Fprintf(w, "requests:        %.0f\n", m.Sum(metrics.NameRequests))
	printGroup(w, "  by outcome", m.GroupBy(metrics.NameRequests, "outcome"))
	if n := m.Sum(metrics.NameRequestDuration + "_count"); n > 0 {
		avg := m.Sum(metrics.NameRequestDuration+"_sum") / n
		fmt.Fprintf(w, "  avg latency:   %s\n", time.Duration(avg*float64(time.Second)).Round(time.Millisecond))
	}
	printGroup(w, "refreshes", m.GroupBy(metrics.NameRefreshes, "outcome"))
	printGroup(w, "push events", m.GroupBy(metrics.NamePushEvents, "type"))
	printGroup(w, "voice uploads", m.GroupBy(metrics.NameVoiceUploads, "outcome"))
	printGroup(w, "playbacks", m.GroupBy(metrics.NamePlaybacks, "outcome"))
	printGroup(w, "call states", m.GroupBy(metrics.NameCallTransitions, "state"))
	fmt.Fprintf(w, "ws reconnects:   %.0f\n", m.Value(metrics.NameWSReconnects))
	fmt.Fprintf(w, "transcript size: %.0f\n", m.Value(metrics.NameTranscriptSize))
}

func printGroup(w io.Writer, title string, groups map[string]float64) {
	if len(groups) == 0 {
		return
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.0f", k, groups[k]))
	}
	fmt.Fprintf(w, "%s: %s\n", title, strings.Join(parts, " "))
}
