package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"camwatch/internal/logger"
	"camwatch/internal/viewer"
)

type viewerConfig struct {
	ServerURL   string
	RelayURL    string
	RelayStream string
	STUNServers []string
	CachePath   string
	HUDInterval time.Duration
	ExpiryGrace time.Duration
}

func loadConfig() viewerConfig {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := viewerConfig{
		ServerURL:   getEnv("SERVER_URL", "http://localhost:8080"),
		RelayURL:    os.Getenv("GO2RTC_URL"),
		RelayStream: getEnv("GO2RTC_STREAM", "camera"),
		CachePath:   getEnv("SESSION_CACHE", defaultCachePath()),
		HUDInterval: 2 * time.Second,
		ExpiryGrace: 5 * time.Second,
	}
	if raw := os.Getenv("STUN_SERVERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.STUNServers = append(cfg.STUNServers, s)
			}
		}
	} else {
		cfg.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".camwatch-session.json"
	}
	return home + "/.camwatch/session.json"
}

func main() {
	slog.SetDefault(slog.New(logger.NewPrettyHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()
	api := viewer.NewAPIClient(cfg.ServerURL)
	cache := viewer.NewSessionCache(cfg.CachePath)

	transports := func(mode viewer.ViewMode) (viewer.Transport, error) {
		if mode == viewer.ViewVR && cfg.RelayURL != "" {
			return viewer.NewRelayTransport(cfg.RelayURL, cfg.RelayStream, cfg.STUNServers)
		}
		return viewer.NewDirectTransport(api, cfg.STUNServers), nil
	}

	ctrl := viewer.NewController(api, transports, cache, cfg.ExpiryGrace)
	ctrl.OnExpired = func() {
		fmt.Println("\nsession expired, please log in again")
	}
	defer ctrl.Close()

	hud := viewer.NewHUD(api, cfg.HUDInterval, ctrl.Streams, ctrl.Expiry)
	defer hud.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := ctrl.RestoreSession(); err == nil {
		slog.Info("restored cached session")
	} else {
		if err := loginLoop(ctx, ctrl, api); err != nil {
			slog.Error("login aborted", slog.String("error", err.Error()))
			return
		}
	}

	commandLoop(ctx, ctrl, hud)
}

func loginLoop(ctx context.Context, ctrl *viewer.Controller, api *viewer.APIClient) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fmt.Print("username (or 'register'): ")
		username, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		username = strings.TrimSpace(username)

		if username == "register" {
			if err := registerPrompt(ctx, reader, api); err != nil {
				fmt.Printf("register failed: %v\n", err)
			}
			continue
		}

		fmt.Print("password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}

		if err := ctrl.Login(ctx, username, string(password)); err != nil {
			fmt.Printf("login failed: %v\n", err)
			continue
		}
		return nil
	}
}

func registerPrompt(ctx context.Context, reader *bufio.Reader, api *viewer.APIClient) error {
	fmt.Print("new username: ")
	username, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	fmt.Print("new password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}

	if err := api.Register(ctx, strings.TrimSpace(username), string(password)); err != nil {
		return err
	}

	fmt.Println("account created, log in to continue")
	return nil
}

func commandLoop(ctx context.Context, ctrl *viewer.Controller, hud *viewer.HUD) {
	fmt.Println("commands: start, vr, stop, status, quit")
	scanner := bufio.NewScanner(os.Stdin)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch line {
			case "start":
				if err := ctrl.Start(ctx); err != nil {
					fmt.Printf("start: %v\n", err)
				} else {
					fmt.Println("stream connected")
				}
			case "vr":
				if err := ctrl.ToggleView(ctx); err != nil {
					fmt.Printf("toggle: %v\n", err)
				} else {
					fmt.Printf("view switched, state=%s\n", ctrl.State())
				}
			case "stop":
				if err := ctrl.Stop(); err != nil {
					fmt.Printf("stop: %v\n", err)
				}
			case "status":
				printStatus(ctrl, hud)
			case "quit", "exit":
				return
			case "":
			default:
				fmt.Println("commands: start, vr, stop, status, quit")
			}
		}
	}
}

func printStatus(ctrl *viewer.Controller, hud *viewer.HUD) {
	sample := hud.Snapshot()
	fmt.Printf("state=%s ping=%dms fps=%.1f", ctrl.State(), sample.PingMillis, sample.FPS)
	if sample.SessionNoTTL {
		fmt.Print(" session=unlimited")
	} else if sample.SessionLeft > 0 {
		fmt.Printf(" session=%s", sample.SessionLeft.Round(time.Second))
	}
	fmt.Println()
}
