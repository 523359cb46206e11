package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/last-signal/internal/app"
	"github.com/jwebster45206/last-signal/internal/config"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/internal/storage"
)

// ConsoleConfig selects between playing in-process and against the API.
type ConsoleConfig struct {
	APIBaseURL string        `env:"API_BASE_URL"`
	PlayerID   string        `env:"PLAYER_ID" envDefault:"console"`
	LogFile    string        `env:"CONSOLE_LOG"`
	Timeout    time.Duration `env:"CONSOLE_TIMEOUT" envDefault:"60s"`
}

func main() {
	var cfg ConsoleConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid console configuration: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.LogFile != "" {
		f, err := tea.LogToFile(cfg.LogFile, "console")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not open log file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			_ = f.Close()
		}()
		log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	var g game
	if cfg.APIBaseURL != "" {
		client := &http.Client{Timeout: cfg.Timeout}
		if !testConnection(client, cfg.APIBaseURL) {
			fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
			os.Exit(1)
		}
		g = newRemoteGame(client, cfg.APIBaseURL, cfg.PlayerID)
	} else {
		local, err := localSession(cfg.PlayerID, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start game: %v\n", err)
			os.Exit(1)
		}
		g = local
	}
	defer func() {
		_ = g.Close()
	}()

	p := tea.NewProgram(NewConsoleUI(g),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// localSession builds an in-process session from the same environment
// the API reads.
func localSession(owner string, log *slog.Logger) (*localGame, error) {
	appCfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	graph, personas, err := app.LoadContent(appCfg, log)
	if err != nil {
		return nil, err
	}
	backend := app.Backend(context.Background(), appCfg, log)
	n := app.Narrators(appCfg, backend, personas, log)()

	saves := storage.NewMemoryStorage(appCfg.MaxSaveSlots)
	sess := session.New(graph, n,
		session.WithLogger(log),
		session.WithSaves(saves, owner))
	return newLocalGame(sess, saves, owner), nil
}
