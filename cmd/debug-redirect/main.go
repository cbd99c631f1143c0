package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/quasar/mcauth/internal/api"
	"github.com/quasar/mcauth/internal/config"
	"github.com/quasar/mcauth/internal/redirect"
)

// Runs only the browser half of the login and prints what the redirect
// server captured, without redeeming the code.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := api.NewAuthClient(http.DefaultClient, cfg.MSAClientID, redirect.RedirectURL(cfg.RedirectAddr))
	pending := client.CreateAuthorization()

	fmt.Printf("Listening on %s\n", cfg.RedirectAddr)
	fmt.Printf("Open: %s\n", pending.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	finished, err := redirect.StartServer(ctx, cfg.RedirectAddr, pending, logger)
	if err != nil {
		fmt.Printf("Capture failed: %v\n", err)
		os.Exit(1)
	}

	code := finished.Code
	if len(code) > 8 {
		code = code[:8] + "..."
	}
	fmt.Printf("Captured code %s (%d bytes), state verified\n", code, len(finished.Code))
}
