package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/projector"
)

var (
	relayURL = flag.String("url", "ws://localhost:3001/ws", "Relay WebSocket URL")
	debug    = flag.Bool("debug", false, "Enable debug logging")
	frames   = flag.Bool("frames", false, "Print a line for every frame event")
)

func main() {
	flag.Parse()

	logLevel := slog.LevelWarn
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	p := projector.New(
		projector.WithLogger(logger),
		projector.WithListener(func(change projector.Change, view projector.View) {
			if line := render(change, view, *frames); line != "" {
				fmt.Println(line)
			}
		}),
	)
	client := projector.NewClient(projector.ClientConfig{
		URL:        *relayURL,
		RetryDelay: config.DefaultClientRetryDelay,
		Logger:     logger,
	}, p)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(titleStyle.Render("gesturemon") + " " + mutedStyle.Render("watching "+*relayURL))
	_ = client.Run(ctx)
}
