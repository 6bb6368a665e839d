package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AltairaLabs/gesture-relay/internal/mockworker"
)

var (
	addr          = flag.String("addr", ":8765", "Listen address")
	debug         = flag.Bool("debug", false, "Enable debug logging")
	frameInterval = flag.Duration("frame-interval", 200*time.Millisecond, "Frame interval while the camera is on (0 disables frames)")
	sampleEvery   = flag.Duration("sample-interval", 40*time.Millisecond, "Delay between simulated recording samples")
	detectEvery   = flag.Duration("detect-interval", 0, "Emit a detection for the next gesture at this interval (0 disables)")
)

func main() {
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	worker := mockworker.New(mockworker.Config{
		SampleInterval: *sampleEvery,
		FrameInterval:  *frameInterval,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *detectEvery > 0 {
		go detectLoop(ctx, worker, *detectEvery)
	}

	fmt.Fprintf(os.Stderr, "Mock worker on ws://localhost%s\n", *addr)
	if err := worker.ListenAndServe(ctx, *addr); err != nil {
		log.Fatalf("Mock worker failed: %v", err)
	}
	logger.Info("Mock worker stopped")
}

// detectLoop cycles through the worker's gestures, emitting one detection per tick
func detectLoop(ctx context.Context, worker *mockworker.Worker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids := worker.GestureIDs()
			if len(ids) == 0 {
				continue
			}
			worker.Detect(ids[next%len(ids)], 0.9)
			next++
		}
	}
}
