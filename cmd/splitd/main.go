package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/atch2203/split-the-bill/internal/config"
	"github.com/atch2203/split-the-bill/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	mode := flag.String("mode", "host", "Session mode: host, join, or resume")
	roomID := flag.String("room", "", "Room id to host under (host mode; generated when empty)")
	link := flag.String("link", "", "Share link or room URL to join (join mode)")
	passcode := flag.String("passcode", "", "Session passcode (host: required from guests; join: offered to host)")
	receiptPath := flag.String("receipt", "", "Receipt text file to seed the bill from (host mode)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // best-effort flush

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(cfg, logger)
	if err := app.Run(ctx, runOptions{
		Mode:        *mode,
		RoomID:      *roomID,
		Link:        *link,
		Passcode:    *passcode,
		ReceiptPath: *receiptPath,
	}); err != nil {
		logger.Fatal("splitd exited with error", zap.Error(err))
	}
}
