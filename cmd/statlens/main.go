package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/utrack/statlens"
	"go.uber.org/zap"
)

func main() {
	zcfg := zap.NewProductionConfig()
	if level := os.Getenv("STATLENS_LOG_LEVEL"); level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err == nil {
			zcfg.Level = lvl
		}
	}
	logger, err := zcfg.Build()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := statlens.Run(ctx, logger); err != nil {
		logger.Fatal("statlens stopped with error", zap.Error(err))
	}
}
