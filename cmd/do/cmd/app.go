package cmd

import (
	"context"
	"fmt"

	"github.com/templui/stravasync/internal/app"
	"github.com/templui/stravasync/internal/config"
	"github.com/templui/stravasync/internal/logger"
)

func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer func() { _ = a.Close() }()

	return fn(a)
}
