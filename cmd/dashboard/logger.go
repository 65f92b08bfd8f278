package main

import (
	"github.com/septivank/meter-dashboard/internal/config"
	"github.com/septivank/meter-dashboard/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
