package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/memberberries/internal/config"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/db"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/preview"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/realtime"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/service"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/transport"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			NewLogger,
			db.NewGormClient,
			realtime.NewHub,
			service.NewGeneral,
			preview.NewFetcher,
			transport.NewHTTPServer,
		),
		fx.Invoke(func(server *transport.HTTPServer) {}),
	)

	app.Run()
}

func NewLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if cfg.LogLevel == "debug" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
