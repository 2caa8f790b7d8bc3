package main

import (
	"fmt"

	"github.com/Skyhug-AI/skyhug-backend/internal/config"
	"github.com/Skyhug-AI/skyhug-backend/internal/db"
	"github.com/Skyhug-AI/skyhug-backend/internal/llm"
	"github.com/Skyhug-AI/skyhug-backend/internal/logging"
	"github.com/Skyhug-AI/skyhug-backend/internal/metrics"
	"github.com/Skyhug-AI/skyhug-backend/internal/store"
	"github.com/Skyhug-AI/skyhug-backend/internal/summarizer"
	"go.uber.org/zap"
)

// app holds the collaborators shared by every command that talks to the
// row store and the completion API.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *store.Store
	client *llm.Client
}

func connectFromConfig(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	st, err := store.New(gormDB)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(llm.ClientOpts{
		APIKey:            cfg.OpenAI.APIKey,
		BaseURL:           cfg.OpenAI.BaseURL,
		TranscribeModel:   cfg.OpenAI.TranscribeModel,
		Timeout:           cfg.OpenAI.RequestTimeout(),
		RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		Burst:             cfg.OpenAI.Burst,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: st, client: client}, nil
}

func (a *app) summarizer(m *metrics.Metrics) (*summarizer.Service, error) {
	return summarizer.New(summarizer.Opts{
		Store:     a.store,
		Completer: a.client,
		Model:     a.cfg.OpenAI.FastModel,
		Metrics:   m,
		Logger:    a.log.Named("summarizer"),
	})
}
