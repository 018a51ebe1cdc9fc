package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"recall/internal/config"
	"recall/internal/importer"
	"recall/internal/logging"
	"recall/internal/scraper"
	"recall/internal/storage"
	"recall/internal/summarizer"
)

// app bundles the wired components shared by every command.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	repo    storage.Repository
	badger  *storage.BadgerRepository
	service *importer.Service
}

func newApp(configDir string) (*app, error) {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	// --- Logger Setup ---
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.WithFields(logrus.Fields{
		"storage_driver": cfg.StorageDriver,
		"scraper_driver": cfg.ScraperDriver,
	}).Info("Configuration loaded successfully")

	// --- Initialize Components ---
	a := &app{cfg: cfg, log: log}

	switch cfg.StorageDriver {
	case config.StorageBadger:
		a.badger, err = storage.NewBadgerRepository(cfg.BadgerDBPath, log)
		a.repo = a.badger
	default:
		a.repo, err = storage.NewSQLRepository(cfg.StorageDriver, cfg.DatabaseDSN, log)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	var provider scraper.Provider
	switch cfg.ScraperDriver {
	case config.ScraperBrowser:
		provider = scraper.NewBrowserProvider(cfg.ScraperTimeout, log)
	default:
		provider = scraper.NewFirecrawlClient(cfg.FirecrawlBaseURL, cfg.FirecrawlAPIKey, cfg.ScraperTimeout, log)
	}

	llm := summarizer.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, log)

	a.service = importer.NewService(importer.Deps{
		Repository: a.repo,
		Scraper:    provider,
		Summarizer: llm,
		Logger:     log,
	})
	return a, nil
}

func (a *app) Close() {
	a.log.Info("Closing database...")
	if err := a.repo.Close(); err != nil {
		a.log.WithError(err).Error("Error closing database")
	}
}
