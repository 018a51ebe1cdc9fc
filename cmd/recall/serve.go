package main

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"recall/internal/auth"
	"recall/internal/bot"
	"recall/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when configured, the Telegram bot",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(flagConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	// Build the bot before any worker starts so a failure leaves nothing running.
	var workers []func(context.Context)
	if a.cfg.TelegramBotToken != "" {
		botHandler, err := bot.NewHandler(a.cfg, a.service, a.log)
		if err != nil {
			return err
		}
		workers = append(workers, botHandler.Start)
	} else {
		a.log.Info("TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
	}
	if a.badger != nil {
		workers = append(workers, func(ctx context.Context) {
			a.badger.RunGC(ctx, a.cfg.BadgerGCInterval)
		})
	}

	identity := auth.NewClient(a.cfg.AuthBaseURL, a.log)
	server := httpapi.NewServer(a.service, identity, a.log)

	a.log.Info("Recall is running. Press Ctrl+C to exit.")
	err = supervise(cmd.Context(), func(ctx context.Context) error {
		return server.Run(ctx, a.cfg.ServerAddr)
	}, workers...)
	a.log.Info("Recall shut down gracefully.")
	return err
}

// supervise runs workers for as long as serve runs and returns only after
// every worker has stopped, so deferred cleanup never races them.
func supervise(ctx context.Context, serve func(context.Context) error, workers ...func(context.Context)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, work := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			work(ctx)
		}()
	}

	err := serve(ctx)
	cancel()
	wg.Wait()
	return err
}
