package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Zidane-Khaled/RetroVerse/internal/config"
	"github.com/Zidane-Khaled/RetroVerse/internal/httpapi"
	"github.com/Zidane-Khaled/RetroVerse/internal/logging"
	"github.com/Zidane-Khaled/RetroVerse/internal/relay"
	"github.com/Zidane-Khaled/RetroVerse/internal/store"
	"github.com/Zidane-Khaled/RetroVerse/internal/ws"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("relay exited", zap.Error(err))
	}
}

func openJournal(cfg config.Server, log *zap.Logger) (store.Journal, error) {
	if cfg.DatabaseURL == "" {
		log.Info("session journal in memory")
		return store.NewMemoryJournal(), nil
	}
	j, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info("session journal in postgres")
	return j, nil
}

func run(cfg config.Server, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, err := openJournal(cfg, log)
	if err != nil {
		return err
	}
	rec := store.NewRecorder(journal, log, cfg.JournalQueue)

	h := relay.NewHub(ctx, log, rec)

	handler := httpapi.SetupRoutes(h, log, ws.Options{
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
		OutboxSize:     cfg.OutboxSize,
		OriginPatterns: cfg.AllowedOrigins,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("relay listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("relay shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		h.Shutdown()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	return multierr.Append(err, rec.Close())
}
