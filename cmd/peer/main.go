package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Zidane-Khaled/RetroVerse/internal/config"
	"github.com/Zidane-Khaled/RetroVerse/internal/driver"
	"github.com/Zidane-Khaled/RetroVerse/internal/engine"
	"github.com/Zidane-Khaled/RetroVerse/internal/lockstep"
	"github.com/Zidane-Khaled/RetroVerse/internal/logging"
	"github.com/Zidane-Khaled/RetroVerse/internal/ws"
)

func main() {
	cfg, err := config.LoadPeer()
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
		if ws.IsSessionFull(err) {
			log.Error("session is full, try another code", zap.String("code", cfg.SessionCode))
			os.Exit(1)
		}
		log.Fatal("peer exited", zap.Error(err))
	}
}

func relayURL(cfg config.Peer) (string, error) {
	u, err := url.Parse(cfg.RelayURL)
	if err != nil {
		return "", fmt.Errorf("parse RELAY_URL: %w", err)
	}
	if cfg.SessionCode != "" {
		q := u.Query()
		q.Set("code", cfg.SessionCode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func run(cfg config.Peer, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := script(cfg.InputScript)
	if err != nil {
		return err
	}
	target, err := relayURL(cfg)
	if err != nil {
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := ws.Dial(dctx, target, log)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()
	log.Info("connected to relay", zap.String("url", target))

	events := lockstep.NewEventQueue(32)
	coord := lockstep.New(client, events, lockstep.Config{
		MaxWaitFrames:      cfg.MaxWaitFrames,
		CheckpointInterval: cfg.CheckpointInterval,
		Logger:             log,
	})
	arena := engine.NewArena()
	loop := driver.New(coord, arena, in, cfg.TickRate, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(gctx, coord)
	})
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		// SIGHUP restarts the match from frame 0; the other peer is expected
		// to be reset at the same time
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				loop.Reset()
			}
		}
	})
	g.Go(func() error {
		t := time.NewTicker(cfg.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				coord.Ping(gctx)
				log.Debug("status", zap.Any("status", coord.Snapshot()))
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case e := <-events.Events():
				switch e.Kind {
				case lockstep.EventReady:
					log.Info("match started", zap.String("role", string(e.Role)))
				case lockstep.EventPause:
					log.Warn("match paused", zap.String("reason", e.Reason))
				case lockstep.EventDesync:
					log.Error("match desynced",
						zap.Uint64("frame", uint64(e.Desync.Frame)),
						zap.String("local", e.Desync.Local),
						zap.String("remote", e.Desync.Remote),
					)
					return errDesynced
				}
			}
		}
	})

	err = g.Wait()
	log.Info("peer stopped",
		zap.Uint64("frame", uint64(coord.Frame())),
		zap.Uint64("ticks", loop.Ticks()),
		zap.String("digest", arena.Digest()),
	)
	return err
}

var errDesynced = errors.New("simulation desynced")
