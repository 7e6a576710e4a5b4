package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixperk/throttled/pkg/config"
	"github.com/pixperk/throttled/pkg/gateway"
	"github.com/pixperk/throttled/pkg/logging"
	"github.com/pixperk/throttled/pkg/node"
	"github.com/pixperk/throttled/pkg/throttle"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML config file")
		key        = flag.String("key", "demo.tick", "Operation key to throttle")
		interval   = flag.Duration("interval", time.Second, "Minimum interval between calls across all nodes")
		calls      = flag.Int("calls", 0, "Number of throttled calls to make (0 = until interrupted)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logging.New("throttled", logging.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
	})

	n, err := node.NewNode(node.Config{
		Host:           cfg.Host,
		Ports:          cfg.Ports,
		LockPath:       cfg.LockPath,
		LockExpiry:     cfg.LockExpiry,
		PollInterval:   cfg.PollInterval,
		JoinAttempts:   cfg.JoinAttempts,
		JoinRetryDelay: cfg.JoinRetryDelay,
		PingTimeout:    cfg.PingTimeout,
		DataDir:        cfg.DataDir,
		Logger:         logger.Named("node"),
	})
	if err != nil {
		logger.Error("failed to create node", "error", err)
		os.Exit(1)
	}
	defer n.Shutdown()

	logger.Info("starting throttle node",
		"node_id", n.ID(),
		"ports", cfg.Ports,
		"lock_path", cfg.LockPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Join(ctx); err != nil {
		//an unresolved node cannot throttle anything
		logger.Error("join failed", "error", err)
		n.Shutdown()
		os.Exit(1)
	}
	logger.Info("joined", "role", n.Role(), "coordinator", n.GetCoordinator())

	var gw *gateway.Server
	if cfg.HTTPAddr != "" {
		gw = gateway.NewServer(cfg.HTTPAddr, n)
		go func() {
			logger.Info("HTTP gateway listening", "addr", cfg.HTTPAddr)
			if err := gw.Start(ctx); err != nil {
				logger.Error("HTTP gateway failed", "error", err)
			}
		}()
	}

	tick, err := throttle.Wrap(ctx, n, *key, *interval, func() (time.Time, error) {
		return time.Now(), nil
	})
	if err != nil {
		logger.Error("failed to register operation", "key", *key, "error", err)
		n.Shutdown()
		os.Exit(1)
	}

	for i := 0; *calls == 0 || i < *calls; i++ {
		at, err := tick(ctx)
		if errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			logger.Error("throttled call failed", "error", err)
			break
		}
		logger.Info("admitted", "key", *key, "call", i+1, "at", at.Format(time.RFC3339Nano))
	}

	//keep serving admissions for participants until interrupted
	if n.IsCoordinator() && ctx.Err() == nil {
		logger.Info("coordinator stays up for participants, press Ctrl+C to stop")
		<-ctx.Done()
	}

	logger.Info("shutting down")
	if gw != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		gw.Stop(shutdownCtx)
	}
}
