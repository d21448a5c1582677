package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mazeworld/internal/config"
	mazeserver "mazeworld/internal/server"
)

func main() {
	var cfgPath, cfgURL string
	flag.StringVar(&cfgPath, "config", "", "path to maze server configuration file")
	flag.StringVar(&cfgURL, "config-url", "", "remote configuration source fetched before start")
	flag.Parse()

	if cfgURL != "" {
		local, err := fetchRemoteConfig(cfgURL)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfgPath = local
	} else if wrote, err := writeConfigFromEnv(cfgPath); err != nil {
		log.Fatalf("sync config: %v", err)
	} else if wrote {
		log.Printf("configuration written to %s from environment", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	srv, err := mazeserver.New(cfg)
	if err != nil {
		log.Fatalf("initialise maze server: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			return
		}

		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
