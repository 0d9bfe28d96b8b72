package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mysqlfanout/mysqlfanout/internal/api"
	"github.com/mysqlfanout/mysqlfanout/internal/config"
	"github.com/mysqlfanout/mysqlfanout/internal/health"
	"github.com/mysqlfanout/mysqlfanout/internal/metrics"
	"github.com/mysqlfanout/mysqlfanout/internal/proxy"
)

func main() {
	configPath := flag.String("config", "configs/mysqlfanoutd.yaml", "path to configuration file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("mysqlfanoutd starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Configuration loaded from %s (%d delegates)", *configPath, len(cfg.Delegates))

	m := metrics.New()
	hc := health.NewChecker(cfg.Delegates, m, cfg.HealthCheck)
	hc.Start()

	proxyServer := proxy.NewServer(cfg, m)
	if err := proxyServer.Listen(cfg.Listen.MySQLPort); err != nil {
		log.Fatalf("Failed to start MySQL proxy: %v", err)
	}

	apiServer, err := api.NewServer(cfg, hc, m)
	if err != nil {
		log.Fatalf("Failed to build API server: %v", err)
	}
	if err := apiServer.Start(cfg.Listen.APIPort); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		log.Printf("Reloading configuration...")
		proxyServer.UpdateConfig(newCfg)
	})
	if err != nil {
		log.Printf("Warning: config hot-reload not available: %v", err)
	}

	log.Printf("mysqlfanoutd ready - MySQL:%d API:%d", cfg.Listen.MySQLPort, cfg.Listen.APIPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %s, shutting down...", sig)

	if configWatcher != nil {
		configWatcher.Stop()
	}
	apiServer.Stop()
	proxyServer.Stop()
	hc.Stop()

	log.Printf("mysqlfanoutd stopped")
}
