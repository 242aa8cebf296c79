package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autotrader/internal/api"
	"autotrader/internal/engine"
	"autotrader/internal/events"
	"autotrader/internal/gateway"
	"autotrader/internal/market"
	"autotrader/internal/risk"
	"autotrader/internal/store"
	"autotrader/internal/strategy"
	"autotrader/pkg/config"
	"autotrader/pkg/exchanges/common"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	bus := events.NewBus()
	manager := gateway.NewManager()
	source := market.NewSource(manager, bus)

	stats := store.StatsSource{DB: db}
	eng := engine.New(engine.Config{
		Market:  source,
		Placer:  manager,
		Gate:    risk.NewGate(),
		Profile: store.ProfileSource{DB: db, UserID: cfg.UserID},
		Stats:   stats,
		Bus:     bus,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	connectConfiguredExchanges(ctx, cfg, manager, source)
	startConfiguredStrategies(ctx, cfg, db, eng)
	cancel()

	server := api.NewServer(api.Config{
		Bus:       bus,
		DB:        db,
		Gateway:   manager,
		Engine:    eng,
		Gate:      risk.NewGate(),
		Market:    source,
		Stats:     stats,
		JWTSecret: cfg.JWTSecret,
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()
	log.Printf("autotrader listening on :%s", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down")
	eng.Shutdown()
	manager.Shutdown()
}

// connectConfiguredExchanges registers adapters for any credentials set in
// the environment and starts watching the configured symbols. Failures
// are logged; the platform still serves its API so adapters can be added
// at runtime.
func connectConfiguredExchanges(ctx context.Context, cfg *config.Config, manager *gateway.Manager, source *market.Source) {
	type target struct {
		creds gateway.Credentials
		label string
	}
	var targets []target
	if cfg.BinanceAPIKey != "" {
		targets = append(targets, target{gateway.Credentials{
			Exchange:  common.ExchangeBinance,
			APIKey:    cfg.BinanceAPIKey,
			APISecret: cfg.BinanceAPISecret,
			Testnet:   cfg.BinanceTestnet,
		}, "binance"})
	}
	if cfg.BybitAPIKey != "" {
		targets = append(targets, target{gateway.Credentials{
			Exchange:  common.ExchangeBybit,
			APIKey:    cfg.BybitAPIKey,
			APISecret: cfg.BybitAPISecret,
			Testnet:   cfg.BybitTestnet,
		}, "bybit"})
	}

	for _, t := range targets {
		key, err := manager.CreateAndConnect(ctx, t.creds)
		if err != nil {
			log.Printf("connect %s: %v", t.label, err)
			continue
		}
		for _, symbol := range cfg.Symbols {
			if err := source.Watch(ctx, key, symbol); err != nil {
				log.Printf("watch %s on %s: %v", symbol, key, err)
			}
		}
	}
}

// startConfiguredStrategies syncs the YAML strategy file into the store
// and launches entries marked auto_start.
func startConfiguredStrategies(ctx context.Context, cfg *config.Config, db *store.Database, eng *engine.Engine) {
	defs, err := strategy.LoadDefinitions(cfg.StrategyConfigPath)
	if err != nil {
		log.Printf("strategy config: %v", err)
		return
	}
	if err := db.SyncDefinitions(ctx, defs); err != nil {
		log.Printf("sync strategy definitions: %v", err)
	}

	for _, def := range defs {
		if !def.AutoStart {
			continue
		}
		strat, err := def.Build()
		if err != nil {
			log.Printf("build strategy %s: %v", def.Name, err)
			continue
		}
		if err := eng.Start(ctx, strat, def.GatewayKey); err != nil {
			log.Printf("start strategy %s: %v", def.Name, err)
		}
	}
}
