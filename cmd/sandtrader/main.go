package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sandtrader/internal/broker"
	"sandtrader/internal/config"
	"sandtrader/internal/domain"
	"sandtrader/internal/engine"
	"sandtrader/internal/events"
	"sandtrader/internal/marketdata"
	"sandtrader/internal/news"
	"sandtrader/internal/scheduler"
	"sandtrader/internal/server"
	"sandtrader/internal/store"
	"sandtrader/internal/strategy/builtins"
	"sandtrader/internal/tracker"
	"sandtrader/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/sandtrader.yaml", "path to config file")
	simulate := flag.Bool("simulate", false, "run against the in-memory simulator instead of the sandbox API")
	autostart := flag.Bool("autostart", false, "start trading immediately instead of waiting for a command")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	if *simulate && os.Getenv("TINKOFF_SANDBOX_TOKEN") == "" {
		// The simulator needs no credentials.
		os.Setenv("TINKOFF_SANDBOX_TOKEN", "simulated")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := util.NewLogger(cfg.Logging.Level)
	log.Info().Str("config", *cfgPath).Bool("simulate", *simulate).Msg("sandtrader starting")

	var b broker.Broker
	if *simulate {
		b = broker.NewSimulator(map[string]domain.Money{
			cfg.Trading.FIGI:      domain.NewMoney(100, 0, cfg.Trading.Currency),
			cfg.Trading.ChartFIGI: domain.NewMoney(250, 0, cfg.Trading.Currency),
		})
	} else {
		b = broker.NewInvestClient(cfg.Broker.Token, cfg.Broker.BaseURL,
			cfg.Broker.Timeout, cfg.Broker.RateLimitPerMin, log)
	}

	sq, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("opening sqlite store")
	}
	defer sq.Close()

	var archive *store.ParquetArchive
	if cfg.Storage.ArchiveDir != "" {
		archive = store.NewParquetArchive(cfg.Storage.ArchiveDir)
	}

	bus := events.NewBus()
	cache := marketdata.NewCache(b, log)
	trk := tracker.New(b, log)
	threshold := domain.MoneyFromFloat(cfg.Trading.Threshold, cfg.Trading.Currency)
	strat := builtins.NewThreshold(cfg.Trading.FIGI, threshold, cfg.Trading.BuyQuantity)
	risk := engine.NewRiskManager(cfg.Trading.MaxLotsPerOrder, cfg.Trading.MaxOpenOrders)
	eng := engine.NewEngine(b, trk, cache, strat, sq, bus, risk, log)

	// Lot sizes come from the broker's instrument metadata; instruments the
	// broker does not list trade in lots of one unit.
	lotCtx, cancelLots := context.WithTimeout(context.Background(), 30*time.Second)
	instruments, err := b.ListInstruments(lotCtx)
	cancelLots()
	if err != nil {
		log.Warn().Err(err).Msg("instrument list unavailable, assuming one-unit lots")
	} else {
		for _, inst := range instruments {
			eng.SetLotSize(inst.FIGI, inst.Lot)
		}
	}

	payIn := domain.NewMoney(cfg.Trading.PayIn, 0, cfg.Trading.Currency)
	loop := scheduler.NewLoop(b, eng, bus, cfg.Trading.CycleInterval, payIn, log)

	newsSvc := news.NewService(news.DefaultSources, nil, cfg.News.Symbols, log)

	figis := []string{cfg.Trading.FIGI}
	if cfg.Trading.ChartFIGI != "" && cfg.Trading.ChartFIGI != cfg.Trading.FIGI {
		figis = append(figis, cfg.Trading.ChartFIGI)
	}

	jobs := scheduler.NewJobs(cache, newsSvc, sq, archive, bus, figis, log)
	if err := jobs.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting background jobs")
	}
	defer jobs.Stop()

	srv := server.New(server.Deps{
		Addr:      cfg.Server.Addr(),
		Broker:    b,
		Loop:      loop,
		Cache:     cache,
		News:      newsSvc,
		Candles:   sq,
		Trades:    sq,
		Bus:       bus,
		Figis:     figis,
		ChartFIGI: cfg.Trading.ChartFIGI,
		Log:       log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if *autostart {
		if err := loop.Start(context.Background()); err != nil {
			log.Error().Err(err).Msg("autostart failed, waiting for a start command")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	if loop.State() == scheduler.StateRunning {
		if stopped, err := loop.Stop(); err != nil {
			log.Warn().Err(err).Msg("stopping trading loop")
		} else {
			select {
			case <-stopped:
			case <-time.After(cfg.Trading.CycleInterval):
				log.Warn().Msg("trading loop did not stop within one cycle")
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("sandtrader stopped")
}
