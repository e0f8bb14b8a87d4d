package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"sandtrader/internal/events"
	"sandtrader/internal/marketdata"
	"sandtrader/internal/news"
	"sandtrader/internal/store"
)

// Jobs runs the ancillary background work that is independent of the trading
// loop: price refreshes, news polling, and candle archival.
type Jobs struct {
	cron    *cron.Cron
	cache   *marketdata.Cache
	news    *news.Service
	hot     store.CandleStore
	archive *store.ParquetArchive
	bus     *events.Bus
	log     zerolog.Logger
	figis   []string
}

// NewJobs creates the job runner. archive may be nil to disable archival.
func NewJobs(
	cache *marketdata.Cache,
	newsSvc *news.Service,
	hot store.CandleStore,
	archive *store.ParquetArchive,
	bus *events.Bus,
	figis []string,
	log zerolog.Logger,
) *Jobs {
	return &Jobs{
		cron:    cron.New(),
		cache:   cache,
		news:    newsSvc,
		hot:     hot,
		archive: archive,
		bus:     bus,
		log:     log.With().Str("component", "jobs").Logger(),
		figis:   figis,
	}
}

// Start registers and starts the cron schedule.
func (j *Jobs) Start() error {
	if _, err := j.cron.AddFunc("@every 1m", j.refreshPrices); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc("@every 15m", j.refreshNews); err != nil {
		return err
	}
	if j.archive != nil {
		if _, err := j.cron.AddFunc("@hourly", j.archiveCandles); err != nil {
			return err
		}
	}
	j.cron.Start()
	j.log.Info().Strs("figis", j.figis).Msg("background jobs started")
	return nil
}

// Stop stops the schedule and waits for running jobs to finish.
func (j *Jobs) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.log.Info().Msg("background jobs stopped")
}

func (j *Jobs) refreshPrices() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prices, err := j.cache.RefreshPrices(ctx, j.figis)
	if err != nil {
		j.log.Warn().Err(err).Msg("scheduled price refresh failed")
		return
	}
	j.bus.Publish(events.TypePrices, prices)
}

func (j *Jobs) refreshNews() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	items, err := j.news.Latest(ctx, "", 0)
	if err != nil {
		j.log.Warn().Err(err).Msg("scheduled news refresh failed")
		return
	}
	j.bus.Publish(events.TypeNews, items)
}

// archiveCandles copies the last day of hot candles into the Parquet
// archive. The archive merge deduplicates, so overlap between runs is fine.
func (j *Jobs) archiveCandles() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	for _, figi := range j.figis {
		candles, err := j.hot.ReadCandles(ctx, figi, start, end)
		if err != nil {
			j.log.Warn().Err(err).Str("figi", figi).Msg("archive read failed")
			continue
		}
		if len(candles) == 0 {
			continue
		}
		if err := j.archive.AppendCandles(ctx, candles); err != nil {
			j.log.Warn().Err(err).Str("figi", figi).Msg("archive write failed")
			continue
		}
		j.log.Debug().Str("figi", figi).Int("candles", len(candles)).Msg("candles archived")
	}
}
