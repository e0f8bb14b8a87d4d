package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"sandtrader/internal/domain"
)

// Compile-time interface check.
var _ CandleStore = (*ParquetArchive)(nil)

// ParquetArchive implements CandleStore on Parquet files, used for long-term
// candle archives alongside the SQLite hot database.
type ParquetArchive struct {
	DataDir string
}

// NewParquetArchive creates an archive rooted at the given data directory.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// CandleRecord is the Parquet schema for archived candle data.
type CandleRecord struct {
	FIGI      string  `parquet:"figi"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// AppendCandles writes candles to Parquet files grouped by figi and year.
// Each figi+year combination produces a separate file at:
//
//	<DataDir>/candles/<FIGI>/<YYYY>.parquet
//
// Existing records are merged in; duplicates by (figi, timestamp) take the
// incoming value.
func (a *ParquetArchive) AppendCandles(_ context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	type key struct {
		figi string
		year int
	}
	groups := make(map[key][]CandleRecord)
	for _, c := range candles {
		k := key{figi: c.FIGI, year: c.Time.UTC().Year()}
		groups[k] = append(groups[k], CandleRecord{
			FIGI:      c.FIGI,
			Timestamp: c.Time.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}

	for k, records := range groups {
		path := a.candlePath(k.figi, k.year)

		existing, _ := readParquetFile[CandleRecord](path)
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("archiving candles for %s/%d: %w", k.figi, k.year, err)
		}
	}
	return nil
}

// ReadCandles reads archived candles for figi within [start, end].
func (a *ParquetArchive) ReadCandles(_ context.Context, figi string, start, end time.Time) ([]domain.Candle, error) {
	var candles []domain.Candle
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		records, err := readParquetFile[CandleRecord](a.candlePath(figi, year))
		if err != nil {
			// No archive file for this year.
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			candles = append(candles, domain.Candle{
				FIGI:   r.FIGI,
				Time:   ts,
				Open:   r.Open,
				High:   r.High,
				Low:    r.Low,
				Close:  r.Close,
				Volume: r.Volume,
			})
		}
	}
	return candles, nil
}

// ListFIGIs lists all instruments with archived candle data.
func (a *ParquetArchive) ListFIGIs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(a.DataDir, "candles"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var figis []string
	for _, e := range entries {
		if e.IsDir() {
			figis = append(figis, e.Name())
		}
	}
	sort.Strings(figis)
	return figis, nil
}

// candlePath returns the archive path for one figi and year.
func (a *ParquetArchive) candlePath(figi string, year int) string {
	return filepath.Join(a.DataDir, "candles", figi, fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeCandleRecords deduplicates by (figi, timestamp), preferring incoming
// records over existing ones. Results are sorted by timestamp.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	type key struct {
		figi string
		ts   int64
	}
	seen := make(map[key]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.FIGI, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.FIGI, r.Timestamp}] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
