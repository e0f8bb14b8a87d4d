package news

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// ErrUnknownSource is returned when a named source is not configured.
var ErrUnknownSource = errors.New("unknown news source")

// DefaultLimit is how many headlines Latest returns when the caller does not
// ask for a specific count.
const DefaultLimit = 5

// Source is one RSS feed.
type Source struct {
	Name string
	URL  string
}

// DefaultSources are the business-news feeds polled out of the box.
var DefaultSources = []Source{
	{Name: "bbc", URL: "https://feeds.bbci.co.uk/news/business/rss.xml"},
	{Name: "nyt", URL: "https://rss.nytimes.com/services/xml/rss/nyt/Business.xml"},
}

// Service merges headlines from all configured sources. A failing source is
// logged and skipped; the rest still deliver.
type Service struct {
	sources []Source
	alpaca  *alpacamd.Client
	symbols []string
	log     zerolog.Logger
}

// NewService creates a Service over the given RSS sources. alpaca may be nil
// to disable the Alpaca source; symbols scope its query.
func NewService(sources []Source, alpaca *alpacamd.Client, symbols []string, log zerolog.Logger) *Service {
	return &Service{
		sources: sources,
		alpaca:  alpaca,
		symbols: symbols,
		log:     log.With().Str("component", "news").Logger(),
	}
}

// Latest fetches sources concurrently and returns the newest articles
// first, up to limit (DefaultLimit when limit <= 0). A non-empty source
// other than "all" narrows the fetch to that source, so its articles get
// the full limit rather than whatever survives a merged cut.
func (s *Service) Latest(ctx context.Context, source string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	feeds := s.sources
	useAlpaca := s.alpaca != nil
	if source != "" && source != "all" {
		feeds = nil
		for _, src := range s.sources {
			if src.Name == source {
				feeds = append(feeds, src)
			}
		}
		useAlpaca = s.alpaca != nil && source == "alpaca"
		if len(feeds) == 0 && !useAlpaca {
			return nil, fmt.Errorf("%w %q", ErrUnknownSource, source)
		}
	}

	var (
		mu       sync.Mutex
		articles []Article
		wg       sync.WaitGroup
	)
	collect := func(source string, items []Article, err error) {
		if err != nil {
			s.log.Warn().Err(err).Str("source", source).Msg("news source failed, skipping")
			return
		}
		mu.Lock()
		articles = append(articles, items...)
		mu.Unlock()
	}

	for _, src := range feeds {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			items, err := FetchRSS(ctx, src.Name, src.URL)
			collect(src.Name, items, err)
		}(src)
	}
	if useAlpaca {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := FetchAlpacaNews(s.alpaca, s.symbols, limit)
			collect("alpaca", items, err)
		}()
	}
	wg.Wait()

	sort.Slice(articles, func(i, j int) bool {
		return articles[i].Time.After(articles[j].Time)
	})
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}
