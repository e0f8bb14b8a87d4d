// Package news aggregates market headlines from RSS feeds and the Alpaca
// news API.
package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// Article is a single headline from any source.
type Article struct {
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Headline string    `json:"headline"`
	Content  string    `json:"content"`
	Link     string    `json:"link,omitempty"`
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// --- RSS ---

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
	Link    string `xml:"link"`
}

// FetchRSS fetches and decodes one RSS feed. Items whose publication date
// cannot be parsed are skipped.
func FetchRSS(ctx context.Context, source, feedURL string) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s feed: status %d", source, resp.StatusCode)
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("%s feed: %w", source, err)
	}

	var articles []Article
	for _, item := range rss.Channel.Items {
		t, err := time.Parse(time.RFC1123Z, item.PubDate)
		if err != nil {
			t, err = time.Parse(time.RFC1123, item.PubDate)
			if err != nil {
				continue
			}
		}
		articles = append(articles, Article{
			Time:     t.UTC(),
			Source:   source,
			Headline: strings.TrimSpace(item.Title),
			Content:  StripHTML(item.Desc),
			Link:     strings.TrimSpace(item.Link),
		})
	}
	return articles, nil
}

// --- Alpaca ---

// FetchAlpacaNews fetches recent news for the given symbols from the Alpaca
// marketdata API.
func FetchAlpacaNews(mdc *marketdata.Client, symbols []string, limit int) ([]Article, error) {
	alpacaNews, err := mdc.GetNews(marketdata.GetNewsRequest{
		Symbols:    symbols,
		TotalLimit: limit,
		Sort:       marketdata.SortDesc,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(alpacaNews))
	for _, a := range alpacaNews {
		body := a.Summary
		if body == "" {
			body = StripHTML(a.Content)
		}
		articles = append(articles, Article{
			Time:     a.CreatedAt.UTC(),
			Source:   "alpaca",
			Headline: a.Headline,
			Content:  body,
			Link:     a.URL,
		})
	}
	return articles, nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes tags, unescapes entities, and collapses whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
