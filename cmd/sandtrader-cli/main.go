package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"sandtrader/pkg/sandtrader"
)

const version = "0.1.0"

func main() {
	server := flag.String("server", "http://localhost:8080", "sandtrader server URL")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sandtrader-cli [-server URL] <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status       Show bot status\n")
		fmt.Fprintf(os.Stderr, "  portfolio    Show the current portfolio\n")
		fmt.Fprintf(os.Stderr, "  prices       Show last prices\n")
		fmt.Fprintf(os.Stderr, "  trades [n]   Show the n most recent trades (default 10)\n")
		fmt.Fprintf(os.Stderr, "  instruments  List tradeable instruments\n")
		fmt.Fprintf(os.Stderr, "  news [n]     Show the n latest headlines (default 5)\n")
		fmt.Fprintf(os.Stderr, "\n")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	client := sandtrader.NewClient(*server)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("sandtrader-cli %s\n", version)

	case "status":
		err = showStatus(ctx, client)

	case "portfolio":
		err = showPortfolio(ctx, client)

	case "prices":
		err = showPrices(ctx, client)

	case "trades":
		err = showTrades(ctx, client, argInt(args, 1, 10))

	case "instruments":
		err = showInstruments(ctx, client)

	case "news":
		err = showNews(ctx, client, argInt(args, 1, 5))

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func argInt(args []string, idx, def int) int {
	if len(args) > idx {
		if n, err := strconv.Atoi(args[idx]); err == nil {
			return n
		}
	}
	return def
}

func showStatus(ctx context.Context, c *sandtrader.Client) error {
	s, err := c.GetStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("broker:  %s\n", s.Broker)
	fmt.Printf("trading: %s\n", s.Trading)
	fmt.Printf("account: %s\n", s.Account)
	return nil
}

func showPortfolio(ctx context.Context, c *sandtrader.Client) error {
	p, err := c.GetPortfolio(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("total: %.2f %s\n", p.Total.Float64(), p.Total.Currency)
	if len(p.Positions) == 0 {
		fmt.Println("no open positions")
		return nil
	}
	for _, pos := range p.Positions {
		fmt.Printf("  %-14s %10.2f\n", pos.FIGI, pos.Quantity)
	}
	return nil
}

func showPrices(ctx context.Context, c *sandtrader.Client) error {
	prices, err := c.GetPrices(ctx)
	if err != nil {
		return err
	}
	for figi, p := range prices {
		fmt.Printf("%-14s %10.2f %s  (%s)\n", figi, p.Price.Float64(), p.Price.Currency,
			p.Time.Format(time.RFC3339))
	}
	return nil
}

func showTrades(ctx context.Context, c *sandtrader.Client, limit int) error {
	trades, err := c.GetTrades(ctx, limit)
	if err != nil {
		return err
	}
	for _, t := range trades {
		fmt.Printf("%s  %-4s %-14s %6d @ %.2f\n",
			t.Time.Format("2006-01-02 15:04:05"), t.Direction, t.FIGI, t.Quantity, t.Price)
	}
	return nil
}

func showInstruments(ctx context.Context, c *sandtrader.Client) error {
	instruments, err := c.GetInstruments(ctx)
	if err != nil {
		return err
	}
	for _, in := range instruments {
		fmt.Printf("%-14s %-8s %s\n", in.FIGI, in.Ticker, in.Name)
	}
	return nil
}

func showNews(ctx context.Context, c *sandtrader.Client, limit int) error {
	articles, err := c.GetNews(ctx, "", limit)
	if err != nil {
		return err
	}
	for _, a := range articles {
		fmt.Printf("[%s] %s: %s\n", a.Time.Format("2006-01-02 15:04"), a.Source, a.Headline)
	}
	return nil
}
