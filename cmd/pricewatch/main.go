// pricewatch streams top-of-book quotes for a market without trading.
// Useful for eyeballing the window statistics a live run would act on.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"poly-volmaker/internal/dotenv"
	"poly-volmaker/internal/gamma"
	"poly-volmaker/internal/marketws"
	"poly-volmaker/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var source string
	var gammaURL string
	var wsURL string
	var dropWindow time.Duration
	var dropPct float64
	var interval time.Duration

	flag.StringVar(&source, "market", strings.TrimSpace(os.Getenv("VOLMAKER_MARKET")), "Market URL, slug, or \"YES_ID,NO_ID\" token pair (VOLMAKER_MARKET env)")
	flag.StringVar(&gammaURL, "gamma-url", "", "Gamma API base URL (default https://gamma-api.polymarket.com)")
	flag.StringVar(&wsURL, "ws-url", marketws.DefaultURL, "Market WebSocket URL")
	flag.DurationVar(&dropWindow, "drop-window", 10*time.Minute, "Rolling window for drop statistics")
	flag.Float64Var(&dropPct, "drop-pct", 0.05, "Drop threshold to annotate")
	flag.DurationVar(&interval, "interval", time.Second, "Print interval")
	flag.Parse()

	if strings.TrimSpace(source) == "" {
		log.Fatalf("[fatal] --market is required")
	}

	gammaC, err := gamma.NewClient(gammaURL)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolveCtx, resolveCancel := context.WithTimeout(ctx, 20*time.Second)
	res, err := gammaC.ResolveSource(resolveCtx, source)
	resolveCancel()
	if err != nil {
		log.Fatalf("[fatal] resolve market: %v", err)
	}

	log.Printf("Watching: %s", res.Question)
	if !res.EndTime.IsZero() {
		log.Printf("Ends: %s", res.EndTime.Format(time.RFC3339))
	}
	for i, id := range res.TokenIDs {
		outcome := fmt.Sprintf("outcome %d", i)
		if i < len(res.Outcomes) {
			outcome = res.Outcomes[i]
		}
		log.Printf("Token %s: %s", outcome, id)
	}

	// One observer per token so both sides report window stats.
	observers := make(map[string]*strategy.Strategy, len(res.TokenIDs))
	for _, id := range res.TokenIDs {
		cfg := strategy.NewConfig(id)
		cfg.DropWindow = dropWindow
		cfg.DropPct = dropPct
		cfg.DisableSellSignals = true
		st, err := strategy.New(cfg)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		st.Stop("observe only")
		observers[id] = st
	}

	book := marketws.NewTopBook()
	ticks, errs := marketws.Start(ctx, wsURL, res.TokenIDs, marketws.Options{})
	go func() {
		for err := range errs {
			log.Printf("[ws][warn] %v", err)
		}
	}()

	lastPrint := time.Time{}
	for t := range ticks {
		book.Apply(t)
		if t.Closed {
			log.Printf("[market] close signal received, exiting")
			return
		}
		if st, ok := observers[t.AssetID]; ok {
			st.OnTick(t.BestAsk, t.BestBid, t.TS)
		}
		if time.Since(lastPrint) < interval {
			continue
		}
		lastPrint = time.Now()
		for i, id := range res.TokenIDs {
			bid, haveBid := book.BestBid(id)
			ask, haveAsk := book.BestAsk(id)
			if !haveBid && !haveAsk {
				continue
			}
			snap := observers[id].Status()
			label := fmt.Sprintf("#%d", i)
			if i < len(res.Outcomes) {
				label = res.Outcomes[i]
			}
			log.Printf(
				"[px] %-4s bid=%.4f ask=%.4f high=%.4f low=%.4f drop=%.2f%% (max %.2f%%) samples=%d",
				label, bid, ask,
				snap.DropStats.WindowHigh, snap.DropStats.WindowLow,
				snap.DropStats.CurrentDropRatio*100, snap.DropStats.MaxDropRatio*100,
				snap.DropStats.HistoryPoints,
			)
		}
	}
}
