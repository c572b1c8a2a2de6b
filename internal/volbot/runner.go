// Package volbot wires the price-window strategy, the maker order
// follower, and the batch execution engine into one trading loop driven
// by the CLOB market websocket.
package volbot

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"poly-volmaker/internal/clob"
	"poly-volmaker/internal/dataapi"
	"poly-volmaker/internal/dotenv"
	"poly-volmaker/internal/execution"
	"poly-volmaker/internal/gamma"
	"poly-volmaker/internal/jsonl"
	"poly-volmaker/internal/maker"
	"poly-volmaker/internal/marketws"
	"poly-volmaker/internal/orderapi"
	"poly-volmaker/internal/polygonutil"
	"poly-volmaker/internal/state"
	"poly-volmaker/internal/strategy"
)

const (
	statusMinInterval = 10 * time.Second
	buyCooldown       = time.Second
	sellOnlyWarnAt    = 5 * time.Minute
	closeRecheckEvery = 10 * time.Second
)

// dustEps distinguishes a real residual from float noise after a sell.
const dustEps = 1e-4

type runner struct {
	parsed args

	api    orderapi.API
	gammaC *gamma.Client
	dataC  *dataapi.Client
	engine *execution.Engine
	// clobC is only set for live runs with API creds; used for the exit
	// trade recap.
	clobC *clob.Client

	book  *marketws.TopBook
	strat *strategy.Strategy
	// stratMu serializes strategy access between the tick consumer and
	// the action loop.
	stratMu sync.Mutex

	tokenID     string
	question    string
	marketSlug  string
	conditionID string
	endTime     time.Time
	wallet      string

	tradeLog  *jsonl.Writer
	startedAt time.Time
	status    statusTracker

	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once

	closedMu       sync.Mutex
	marketClosed   bool
	confirmStarted bool

	// Main-loop state.
	positionSize  float64
	lastOrderSize float64
}

func (r *runner) stop() {
	r.once.Do(func() {
		close(r.stopped)
		r.cancel()
	})
}

func (r *runner) isStopped() bool {
	select {
	case <-r.stopped:
		return true
	default:
		return false
	}
}

func (r *runner) setMarketClosed() bool {
	r.closedMu.Lock()
	defer r.closedMu.Unlock()
	if r.marketClosed {
		return false
	}
	r.marketClosed = true
	return true
}

func (r *runner) isMarketClosed() bool {
	r.closedMu.Lock()
	defer r.closedMu.Unlock()
	return r.marketClosed
}

// Run is the volmaker entrypoint.
func Run() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed, err := parseArgs()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	pk, ephemeral, err := parseOrGeneratePrivateKey(parsed.privateKeyHex)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if ephemeral && !parsed.enableTrading {
		log.Printf("[info] no private key provided; using ephemeral key for dry-run")
	}
	signer := crypto.PubkeyToAddress(pk.PublicKey)
	wallet := signer.Hex()
	if parsed.funder != (common.Address{}) {
		wallet = parsed.funder.Hex()
	}

	gammaC, err := gamma.NewClient(parsed.gammaURL)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	dataC, err := dataapi.NewClient(parsed.dataURL)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokenID := strings.TrimSpace(parsed.tokenID)
	question := "(explicit token)"
	marketSlug := ""
	conditionID := ""
	var endTime time.Time
	if tokenID == "" {
		resolveCtx, resolveCancel := context.WithTimeout(ctx, 20*time.Second)
		res, err := gammaC.ResolveSource(resolveCtx, parsed.source)
		resolveCancel()
		if err != nil {
			log.Fatalf("[fatal] resolve market: %v", err)
		}
		tokenID = pickToken(res, parsed.outcomeSide)
		if tokenID == "" {
			log.Fatalf("[fatal] market %q has no %s token", parsed.source, parsed.outcomeSide)
		}
		question = res.Question
		marketSlug = res.EventSlug
		conditionID = res.ConditionID
		endTime = res.EndTime
		if res.Closed {
			log.Fatalf("[fatal] market %q is already closed", parsed.source)
		}
	}

	clobClient, err := clob.NewClient(parsed.clobHost, 137, pk, parsed.funder, parsed.signatureType)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().UnixNano()>>1)))
	var rngMu sync.Mutex
	saltGen := func() int64 {
		rngMu.Lock()
		defer rngMu.Unlock()
		return int64(rng.Uint64() & 0x7fffffffffffffff)
	}

	var api orderapi.API
	if parsed.enableTrading {
		if parsed.apiKey != "" && parsed.apiSecret != "" && parsed.apiPassphrase != "" {
			clobClient.SetApiCreds(clob.ApiKeyCreds{Key: parsed.apiKey, Secret: parsed.apiSecret, Passphrase: parsed.apiPassphrase})
		} else {
			creds, err := clobClient.CreateOrDeriveApiKey(ctx, parsed.apiNonce, parsed.useServerTime)
			if err != nil {
				log.Fatalf("[fatal] failed to create/derive api key: %v", err)
			}
			clobClient.SetApiCreds(creds)
			log.Printf("CLOB API creds ready (key=%s…)", safePrefix(creds.Key, 8))
		}
		api = clob.NewOrderAPI(clobClient, parsed.useServerTime, saltGen)
	} else {
		api = newDryRunAPI()
	}

	stratCfg := parsed.strategyConfig(tokenID)
	strat, err := strategy.New(stratCfg)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if parsed.sellOnlyStart {
		strat.EnableSellOnly("startup flag")
	}

	r := &runner{
		parsed:      parsed,
		api:         api,
		gammaC:      gammaC,
		dataC:       dataC,
		book:        marketws.NewTopBook(),
		strat:       strat,
		tokenID:     tokenID,
		question:    question,
		marketSlug:  marketSlug,
		conditionID: conditionID,
		endTime:     endTime,
		wallet:      wallet,
		startedAt:   time.Now(),
		status:      newStatusTracker("[vol]", statusMinInterval),
		cancel:      cancel,
		stopped:     make(chan struct{}),
	}
	if parsed.enableTrading {
		r.clobC = clobClient
	}

	if parsed.execMode == "batch" {
		engine, err := execution.NewEngine(api, parsed.executionConfig())
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		r.engine = engine
	}

	r.restoreCheckpoint()

	r.tradeLog = jsonl.New(parsed.outFile)
	if r.tradeLog != nil {
		log.Printf("Event log: %s (JSONL)", parsed.outFile)
		defer func() {
			if err := r.tradeLog.Close(); err != nil {
				log.Printf("[warn] event log close: %v", err)
			}
		}()
	}

	log.Printf("Polymarket volatility maker")
	log.Printf("Market: %s (%s)", question, parsed.outcomeSide)
	log.Printf("Token: %s", tokenID)
	if !endTime.IsZero() {
		log.Printf("Ends: %s", endTime.Format(time.RFC3339))
	}
	log.Printf(
		"Strategy: window=%s drop=%.2f%% profit=%.2f%% threshold=%v incremental=%v",
		parsed.dropWindow, parsed.dropPct*100, parsed.profitPct*100, parsed.buyThreshold, parsed.incrementalDrop,
	)
	log.Printf("Execution: mode=%s sell_mode=%s min_order=%.2f", parsed.execMode, parsed.sellMode, parsed.minOrderSize)
	log.Printf("Dry-run: %v", !parsed.enableTrading)

	if parsed.enableTrading {
		if rpcURL, err := polygonutil.RPCURLFromEnv(); err == nil {
			balCtx, balCancel := context.WithTimeout(ctx, 10*time.Second)
			micros, err := polygonutil.USDCTokenBalanceMicros(balCtx, rpcURL, common.HexToAddress(wallet))
			balCancel()
			if err != nil {
				log.Printf("[warn] usdc balance check failed: %v", err)
			} else {
				log.Printf("Wallet USDC: %.2f", float64(micros)/1e6)
			}
		}
	}

	logBotEvent(r.tradeLog, botLogEvent{
		Event:         "start",
		Mode:          botMode(parsed.enableTrading),
		TokenID:       tokenID,
		Question:      question,
		EnableTrading: parsed.enableTrading,
	})

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-r.stopped:
		case <-sigCh:
			log.Printf("Shutting down…")
			r.stratMu.Lock()
			r.strat.Stop("signal")
			r.stratMu.Unlock()
			r.stop()
		}
	}()

	go r.inputListener()
	if !endTime.IsZero() {
		go r.countdownMonitor(ctx)
	}

	actionCh := make(chan strategy.Action, 16)
	ticks, wsErrs := marketws.Start(ctx, parsed.wsURL, []string{tokenID}, marketws.Options{})
	go r.consumeTicks(ctx, ticks, actionCh)
	go func() {
		for err := range wsErrs {
			log.Printf("[ws][warn] %v", err)
		}
	}()

	log.Printf("Listening… type \"stop\" to exit.")
	r.mainLoop(ctx, actionCh)

	if parsed.closeoutOnExit {
		r.closeoutPosition()
	}

	r.stratMu.Lock()
	final := r.strat.Status()
	r.stratMu.Unlock()
	log.Printf("[exit] phase=%s position=%.4f entry=%.4f drop_pct=%.4f", final.Phase, final.PositionSize, final.EntryPrice, final.DropPct)
	logBotEvent(r.tradeLog, botLogEvent{
		Event:      "summary",
		Mode:       botMode(parsed.enableTrading),
		TokenID:    tokenID,
		EntryPrice: final.EntryPrice,
		Position:   final.PositionSize,
		DropPct:    final.DropPct,
		UptimeMs:   uptimeMs(r.startedAt),
	})

	r.tradeRecap()

	if parsed.claimOnExit {
		r.reportRedeemable()
	}
}

// consumeTicks feeds the strategy from the websocket stream and forwards
// emitted actions to the main loop.
func (r *runner) consumeTicks(ctx context.Context, ticks <-chan marketws.Tick, actionCh chan<- strategy.Action) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			r.book.Apply(t)
			if t.AssetID != "" && t.AssetID != r.tokenID {
				continue
			}
			if t.Closed {
				r.onMarketClosedSignal("websocket")
				continue
			}
			bid, haveBid := r.book.BestBid(r.tokenID)
			ask, haveAsk := r.book.BestAsk(r.tokenID)
			if !haveBid || !haveAsk {
				continue
			}
			r.stratMu.Lock()
			act := r.strat.OnTick(ask, bid, t.TS)
			r.stratMu.Unlock()
			if act == nil {
				continue
			}
			select {
			case actionCh <- *act:
			default:
				log.Printf("[warn] action queue full, dropping %s signal", act.Kind)
				r.stratMu.Lock()
				r.strat.OnReject("action queue full")
				r.stratMu.Unlock()
			}
		}
	}
}

// onMarketClosedSignal reacts to a close notification. The close is
// confirmed against Gamma before the run is ended, matching the
// countdown path.
func (r *runner) onMarketClosedSignal(origin string) {
	r.closedMu.Lock()
	if r.confirmStarted {
		r.closedMu.Unlock()
		return
	}
	r.confirmStarted = true
	r.closedMu.Unlock()

	log.Printf("[market] close signal from %s, confirming…", origin)
	go r.confirmMarketClosed()
}

func (r *runner) confirmMarketClosed() {
	attempt := 0
	for !r.isStopped() {
		attempt++
		if r.marketEnded() {
			log.Printf("[market] close confirmed, finishing up")
			r.setMarketClosed()
			r.stratMu.Lock()
			r.strat.Stop("market closed")
			r.stratMu.Unlock()
			logBotEvent(r.tradeLog, botLogEvent{
				Event:   "market_closed",
				TokenID: r.tokenID,
			})
			r.stop()
			return
		}
		log.Printf("[market] close not confirmed yet (check %d), retrying in %s", attempt, closeRecheckEvery)
		select {
		case <-r.stopped:
			return
		case <-time.After(closeRecheckEvery):
		}
	}
}

// marketEnded checks Gamma for a closed flag or a passed end date. With
// no slug to refresh, the cached end time decides.
func (r *runner) marketEnded() bool {
	if !r.endTime.IsZero() && time.Now().After(r.endTime) {
		return true
	}
	if r.marketSlug == "" {
		return r.book.MarketClosed(r.tokenID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res, err := r.gammaC.ResolveSource(ctx, r.marketSlug)
	if err != nil {
		log.Printf("[market][warn] refresh failed: %v", err)
		return false
	}
	if !res.EndTime.IsZero() {
		r.endTime = res.EndTime
	}
	return res.Closed || (!res.EndTime.IsZero() && time.Now().After(res.EndTime))
}

// countdownMonitor enforces the sell-only window before the market end
// and kicks off close confirmation at the deadline.
func (r *runner) countdownMonitor(ctx context.Context) {
	var sellOnlyAt time.Time
	if r.parsed.sellOnlyLast > 0 {
		sellOnlyAt = r.endTime.Add(-r.parsed.sellOnlyLast)
	}
	warned := false
	sellOnlySet := false

	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopped:
			return
		case now := <-t.C:
			if !sellOnlyAt.IsZero() && !sellOnlySet {
				until := sellOnlyAt.Sub(now)
				switch {
				case until <= 0:
					sellOnlySet = true
					r.stratMu.Lock()
					r.strat.EnableSellOnly("countdown window")
					r.stratMu.Unlock()
					log.Printf("[countdown] sell-only mode active; no more entries")
					logBotEvent(r.tradeLog, botLogEvent{Event: "sell_only", TokenID: r.tokenID, Reason: "countdown window"})
				case until <= sellOnlyWarnAt && !warned:
					warned = true
					log.Printf("[countdown] sell-only mode in %s", until.Round(time.Second))
				}
			}

			remaining := r.endTime.Sub(now)
			if remaining <= 0 {
				log.Printf("[countdown] market deadline reached")
				r.onMarketClosedSignal("countdown")
				return
			}
			if remaining <= 5*time.Minute {
				r.status.Set("countdown", fmt.Sprintf("ends in %s", remaining.Round(time.Second)))
			}
		}
	}
}

func (r *runner) inputListener() {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		cmd := strings.ToLower(strings.TrimSpace(sc.Text()))
		switch cmd {
		case "stop", "exit", "quit":
			log.Printf("[cmd] stop requested")
			r.stratMu.Lock()
			r.strat.Stop("manual stop")
			r.stratMu.Unlock()
			r.stop()
			return
		case "status":
			r.stratMu.Lock()
			st := r.strat.Status()
			r.stratMu.Unlock()
			log.Printf("[cmd] phase=%s awaiting=%s entry=%.4f position=%.4f drop_pct=%.4f", st.Phase, st.Awaiting, st.EntryPrice, st.PositionSize, st.DropPct)
		case "":
		default:
			log.Printf("[cmd] unknown command %q (try stop or status)", cmd)
		}
	}
}

func (r *runner) mainLoop(ctx context.Context, actionCh <-chan strategy.Action) {
	var pendingBuy *strategy.Action
	var buyCooldownUntil time.Time
	lastPx := time.Time{}

	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-r.stopped:
			return
		case <-ctx.Done():
			return
		case act := <-actionCh:
			if act.Kind == strategy.ActionSell {
				r.executeSell(r.positionSize, act.TargetPrice, "signal")
				continue
			}
			if act.Kind != strategy.ActionBuy {
				log.Printf("[warn] unexpected action %s ignored", act.Kind)
				continue
			}
			if r.sellOnlyActive() {
				log.Printf("[countdown] sell-only mode, ignoring buy signal")
				r.rejectLocked("sell-only window active")
				continue
			}
			if now := time.Now(); now.Before(buyCooldownUntil) {
				log.Printf("[cooldown] buy on cooldown for %.1fs, deferring", buyCooldownUntil.Sub(now).Seconds())
				pendingBuy = &act
				continue
			}
			buyCooldownUntil = time.Now().Add(buyCooldown)
			r.executeBuy(ctx, act)
		case now := <-t.C:
			if pendingBuy != nil && now.After(buyCooldownUntil) {
				if r.sellOnlyActive() {
					log.Printf("[countdown] sell-only mode, dropping deferred buy")
					r.rejectLocked("sell-only window active")
					pendingBuy = nil
					continue
				}
				log.Printf("[cooldown] retrying deferred buy")
				act := *pendingBuy
				pendingBuy = nil
				buyCooldownUntil = time.Now().Add(buyCooldown)
				r.executeBuy(ctx, act)
				continue
			}
			if lastPx.IsZero() || now.Sub(lastPx) >= time.Second {
				lastPx = now
				r.logPriceStatus()
			}
		}
	}
}

func (r *runner) sellOnlyActive() bool {
	r.stratMu.Lock()
	defer r.stratMu.Unlock()
	return r.strat.Status().SellOnly
}

func (r *runner) rejectLocked(reason string) {
	r.stratMu.Lock()
	r.strat.OnReject(reason)
	r.stratMu.Unlock()
}

func (r *runner) logPriceStatus() {
	bid, haveBid := r.book.BestBid(r.tokenID)
	ask, haveAsk := r.book.BestAsk(r.tokenID)
	if !haveBid && !haveAsk {
		r.status.Set("px", "waiting for quotes")
		return
	}
	r.stratMu.Lock()
	st := r.strat.Status()
	r.stratMu.Unlock()
	r.status.Set("px", fmt.Sprintf(
		"bid=%.4f ask=%.4f phase=%s awaiting=%s entry=%.4f drop=%.2f%%/%.2f%% high=%.4f samples=%d",
		bid, ask, st.Phase, st.Awaiting, st.EntryPrice,
		st.DropStats.CurrentDropRatio*100, st.DropPct*100, st.DropStats.WindowHigh, st.DropStats.HistoryPoints,
	))
}

// executeBuy runs one entry through the configured execution path and
// feeds the confirmed fill back into the strategy.
func (r *runner) executeBuy(ctx context.Context, act strategy.Action) {
	refPrice := act.RefPrice
	if ask, ok := r.book.BestAsk(r.tokenID); ok && refPrice <= 0 {
		refPrice = ask
	}

	size := r.parsed.orderSize
	if size <= 0 {
		size = orderSizeForBudget(r.parsed.orderUSD, refPrice)
		log.Printf("[buy] derived size from $%.2f budget -> %.2f shares", r.parsed.orderUSD, size)
	}
	if size <= 0 {
		r.rejectLocked("invalid buy size")
		return
	}

	log.Printf("[buy] signal reason=%q ref=%.4f size=%.2f drop=%.4f high=%.4f", act.Reason, refPrice, size, act.DropRatio, act.WindowHigh)
	logBotEvent(r.tradeLog, botLogEvent{
		Event:      "buy_signal",
		Mode:       botMode(r.parsed.enableTrading),
		TokenID:    r.tokenID,
		Reason:     act.Reason,
		RefPrice:   refPrice,
		Size:       size,
		DropRatio:  act.DropRatio,
		WindowHigh: act.WindowHigh,
	})

	var filled, avgPrice float64
	var status string
	var err error
	if r.engine != nil {
		var res execution.Result
		res, err = r.engine.ExecuteBuy(ctx, r.tokenID, refPrice, size)
		filled, avgPrice, status = res.Filled, res.AvgPrice, res.Status
	} else {
		var res maker.Result
		res, err = maker.BuyFollowBid(ctx, r.api, r.tokenID, size, r.makerOptions(true))
		filled, avgPrice, status = res.Filled, res.AvgPrice, res.Status
	}
	if err != nil && filled <= minFillThreshold {
		log.Printf("[err] buy failed: %v", err)
		r.rejectLocked(err.Error())
		logBotEvent(r.tradeLog, botLogEvent{Event: "buy_fail", TokenID: r.tokenID, Err: err.Error()})
		return
	}

	if filled <= minFillThreshold {
		log.Printf("[warn] buy did not fill (status=%s)", status)
		r.rejectLocked("buy unfilled: " + status)
		return
	}

	fillPx := avgPrice
	if fillPx <= 0 {
		fillPx = refPrice
	}
	totalPosition := r.positionSize + filled

	// Confirm against the positions API when a wallet is known; its
	// average price wins over the run-local estimate.
	if r.parsed.enableTrading {
		posCtx, posCancel := context.WithTimeout(ctx, 15*time.Second)
		posSize, posAvg, posErr := r.dataC.TokenPosition(posCtx, r.wallet, r.tokenID)
		posCancel()
		if posErr != nil {
			log.Printf("[warn] position lookup failed: %v, using order average %.4f", posErr, fillPx)
		} else if posSize > 0 {
			totalPosition = posSize
			if posAvg > 0 {
				fillPx = posAvg
			}
			log.Printf("[state] position confirmed avg=%.4f size=%.4f", fillPx, totalPosition)
		}
	}

	r.positionSize = totalPosition
	r.lastOrderSize = filled
	r.stratMu.Lock()
	r.strat.OnBuyFilled(fillPx, filled, totalPosition)
	floor := r.strat.SellTriggerPrice()
	r.stratMu.Unlock()
	r.saveCheckpoint()

	log.Printf("[state] buy filled status=%s price=%.4f size=%.4f position=%.4f", status, fillPx, filled, totalPosition)
	logBotEvent(r.tradeLog, botLogEvent{
		Event:      "buy_fill",
		Mode:       botMode(r.parsed.enableTrading),
		TokenID:    r.tokenID,
		Status:     status,
		Price:      fillPx,
		Filled:     filled,
		Position:   totalPosition,
		EntryPrice: fillPx,
		UptimeMs:   uptimeMs(r.startedAt),
	})

	// Park the exit immediately at the profit floor.
	r.executeSell(r.positionSize, floor, "post-buy")
}

const minFillThreshold = 1e-9

// executeSell posts the position at or above the floor and reconciles the
// outcome with the strategy. qty 0 falls back to tracked sizes.
func (r *runner) executeSell(qty, floorHint float64, source string) {
	effQty := qty
	if effQty <= 0 {
		effQty = r.positionSize
	}
	if effQty <= 0 {
		effQty = r.lastOrderSize
	}
	if effQty <= 0 {
		log.Printf("[warn] %s sell has no resolvable quantity, skipping", source)
		r.rejectLocked("invalid sell size")
		return
	}

	floor := floorHint
	if floor <= 0 {
		r.stratMu.Lock()
		floor = r.strat.SellTriggerPrice()
		r.stratMu.Unlock()
	}
	if floor <= 0 {
		log.Printf("[warn] %s sell has no floor price, skipping", source)
		r.rejectLocked("missing sell trigger")
		return
	}

	log.Printf("[sell] %s qty=%.4f floor=%.4f", source, effQty, floor)

	var filled, avgPrice, remaining float64
	var status string
	var err error
	ctx := context.Background()
	if r.engine != nil {
		var res execution.Result
		res, err = r.engine.ExecuteSell(ctx, r.tokenID, floor, effQty)
		filled, avgPrice, status = res.Filled, res.AvgPrice, res.Status
		remaining = res.Remaining()
	} else {
		var res maker.Result
		res, err = maker.SellFollowAskWithFloor(ctx, r.api, r.tokenID, effQty, floor, r.makerOptions(false))
		filled, avgPrice, status = res.Filled, res.AvgPrice, res.Status
		remaining = res.Remaining
	}
	if err != nil && filled <= minFillThreshold {
		log.Printf("[err] %s sell failed: %v", source, err)
		r.rejectLocked(err.Error())
		logBotEvent(r.tradeLog, botLogEvent{Event: "sell_fail", TokenID: r.tokenID, Err: err.Error()})
		return
	}

	// A residual too small for the exchange minimum can never be sold;
	// treat it as a completed exit locally.
	treatAsDust := false
	if r.parsed.minOrderSize > 0 && remaining > dustEps && remaining < r.parsed.minOrderSize-minFillThreshold {
		treatAsDust = true
	}

	remainingForStrategy := remaining
	if treatAsDust {
		remainingForStrategy = 0
	}
	r.stratMu.Lock()
	if filled > minFillThreshold {
		r.strat.OnSellFilled(avgPrice, filled, remainingForStrategy)
	} else {
		r.strat.OnSellFilled(0, 0, remaining)
	}
	dropPct := r.strat.DropPct()
	r.stratMu.Unlock()

	if remaining > dustEps && !treatAsDust {
		r.positionSize = remaining
		r.lastOrderSize = remaining
		log.Printf("[state] sell partial price=%.4f sold=%.4f remaining=%.4f status=%s", avgPrice, filled, remaining, status)
	} else {
		r.positionSize = 0
		r.lastOrderSize = 0
		note := ""
		if treatAsDust {
			note = fmt.Sprintf(" (residual %.4f below minimum %.2f, treated as done)", remaining, r.parsed.minOrderSize)
		}
		log.Printf("[state] sell done price=%.4f sold=%.4f status=%s%s", avgPrice, filled, status, note)
	}
	r.saveCheckpoint()

	logBotEvent(r.tradeLog, botLogEvent{
		Event:    "sell_fill",
		Mode:     botMode(r.parsed.enableTrading),
		TokenID:  r.tokenID,
		Status:   status,
		AvgPrice: avgPrice,
		Filled:   filled,
		Size:     effQty,
		Position: r.positionSize,
		DropPct:  dropPct,
		UptimeMs: uptimeMs(r.startedAt),
	})
}

// marketSeller is the optional taker path an order API may expose for
// flattening a position immediately.
type marketSeller interface {
	MarketSell(ctx context.Context, tokenID string, shares float64, slippageBps int) (filled, avgPrice float64, err error)
}

// closeoutPosition flattens whatever is still held when the run ends.
// Runs after the main loop, so position fields are stable.
func (r *runner) closeoutPosition() {
	if r.positionSize <= dustEps {
		return
	}
	seller, ok := r.api.(marketSeller)
	if !ok {
		log.Printf("[closeout] order api has no taker path, keeping position %.4f", r.positionSize)
		return
	}

	log.Printf("[closeout] selling remaining %.4f at market (max slippage %d bps)", r.positionSize, r.parsed.closeoutSlippage)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	filled, avgPrice, err := seller.MarketSell(ctx, r.tokenID, r.positionSize, r.parsed.closeoutSlippage)
	if err != nil {
		log.Printf("[closeout][warn] market sell failed: %v", err)
		logBotEvent(r.tradeLog, botLogEvent{Event: "closeout_fail", TokenID: r.tokenID, Err: err.Error()})
		return
	}

	remaining := r.positionSize - filled
	if remaining < 0 {
		remaining = 0
	}
	r.stratMu.Lock()
	if filled > minFillThreshold {
		r.strat.OnSellFilled(avgPrice, filled, remaining)
	}
	r.stratMu.Unlock()
	r.positionSize = remaining
	if remaining <= dustEps {
		r.positionSize = 0
		r.lastOrderSize = 0
	}
	r.saveCheckpoint()

	log.Printf("[closeout] sold=%.4f price=%.4f remaining=%.4f", filled, avgPrice, r.positionSize)
	logBotEvent(r.tradeLog, botLogEvent{
		Event:    "closeout",
		Mode:     botMode(r.parsed.enableTrading),
		TokenID:  r.tokenID,
		AvgPrice: avgPrice,
		Filled:   filled,
		Position: r.positionSize,
		UptimeMs: uptimeMs(r.startedAt),
	})
}

func (r *runner) makerOptions(buy bool) maker.Options {
	opts := maker.Options{
		PollInterval:   r.parsed.makerPoll,
		MinQuoteAmount: r.parsed.minQuote,
		MinOrderSize:   r.parsed.minOrderSize,
		BestBid:        func() (float64, bool) { return r.book.BestBid(r.tokenID) },
		BestAsk:        func() (float64, bool) { return r.book.BestAsk(r.tokenID) },
		StopCheck:      r.isStopped,
	}
	if buy {
		opts.ProgressProbe = r.buyProgressProbe
	} else {
		opts.SellMode = r.parsed.sellMode
		opts.AggressiveStep = r.parsed.aggressiveStep
		opts.AggressiveTimeout = r.parsed.aggressiveTimeout
	}
	return opts
}

// buyProgressProbe logs the confirmed position while a buy order rests.
func (r *runner) buyProgressProbe() {
	if !r.parsed.enableTrading {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	size, avg, err := r.dataC.TokenPosition(ctx, r.wallet, r.tokenID)
	if err != nil {
		log.Printf("[watchdog][buy] position lookup failed: %v", err)
		return
	}
	if size <= 0 {
		log.Printf("[watchdog][buy] no position yet")
		return
	}
	log.Printf("[watchdog][buy] position avg=%.4f size=%.4f", avg, size)
}

func (r *runner) restoreCheckpoint() {
	if r.parsed.checkpointPath == "" {
		return
	}
	ckpt, ok, err := state.LoadCheckpoint(r.parsed.checkpointPath)
	if err != nil {
		log.Printf("[warn] checkpoint load: %v", err)
		return
	}
	if !ok {
		return
	}
	if !ckpt.Matches(r.tokenID) {
		log.Printf("[warn] checkpoint token %s does not match %s, ignoring", ckpt.TokenID, r.tokenID)
		return
	}
	r.stratMu.Lock()
	r.strat.Restore(ckpt.EntryPrice, ckpt.PositionSize, ckpt.DropPct)
	r.stratMu.Unlock()
	r.positionSize = ckpt.PositionSize
	r.lastOrderSize = ckpt.PositionSize
	log.Printf("[state] restored checkpoint entry=%.4f position=%.4f drop_pct=%.4f (saved %s)", ckpt.EntryPrice, ckpt.PositionSize, ckpt.DropPct, ckpt.UpdatedAt.Format(time.RFC3339))
}

func (r *runner) saveCheckpoint() {
	if r.parsed.checkpointPath == "" {
		return
	}
	r.stratMu.Lock()
	ckpt := state.Checkpoint{
		TokenID:      r.tokenID,
		EntryPrice:   r.strat.EntryPrice(),
		PositionSize: r.strat.Position(),
		DropPct:      r.strat.DropPct(),
	}
	r.stratMu.Unlock()
	if err := state.SaveCheckpoint(r.parsed.checkpointPath, ckpt); err != nil {
		log.Printf("[warn] checkpoint save: %v", err)
	}
}

// tradeRecap prints the session's trades as reported by the exchange.
// Only available on live runs with API creds.
func (r *runner) tradeRecap() {
	if r.clobC == nil || r.conditionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	trades, err := r.clobC.GetTrades(ctx, clob.TradeParams{
		Market: r.conditionID,
		After:  strconv.FormatInt(r.startedAt.Unix(), 10),
	}, r.parsed.useServerTime)
	if err != nil {
		log.Printf("[recap][warn] fetch trades: %v", err)
		return
	}
	if len(trades) == 0 {
		log.Printf("[recap] no trades this session")
		return
	}
	var buys, sells int
	for _, t := range trades {
		switch strings.ToUpper(t.Side) {
		case "BUY":
			buys++
		case "SELL":
			sells++
		}
		log.Printf("[recap] %s %s size=%s price=%s status=%s", t.Side, t.AssetID, t.Size, t.Price, t.Status)
	}
	log.Printf("[recap] %d trades (%d buys, %d sells)", len(trades), buys, sells)
}

// reportRedeemable lists claimable positions after a confirmed close so
// the claim tool can redeem them.
func (r *runner) reportRedeemable() {
	if !r.isMarketClosed() && (r.endTime.IsZero() || time.Now().Before(r.endTime)) {
		log.Printf("[claim] market not ended, nothing to redeem")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	positions, err := r.dataC.RedeemablePositions(ctx, r.wallet, "")
	if err != nil {
		log.Printf("[claim][warn] redeemable lookup failed: %v", err)
		return
	}
	if len(positions) == 0 {
		log.Printf("[claim] no redeemable positions")
		return
	}
	for _, p := range positions {
		log.Printf("[claim] redeemable condition=%s outcome=%s size=%.4f value=%.2f", p.ConditionID, p.Outcome, p.Size, p.CurrentValue)
		logBotEvent(r.tradeLog, botLogEvent{
			Event:   "claimable",
			TokenID: p.Asset,
			Size:    p.Size,
			Reason:  p.Outcome,
		})
	}
	log.Printf("[claim] run the claim tool to redeem %d position(s)", len(positions))
}
