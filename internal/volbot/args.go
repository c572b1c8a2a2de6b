package volbot

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"poly-volmaker/internal/execution"
	"poly-volmaker/internal/gamma"
	"poly-volmaker/internal/maker"
	"poly-volmaker/internal/marketws"
	"poly-volmaker/internal/strategy"
)

type args struct {
	source      string
	outcomeSide string // yes | no
	tokenID     string // explicit token id overrides resolution

	gammaURL string
	dataURL  string
	wsURL    string
	clobHost string

	privateKeyHex string
	funder        common.Address
	signatureType int

	apiKey        string
	apiSecret     string
	apiPassphrase string
	apiNonce      uint64
	useServerTime bool

	enableTrading bool

	// Strategy.
	buyThreshold    float64
	dropWindow      time.Duration
	dropPct         float64
	profitPct       float64
	maxHistory      int
	incrementalDrop bool
	incrementalStep float64
	incrementalCap  float64
	minPrice        float64
	maxPrice        float64

	// Sizing. orderSize in shares; 0 derives from orderUSD at the signal
	// price.
	orderSize float64
	orderUSD  float64

	// Maker follow.
	makerPoll         time.Duration
	minOrderSize      float64
	sellMode          string
	aggressiveStep    float64
	aggressiveTimeout time.Duration

	// Batch execution (exit/entry slicing mode).
	execMode      string // maker | batch
	sliceMin      float64
	sliceMax      float64
	retryAttempts int
	priceTolStep  float64
	waitTime      time.Duration
	execPoll      time.Duration
	orderInterval time.Duration
	minQuote      float64

	// Run control.
	sellOnlyLast     time.Duration
	sellOnlyStart    bool
	claimOnExit      bool
	closeoutOnExit   bool
	closeoutSlippage int
	checkpointPath   string
	outFile          string
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	env := strings.TrimSpace(os.Getenv(name))
	if env == "" {
		return def, nil
	}
	v, err := time.ParseDuration(env)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, env, err)
	}
	return v, nil
}

func envFloat(name string, def float64) (float64, error) {
	env := strings.TrimSpace(os.Getenv(name))
	if env == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(env, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, env, err)
	}
	return v, nil
}

func envBool(name string, def bool) (bool, error) {
	env := strings.TrimSpace(os.Getenv(name))
	if env == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(env)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, env, err)
	}
	return v, nil
}

func parseArgs() (args, error) {
	var parsed args
	var err error

	sourceDefault := strings.TrimSpace(firstNonEmpty(os.Getenv("VOLMAKER_MARKET"), os.Getenv("MARKET")))
	outcomeDefault := strings.TrimSpace(firstNonEmpty(os.Getenv("VOLMAKER_OUTCOME"), "yes"))

	dropWindowDefault, err := envDuration("VOLMAKER_DROP_WINDOW", 10*time.Minute)
	if err != nil {
		return args{}, err
	}
	dropPctDefault, err := envFloat("VOLMAKER_DROP_PCT", 0.05)
	if err != nil {
		return args{}, err
	}
	profitPctDefault, err := envFloat("VOLMAKER_PROFIT_PCT", 0.05)
	if err != nil {
		return args{}, err
	}
	buyThresholdDefault, err := envFloat("VOLMAKER_BUY_THRESHOLD", 0)
	if err != nil {
		return args{}, err
	}
	incrementalDefault, err := envBool("VOLMAKER_INCREMENTAL_DROP", true)
	if err != nil {
		return args{}, err
	}
	orderUSDDefault, err := envFloat("VOLMAKER_ORDER_USD", 1.0)
	if err != nil {
		return args{}, err
	}
	orderSizeDefault, err := envFloat("VOLMAKER_ORDER_SIZE", 0)
	if err != nil {
		return args{}, err
	}
	sellOnlyLastDefault, err := envDuration("VOLMAKER_SELL_ONLY_LAST", 0)
	if err != nil {
		return args{}, err
	}
	claimDefault, err := envBool("VOLMAKER_CLAIM_ON_EXIT", true)
	if err != nil {
		return args{}, err
	}
	closeoutDefault, err := envBool("VOLMAKER_CLOSEOUT", false)
	if err != nil {
		return args{}, err
	}

	enableTradingDefault := false
	if env := strings.TrimSpace(os.Getenv("ENABLE_TRADING")); env != "" {
		v, err := strconv.ParseBool(env)
		if err != nil {
			return args{}, fmt.Errorf("invalid ENABLE_TRADING %q: %w", env, err)
		}
		enableTradingDefault = v
	}

	signatureTypeDefault := 0
	if env := strings.TrimSpace(firstNonEmpty(os.Getenv("CLOB_SIGNATURE_TYPE"), os.Getenv("SIGNATURE_TYPE"))); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return args{}, fmt.Errorf("invalid signature type env %q: %w", env, err)
		}
		signatureTypeDefault = v
	}

	flag.StringVar(&parsed.source, "market", sourceDefault, "Market URL, slug, or \"YES_ID,NO_ID\" token pair (VOLMAKER_MARKET env)")
	flag.StringVar(&parsed.outcomeSide, "outcome", outcomeDefault, "Outcome side to trade: yes or no (VOLMAKER_OUTCOME env)")
	flag.StringVar(&parsed.tokenID, "token", "", "Explicit token ID (skips market resolution)")

	flag.StringVar(&parsed.gammaURL, "gamma-url", "", "Gamma API base URL (default https://gamma-api.polymarket.com)")
	flag.StringVar(&parsed.dataURL, "data-url", "", "Data API base URL (default https://data-api.polymarket.com)")
	flag.StringVar(&parsed.wsURL, "ws-url", marketws.DefaultURL, "Market WebSocket URL")
	flag.StringVar(&parsed.clobHost, "clob-url", "", "CLOB API base URL (default https://clob.polymarket.com)")

	flag.StringVar(&parsed.privateKeyHex, "private-key", "", "Private key hex (0x...) (or PRIVATE_KEY env)")
	var funderFlag string
	flag.StringVar(&funderFlag, "funder", "", "Funder address when using a proxy wallet (or FUNDER/CLOB_FUNDER env)")
	flag.IntVar(&parsed.signatureType, "signature-type", signatureTypeDefault, "CLOB signature type (0 EOA, 1 email/magic, 2 browser proxy)")

	flag.StringVar(&parsed.apiKey, "api-key", "", "CLOB API key (or CLOB_API_KEY env)")
	flag.StringVar(&parsed.apiSecret, "api-secret", "", "CLOB API secret (or CLOB_SECRET env)")
	flag.StringVar(&parsed.apiPassphrase, "api-passphrase", "", "CLOB API passphrase (or CLOB_PASS_PHRASE env)")
	flag.Uint64Var(&parsed.apiNonce, "api-nonce", 0, "CLOB API key nonce")
	flag.BoolVar(&parsed.useServerTime, "server-time", false, "Use CLOB server time for auth headers")

	flag.BoolVar(&parsed.enableTrading, "enable-trading", enableTradingDefault, "Actually place orders (default dry-run) (ENABLE_TRADING env)")

	flag.Float64Var(&parsed.buyThreshold, "buy-threshold", buyThresholdDefault, "Absolute best-ask buy trigger, 0 disables (VOLMAKER_BUY_THRESHOLD env)")
	flag.DurationVar(&parsed.dropWindow, "drop-window", dropWindowDefault, "Rolling window for the drop trigger (VOLMAKER_DROP_WINDOW env)")
	flag.Float64Var(&parsed.dropPct, "drop-pct", dropPctDefault, "Drop ratio vs window high that triggers a buy (VOLMAKER_DROP_PCT env)")
	flag.Float64Var(&parsed.profitPct, "profit-pct", profitPctDefault, "Profit target over entry for the sell trigger (VOLMAKER_PROFIT_PCT env)")
	flag.IntVar(&parsed.maxHistory, "max-history", 600, "Max retained price samples")
	flag.BoolVar(&parsed.incrementalDrop, "incremental-drop", incrementalDefault, "Raise drop-pct after each full exit (VOLMAKER_INCREMENTAL_DROP env)")
	flag.Float64Var(&parsed.incrementalStep, "incremental-step", 0.01, "Drop-pct increment per full exit")
	flag.Float64Var(&parsed.incrementalCap, "incremental-cap", 0.20, "Drop-pct ceiling for escalation")
	flag.Float64Var(&parsed.minPrice, "min-price", 0.0, "Ignore ticks with bid/ask below this")
	flag.Float64Var(&parsed.maxPrice, "max-price", 1.0, "Ignore ticks with bid/ask above this")

	flag.Float64Var(&parsed.orderSize, "order-size", orderSizeDefault, "Buy size in shares; 0 derives from --order-usd at the signal price (VOLMAKER_ORDER_SIZE env)")
	flag.Float64Var(&parsed.orderUSD, "order-usd", orderUSDDefault, "Dollar budget per entry when --order-size is 0 (VOLMAKER_ORDER_USD env)")

	flag.DurationVar(&parsed.makerPoll, "maker-poll", 10*time.Second, "Fill poll interval while a maker order rests")
	flag.Float64Var(&parsed.minOrderSize, "min-order-size", maker.DefaultMinOrderSize, "Exchange minimum order size in shares")
	flag.StringVar(&parsed.sellMode, "sell-mode", maker.SellModeConservative, "Sell repricing mode: conservative or aggressive")
	flag.Float64Var(&parsed.aggressiveStep, "aggressive-step", 0.01, "Price step-down per aggressive reprice")
	flag.DurationVar(&parsed.aggressiveTimeout, "aggressive-timeout", 2*time.Minute, "Rest time before an aggressive step-down")

	flag.StringVar(&parsed.execMode, "exec-mode", "maker", "Order execution mode: maker (follow top of book) or batch (sliced limit orders)")
	flag.Float64Var(&parsed.sliceMin, "slice-min", 1.0, "Batch mode: minimum slice size in shares")
	flag.Float64Var(&parsed.sliceMax, "slice-max", 2.0, "Batch mode: maximum slice size in shares")
	flag.IntVar(&parsed.retryAttempts, "retry-attempts", 2, "Batch mode: re-submissions after the first pass")
	flag.Float64Var(&parsed.priceTolStep, "price-tolerance", 0.01, "Batch mode: adverse price step between attempts")
	flag.DurationVar(&parsed.waitTime, "wait-time", 5*time.Second, "Batch mode: max rest time per slice")
	flag.DurationVar(&parsed.execPoll, "exec-poll", 500*time.Millisecond, "Batch mode: fill poll interval")
	flag.DurationVar(&parsed.orderInterval, "order-interval", -1, "Batch mode: pause between filled slices (-1 = wait-time)")
	flag.Float64Var(&parsed.minQuote, "min-quote", 1.0, "Minimum notional per buy order")

	flag.DurationVar(&parsed.sellOnlyLast, "sell-only-last", sellOnlyLastDefault, "Stop buying this long before the market end time (0 disables) (VOLMAKER_SELL_ONLY_LAST env)")
	flag.BoolVar(&parsed.sellOnlyStart, "sell-only", false, "Start in sell-only mode (no new entries)")
	flag.BoolVar(&parsed.claimOnExit, "claim-on-exit", claimDefault, "Report redeemable positions when exiting after market close (VOLMAKER_CLAIM_ON_EXIT env)")
	flag.BoolVar(&parsed.closeoutOnExit, "closeout-on-exit", closeoutDefault, "Market-sell any remaining position at shutdown (VOLMAKER_CLOSEOUT env)")
	flag.IntVar(&parsed.closeoutSlippage, "closeout-slippage-bps", 500, "Max slippage for the closeout sell, in basis points")
	flag.StringVar(&parsed.checkpointPath, "checkpoint", strings.TrimSpace(os.Getenv("VOLMAKER_CHECKPOINT")), "Checkpoint file for position/drop-pct persistence (VOLMAKER_CHECKPOINT env)")
	flag.StringVar(&parsed.outFile, "out", strings.TrimSpace(os.Getenv("VOLMAKER_OUT")), "JSONL event log path (VOLMAKER_OUT env)")

	flag.Parse()

	if parsed.privateKeyHex == "" {
		parsed.privateKeyHex = strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	}
	if funderFlag == "" {
		funderFlag = strings.TrimSpace(firstNonEmpty(os.Getenv("FUNDER"), os.Getenv("CLOB_FUNDER")))
	}
	if funderFlag != "" {
		if !common.IsHexAddress(funderFlag) {
			return args{}, fmt.Errorf("invalid funder address %q", funderFlag)
		}
		parsed.funder = common.HexToAddress(funderFlag)
	}
	if parsed.apiKey == "" {
		parsed.apiKey = strings.TrimSpace(os.Getenv("CLOB_API_KEY"))
	}
	if parsed.apiSecret == "" {
		parsed.apiSecret = strings.TrimSpace(os.Getenv("CLOB_SECRET"))
	}
	if parsed.apiPassphrase == "" {
		parsed.apiPassphrase = strings.TrimSpace(os.Getenv("CLOB_PASS_PHRASE"))
	}
	if parsed.gammaURL == "" {
		parsed.gammaURL = strings.TrimSpace(os.Getenv("GAMMA_URL"))
	}
	if parsed.dataURL == "" {
		parsed.dataURL = strings.TrimSpace(os.Getenv("DATA_API_URL"))
	}
	if parsed.clobHost == "" {
		parsed.clobHost = strings.TrimSpace(os.Getenv("CLOB_URL"))
	}

	parsed.outcomeSide = strings.ToLower(strings.TrimSpace(parsed.outcomeSide))
	if parsed.outcomeSide != "yes" && parsed.outcomeSide != "no" {
		return args{}, fmt.Errorf("outcome must be yes or no, got %q", parsed.outcomeSide)
	}

	if parsed.tokenID == "" && strings.TrimSpace(parsed.source) == "" {
		return args{}, fmt.Errorf("--market or --token is required")
	}
	if parsed.orderSize < 0 {
		return args{}, fmt.Errorf("--order-size must be >= 0")
	}
	if parsed.orderSize == 0 && parsed.orderUSD <= 0 {
		return args{}, fmt.Errorf("--order-usd must be > 0 when --order-size is unset")
	}
	switch parsed.execMode {
	case "maker", "batch":
	default:
		return args{}, fmt.Errorf("exec-mode must be maker or batch, got %q", parsed.execMode)
	}
	switch parsed.sellMode {
	case maker.SellModeConservative, maker.SellModeAggressive:
	default:
		return args{}, fmt.Errorf("sell-mode must be %s or %s, got %q", maker.SellModeConservative, maker.SellModeAggressive, parsed.sellMode)
	}
	if parsed.sellOnlyLast < 0 {
		return args{}, fmt.Errorf("--sell-only-last must be >= 0")
	}
	if parsed.closeoutSlippage < 0 || parsed.closeoutSlippage >= 10_000 {
		return args{}, fmt.Errorf("--closeout-slippage-bps must be in [0, 10000)")
	}

	return parsed, nil
}

func (a args) strategyConfig(tokenID string) strategy.Config {
	cfg := strategy.NewConfig(tokenID)
	cfg.BuyPriceThreshold = a.buyThreshold
	cfg.DropWindow = a.dropWindow
	cfg.DropPct = a.dropPct
	cfg.ProfitPct = a.profitPct
	cfg.MaxHistoryPoints = a.maxHistory
	cfg.EnableIncrementalDropPct = a.incrementalDrop
	cfg.IncrementalDropPctStep = a.incrementalStep
	cfg.IncrementalDropPctCap = a.incrementalCap
	cfg.MinPrice = a.minPrice
	cfg.MaxPrice = a.maxPrice
	return cfg
}

func (a args) executionConfig() execution.Config {
	cfg := execution.DefaultConfig()
	cfg.OrderSliceMin = a.sliceMin
	cfg.OrderSliceMax = a.sliceMax
	cfg.RetryAttempts = a.retryAttempts
	cfg.PriceToleranceStep = a.priceTolStep
	cfg.WaitTime = a.waitTime
	cfg.PollInterval = a.execPoll
	cfg.OrderInterval = a.orderInterval
	cfg.MinQuoteAmount = a.minQuote
	cfg.MinMarketOrderSize = a.minOrderSize
	return cfg
}

// pickToken selects the traded token from a resolved market.
func pickToken(res gamma.ResolvedMarket, outcomeSide string) string {
	if outcomeSide == "no" {
		return res.NoTokenID()
	}
	return res.YesTokenID()
}

// orderSizeForBudget derives a share count from a dollar budget at the
// given price, rounded up to whole shares.
func orderSizeForBudget(budgetUSD, price float64) float64 {
	if price <= 0 {
		return 1.0
	}
	if budgetUSD <= 0 {
		return 0
	}
	return math.Ceil(budgetUSD / price)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("private key missing")
	}
	hexKey = strings.TrimPrefix(hexKey, "0x")
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return pk, nil
}

func parseOrGeneratePrivateKey(hexKey string) (*ecdsa.PrivateKey, bool, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey != "" {
		pk, err := parsePrivateKey(hexKey)
		return pk, false, err
	}
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, false, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return pk, true, nil
}

func safePrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
