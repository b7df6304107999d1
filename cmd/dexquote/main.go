// Package main is the entry point for the dexquote swap quote aggregator.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mgrau/dexquote/business/pricefeed"
	feedDI "github.com/mgrau/dexquote/business/pricefeed/di"
	"github.com/mgrau/dexquote/business/quoting"
	quotingApp "github.com/mgrau/dexquote/business/quoting/app"
	quoteDI "github.com/mgrau/dexquote/business/quoting/di"
	"github.com/mgrau/dexquote/business/quoting/domain"
	"github.com/mgrau/dexquote/internal/apm"
	"github.com/mgrau/dexquote/internal/config"
	"github.com/mgrau/dexquote/internal/health"
	"github.com/mgrau/dexquote/internal/logger"
	"github.com/mgrau/dexquote/internal/metrics"
	"github.com/mgrau/dexquote/internal/monolith"
	"github.com/mgrau/dexquote/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to configuration file")
	cliMode := flag.Bool("cli", false, "Run one quote round and print it (no TUI)")
	pairFlag := flag.String("pair", "WETH/USDC", "Pair for CLI mode, e.g. WETH/USDC")
	amountFlag := flag.String("amount", "1", "Input amount for CLI mode, human units")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("dexquote %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default, CLI is for scripting and debugging
	tuiMode := !*cliMode

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	// Run application
	if err := run(ctx, *configPath, tuiMode, *pairFlag, *amountFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool, pairArg, amountArg string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger (only log to stderr in CLI mode)
	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		// In TUI mode, suppress logs (discard output)
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
		log.Info(ctx, "starting dexquote",
			"version", version,
			"environment", cfg.App.Environment,
		)
	}

	// Initialize observability if enabled
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}

		endpoint := cfg.Telemetry.OTLPEndpoint
		if apm.Provider(cfg.Telemetry.TraceProvider) == apm.ZipkinProvider {
			endpoint = cfg.Telemetry.ZipkinURL
		}
		traceProvider = apm.NewTraceProvider(log,
			apm.WithServiceName(cfg.Telemetry.ServiceName),
			apm.WithProvider(apm.Provider(cfg.Telemetry.TraceProvider), endpoint, log),
		)
		log.Info(ctx, "tracing initialized",
			"provider", cfg.Telemetry.TraceProvider, "endpoint", endpoint)

		// Initialize metrics with Prometheus
		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		// Start Prometheus metrics server in background
		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	// Create monolith (application container)
	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	// Define modules in dependency order
	modules := []monolith.Module{
		&pricefeed.Module{}, // Must be first - supplies USD prices for gas costing
		&quoting.Module{},   // Depends on pricefeed
	}

	// Register all module services
	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	// Tear down module resources on the way out: the quote cache's sweep
	// goroutine and the price feed stream.
	defer func() {
		quoteDI.GetQuoteService(mono.Services()).Close()
		if err := feedDI.GetPriceFeedService(mono.Services()).Stop(); err != nil {
			log.Warn(context.Background(), "price feed shutdown", "error", err)
		}
	}()

	// Health server with a readiness check on the price feed
	healthServer := health.NewServer(cfg.App.HealthPort, version)
	healthServer.RegisterCheck("pricefeed", func(ctx context.Context) (bool, string) {
		if feedDI.GetPriceFeedService(mono.Services()).Healthy() {
			return true, "connected"
		}
		return false, "price feed disconnected"
	})
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.App.HealthPort)
	}
	defer healthServer.Stop(ctx)

	if tuiMode {
		// TUI mode: start modules in background so the TUI shows immediately
		startFunc := func() error {
			if err := mono.StartModules(ctx, modules...); err != nil {
				return fmt.Errorf("failed to start modules: %w", err)
			}
			return nil
		}

		params := ui.Params{
			SessionFactory:  quoteDI.GetSessionFactory(mono.Services()),
			Registry:        mono.TokenRegistry(),
			ChainID:         cfg.Ethereum.ChainID,
			Sources:         quoteDI.GetQuoteService(mono.Services()).Sources(),
			SlippagePercent: cfg.Aggregator.DefaultSlippagePercent,
			Version:         version,
		}
		return runTUI(ctx, params, startFunc)
	}

	// CLI mode: start modules synchronously, run one round, print it
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	req, err := buildRequest(mono, cfg, pairArg, amountArg)
	if err != nil {
		return err
	}
	svc := quoteDI.GetQuoteService(mono.Services())
	return runCLI(ctx, svc, *req, log)
}

// buildRequest resolves the CLI pair and amount arguments into a request.
func buildRequest(mono monolith.Monolith, cfg *config.Config, pairArg, amountArg string) (*domain.QuoteRequest, error) {
	symbols := strings.Split(pairArg, "/")
	if len(symbols) != 2 {
		return nil, fmt.Errorf("invalid pair %q, want e.g. WETH/USDC", pairArg)
	}

	registry := mono.TokenRegistry()
	tokenIn, ok := registry.GetBySymbolAndChain(strings.ToUpper(symbols[0]), cfg.Ethereum.ChainID)
	if !ok {
		return nil, fmt.Errorf("unknown token %q on chain %d", symbols[0], cfg.Ethereum.ChainID)
	}
	tokenOut, ok := registry.GetBySymbolAndChain(strings.ToUpper(symbols[1]), cfg.Ethereum.ChainID)
	if !ok {
		return nil, fmt.Errorf("unknown token %q on chain %d", symbols[1], cfg.Ethereum.ChainID)
	}

	amount, err := decimal.NewFromString(amountArg)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amountArg, err)
	}

	return &domain.QuoteRequest{
		TokenIn:         tokenIn,
		TokenOut:        tokenOut,
		AmountIn:        amount,
		SlippagePercent: cfg.Aggregator.DefaultSlippagePercent,
	}, nil
}

func runCLI(ctx context.Context, svc *quotingApp.QuoteService, req domain.QuoteRequest, log *logger.Logger) error {
	log.Info(ctx, "fetching quotes",
		"pair", req.TokenIn.Symbol()+"/"+req.TokenOut.Symbol(),
		"amount", req.AmountIn.String(),
		"sources", svc.Sources(),
	)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := svc.GetQuotes(ctx, req, false)
	if err != nil {
		if quotingApp.IsNoQuotes(err) {
			return fmt.Errorf("no source could quote %s -> %s: %w",
				req.TokenIn.Symbol(), req.TokenOut.Symbol(), err)
		}
		return err
	}

	fmt.Printf("\nSwap %s %s -> %s\n\n", req.AmountIn, req.TokenIn.Symbol(), req.TokenOut.Symbol())
	fmt.Printf("%-4s %-14s %20s %9s %9s %5s  %s\n",
		"#", "Source", "Receive ("+req.TokenOut.Symbol()+")", "Impact", "Gas", "Hops", "Route")
	for i, q := range result.AllQuotes {
		gas := "?"
		if q.GasCostUSD > 0 {
			gas = fmt.Sprintf("$%.2f", q.GasCostUSD)
		}
		best := ""
		if i == 0 {
			best = "  <- best"
		}
		fmt.Printf("%-4d %-14s %20s %8.2f%% %9s %5d  %s%s\n",
			i+1, q.SourceName, q.AmountOut.StringFixed(6),
			q.PriceImpactPercent, gas, q.HopCount(), q.RouteSummary(), best)
	}
	fmt.Printf("\nMin received after %.2f%% slippage: %s %s\n",
		req.SlippagePercent,
		result.BestQuote.AmountOutMinimum.StringFixed(6),
		req.TokenOut.Symbol())
	fmt.Printf("Result valid until %s\n", result.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runTUI(ctx context.Context, params ui.Params, startFunc func() error) error {
	// Channel to receive the start signal from the welcome screen
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	// Create and start the TUI program immediately (shows welcome screen)
	p := tea.NewProgram(ui.New(params), tea.WithAltScreen())
	ui.Program = p

	// Run module startup in background (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
			// Welcome complete, start modules
		case <-ctx.Done():
			errCh <- nil
			return
		}

		if err := startFunc(); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// Run TUI (blocking)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// Check for startup errors
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
