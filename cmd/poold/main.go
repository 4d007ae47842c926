// Command poold runs the lending-pool protocol core as a standalone daemon:
// it owns a pool's storage namespace, drives periodic emissions distribution
// and per-pool gulps, and exposes Prometheus metrics.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"poolcore/backstop"
	"poolcore/crypto"
	"poolcore/daemonconfig"
	"poolcore/emissions"
	"poolcore/metrics"
	"poolcore/observability/logging"
	"poolcore/pool"
	"poolcore/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "poold.yaml", "path to poold config")
	flag.Parse()

	cfg, err := daemonconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("POOLD_ENV"))
	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := logging.Setup("poold", env, level)

	db, err := storage.NewLevelDB(cfg.StoragePath)
	if err != nil {
		logger.Error("open storage", "error", err)
		os.Exit(1)
	}

	oracleAddr, err := crypto.DecodeAddress(cfg.Oracle.Address)
	if err != nil {
		logger.Error("decode oracle address", "error", err)
		os.Exit(1)
	}
	backstopAddr, err := crypto.DecodeAddress(cfg.Backstop.Address)
	if err != nil {
		logger.Error("decode backstop address", "error", err)
		os.Exit(1)
	}
	lpToken, err := crypto.DecodeAddress(cfg.Backstop.LPToken)
	if err != nil {
		logger.Error("decode backstop lp token", "error", err)
		os.Exit(1)
	}

	store := pool.NewLevelDBStore(db, "pool")
	if _, err := store.GetPoolConfig(); err != nil {
		if err := store.PutPoolConfig(pool.PoolConfig{
			Oracle:          oracleAddr,
			BackstopAddress: backstopAddr,
			Status:          pool.PoolStatusSetup,
		}); err != nil {
			logger.Error("seed pool config", "error", err)
			os.Exit(1)
		}
	}

	oracleClient := newHTTPOracleClient(cfg.Oracle.Address, cfg.Oracle.Timeout)
	tokenClient := newHTTPTokenClient(cfg.Backstop.Address, cfg.Oracle.Timeout)
	events := pool.NewSlogEventSink(logger)

	// The backstop and emissions stores are process-local until a deployment
	// gives them their own LevelDBStore namespace alongside the pool's.
	bs := backstop.New(backstopAddr, lpToken, backstop.NewMemStore(), tokenClient)
	p := pool.NewPool(backstopAddr, store, oracleClient, tokenClient, bs, events)

	emitterClient := newHTTPEmitterClient(cfg.Emitter.Address, cfg.Emitter.Timeout)
	emissionsMgr := emissions.NewManager(backstopAddr, lpToken, emissions.NewMemStore(), bs, tokenClient)

	m := metrics.Pool()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		serveMetrics(ctx, logger, cfg.MetricsAddr)
	}()
	go func() {
		defer wg.Done()
		runPollLoop(ctx, logger, m, emissionsMgr, emitterClient, cfg.Poll)
	}()

	logger.Info("poold started", "storage_path", cfg.StoragePath, "metrics_addr", cfg.MetricsAddr)
	_ = p // wired and ready to serve submit()/auction RPCs over whatever transport the deployment adds
	<-ctx.Done()
	logger.Info("poold shutting down")
	wg.Wait()
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server", "error", err)
	}
}

// runPollLoop drives distribute() and gulp_emissions() on independent
// tickers, rate-limited the same way gateway/middleware/ratelimit.go guards
// its own permissionless entry points: these calls are callable by anyone,
// so the daemon must not let a misconfigured interval hammer the emitter.
func runPollLoop(ctx context.Context, logger *slog.Logger, m *metrics.PoolMetrics, mgr *emissions.Manager, emitter *httpEmitterClient, poll daemonconfig.PollConfig) {
	limiter := rate.NewLimiter(rate.Limit(float64(poll.RateLimitPerMin)/60.0), poll.RateLimitPerMin)

	distributeTicker := time.NewTicker(poll.DistributeInterval)
	defer distributeTicker.Stop()
	gulpTicker := time.NewTicker(poll.GulpInterval)
	defer gulpTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-distributeTicker.C:
			if err := limiter.Wait(ctx); err != nil {
				continue
			}
			accrued, err := mgr.Distribute(uint64(time.Now().Unix()), emitter.GetLastDistro)
			if err != nil {
				logger.Warn("distribute", "error", err)
				continue
			}
			accruedF, _ := new(big.Float).SetInt(accrued.ToBig()).Float64()
			backfilledF := 0.0
			if state, err := mgr.Store.GetEmitterState(); err == nil && state != nil && state.BackfilledEmissions != nil {
				backfilledF, _ = new(big.Float).SetInt(state.BackfilledEmissions.ToBig()).Float64()
			}
			m.ObserveEmissionsDistribute(accruedF, backfilledF)
			logger.Info("distributed emissions", "accrued", accrued.String())
		case <-gulpTicker.C:
			if err := limiter.Wait(ctx); err != nil {
				continue
			}
			zone, err := mgr.Store.ListRewardZone()
			if err != nil {
				logger.Warn("list reward zone", "error", err)
				continue
			}
			now := uint64(time.Now().Unix())
			for _, p := range zone {
				if err := mgr.GulpEmissions(now, p); err != nil {
					logger.Warn("gulp emissions", "pool", p.String(), "error", err)
					continue
				}
				m.ObserveGulp(p.String())
			}
		}
	}
}
