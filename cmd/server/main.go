package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/gmsol-labs/gmx-solana-sub000/internal/config"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/correlation"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/events"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/graph"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/metrics"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/num"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/simulator"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/store"
	"github.com/gmsol-labs/gmx-solana-sub000/internal/trade"
)

func main() {
	cfgPath := ""
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("gmx-engine failed", "err", err)
		os.Exit(1)
	}
	fmt.Println("gmx-engine stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL.Duration)
		}
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Simulator ---
	sim := simulator.New(simulator.Options{
		MaxPriceAge:           cfg.Engine.MaxPriceAge.Duration,
		ThrowOnExecutionError: cfg.Engine.ThrowOnExecutionError,
	}, slog.Default())
	if err := bootstrap(ctx, cfg, sim, st); err != nil {
		return err
	}

	// --- Action publication ---
	var pub events.Publisher
	if cfg.NATS.URL != "" {
		np, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("nats connection failed: %w", err)
		}
		pub = np
		slog.Info("publishing actions to NATS", "prefix", cfg.NATS.SubjectPrefix)
	} else {
		pub = events.NewRecorder(cfg.NATS.SubjectPrefix)
	}
	cleanup = append(cleanup, pub.Close)

	// --- Routing ---
	estimation, err := num.UintFromScaled(cfg.Engine.RouteEstimationValue, config.DefaultDecimals)
	if err != nil {
		return fmt.Errorf("route estimation value: %w", err)
	}
	router, err := graph.NewRouter(sim, graph.Options{
		EstimationValue: estimation,
		Decimals:        config.DefaultDecimals,
		CacheSize:       cfg.Engine.RouteCacheSize,
		Concurrency:     cfg.Engine.RouteConcurrency,
	}, slog.Default())
	if err != nil {
		return err
	}

	// --- Position limits ---
	limiter := correlation.NewPositionLimiter(cfg.Limits.MaxPerMarket, cfg.Limits.MaxCorrelated)

	wsHub := trade.NewWSHub()
	svc := trade.NewService(sim, router, st, limiter, pub, wsHub)
	metrics.ActiveMarkets.Set(float64(len(sim.Markets())))

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"gmx-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time action and price updates.
		r.Get("/ws", wsHub.HandleWS)
		svc.Routes(r)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wsHub.Run(gctx) })
	g.Go(func() error {
		slog.Info("gmx-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		slog.Info("shutting down gmx-engine...")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// bootstrap fills the simulator. Markets and positions come from the store
// when it has any; otherwise markets are built from the presets and saved.
func bootstrap(ctx context.Context, cfg *config.Config, sim *simulator.Simulator, st store.Store) error {
	for _, vi := range cfg.VirtualInventories() {
		sim.AddVirtualInventory(vi)
	}

	snaps, err := st.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	if len(snaps) > 0 {
		for i := range snaps {
			m, err := store.RestoreMarket(&snaps[i])
			if err != nil {
				return err
			}
			if err := sim.AddMarket(m); err != nil {
				return err
			}
		}
		positions, err := st.ListPositions(ctx)
		if err != nil {
			return fmt.Errorf("list positions: %w", err)
		}
		for i := range positions {
			p, err := store.RestorePosition(&positions[i])
			if err != nil {
				return err
			}
			if err := sim.AddPosition(p); err != nil {
				return err
			}
		}
		slog.Info("restored state", "markets", len(snaps), "positions", len(positions))
	} else {
		markets, err := cfg.BuildMarkets(sim.Now())
		if err != nil {
			return err
		}
		for _, m := range markets {
			if err := sim.AddMarket(m); err != nil {
				return err
			}
			snap, err := store.MarketSnapshot(m, sim.Now())
			if err != nil {
				return err
			}
			if err := st.SaveMarket(ctx, snap); err != nil {
				return fmt.Errorf("save market %s: %w", m.Name, err)
			}
		}
		slog.Info("markets created from presets", "markets", len(markets))
	}

	glvs, err := cfg.BuildGlvs(sim.Markets())
	if err != nil {
		return err
	}
	for _, g := range glvs {
		if err := sim.AddGlv(g); err != nil {
			return err
		}
	}
	return nil
}
