package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"agentflow/internal/api"
	"agentflow/internal/config"
	"agentflow/internal/domain"
	"agentflow/internal/handlers/analysis"
	"agentflow/internal/handlers/goal"
	"agentflow/internal/handlers/pricewatch"
	"agentflow/internal/registry"
	"agentflow/internal/scheduler"
	"agentflow/internal/store"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML config path (optional)")
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		dbPath  = flag.String("db", "", "SQLite DB path (overrides config)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DB.Path = *dbPath
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.DB.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	st := store.NewSQLite(db)

	reg := registry.New()
	registerTaskTypes(reg)

	schedCfg, err := schedulerConfig(cfg.Scheduler)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(schedCfg, st, reg, log.Logger)
	sched.Start(ctx)

	rec := scheduler.NewRecurring(sched, log.Logger)
	for i, r := range cfg.Recurring {
		every, err := config.ParseDurationField(fmt.Sprintf("recurring[%d].every", i), r.Every)
		if err != nil {
			log.Fatal().Err(err).Msg("recurring config")
		}
		err = rec.Add(scheduler.RecurringEntry{
			Type:     r.Type,
			Every:    every,
			Payload:  json.RawMessage(r.Payload),
			Priority: r.Priority,
			AgentID:  r.AgentID,
		})
		if err != nil {
			log.Fatal().Err(err).Str("type", r.Type).Msg("recurring entry")
		}
	}
	rec.Start()

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewServer(sched, cfg.HTTP.SubmitPerSecond, cfg.HTTP.SubmitBurst),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")

	rec.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("in-flight tasks abandoned; will be recovered on next start")
	}
	cancel()
}

func registerTaskTypes(reg *registry.Registry) {
	types := []registry.Descriptor{
		{
			Name:              "autonomous_goal",
			Handler:           goal.Runner{},
			MaxRetries:        3,
			EstimatedDuration: 30 * time.Second,
			Timeout:           2 * time.Minute,
			Resources:         domain.ResourceHints{CPU: domain.ResourceMedium, Memory: domain.ResourceMedium, Network: domain.ResourceLow},
		},
		{
			Name:              "price_monitoring",
			Handler:           pricewatch.Check{},
			MaxRetries:        2,
			EstimatedDuration: 5 * time.Second,
			Timeout:           time.Minute,
			Resources:         domain.ResourceHints{CPU: domain.ResourceLow, Memory: domain.ResourceLow, Network: domain.ResourceHigh},
		},
		{
			Name:              "learning_analysis",
			Handler:           analysis.Insights{},
			MaxRetries:        1,
			EstimatedDuration: 10 * time.Second,
			Timeout:           time.Minute,
			Resources:         domain.ResourceHints{CPU: domain.ResourceHigh, Memory: domain.ResourceMedium, Network: domain.ResourceLow},
		},
	}
	for _, d := range types {
		if err := reg.Register(d); err != nil {
			log.Fatal().Err(err).Str("type", d.Name).Msg("register task type")
		}
	}
}

func schedulerConfig(c config.Scheduler) (scheduler.Config, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.tick_interval", c.TickInterval, scheduler.DefaultTickInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	backoff, err := config.ParseDurationOrDefault("scheduler.backoff_unit", c.BackoffUnit, scheduler.DefaultBackoffUnit)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		TickInterval:    tick,
		MaxConcurrent:   c.MaxConcurrent,
		FetchBatch:      c.FetchBatch,
		BackoffUnit:     backoff,
		DefaultPriority: c.DefaultPriority,
	}, nil
}
