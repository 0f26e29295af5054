package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/api"
	"github.com/innovatorsguild/sales-agents/internal/config"
	"github.com/innovatorsguild/sales-agents/internal/distlock"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/linkedin"
	"github.com/innovatorsguild/sales-agents/internal/llm"
	"github.com/innovatorsguild/sales-agents/internal/prospect"
	"github.com/innovatorsguild/sales-agents/internal/ratelimit"
	"github.com/innovatorsguild/sales-agents/internal/report"
	"github.com/innovatorsguild/sales-agents/internal/state"
	"github.com/innovatorsguild/sales-agents/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// acquirePIDFile refuses to start when another agents process already owns
// the PID file. Lead safety depends on the distributed locks, not on this
// guard, but a second local instance is almost always an operator mistake.
func acquirePIDFile(path string) (func(), error) {
	if data, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid > 0 {
			if proc, err := os.FindProcess(pid); err == nil {
				if err := proc.Signal(syscall.Signal(0)); err == nil {
					return nil, fmt.Errorf("another instance is running (pid %d from %s)", pid, path)
				}
			}
		}
		log.Printf("Removing stale PID file %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return nil, err
	}
	return func() { os.Remove(path) }, nil
}

func main() {
	log.Println("Innovators Guild sales agents starting")

	configPath := "config/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	releasePID, err := acquirePIDFile(cfg.Storage.PIDFile)
	if err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	defer releasePID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable coordination store
	db, err := sql.Open("postgres", cfg.Storage.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store := state.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	log.Println("Coordination store ready")

	// Redis is optional; without it TTL locks fall back to Postgres
	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			log.Fatalf("Invalid redis_url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis locks enabled")
	} else {
		log.Println("No redis_url configured, using Postgres locks")
	}

	// Shared lead sheet
	leads, err := leadstore.NewSheetsStore(ctx, cfg.Sheets.SpreadsheetID,
		cfg.Sheets.SheetName, cfg.Sheets.CredentialsFile, cfg.Sheets.Timeout())
	if err != nil {
		log.Fatalf("Failed to open lead sheet: %v", err)
	}
	log.Printf("Lead sheet ready: %s/%s", cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)

	// LLM is optional; every consumer has a deterministic fallback
	var gen llm.Generator
	if cfg.LLM.Enabled {
		client, err := llm.NewClient(ctx, cfg.LLM.Region, cfg.LLM.ModelID, cfg.LLM.Timeout())
		if err != nil {
			log.Fatalf("Failed to initialize Bedrock client: %v", err)
		}
		gen = client
		log.Printf("Bedrock model ready: %s", cfg.LLM.ModelID)
	} else {
		log.Println("LLM disabled, using rule-based classification and templates")
	}

	// LinkedIn automation accounts
	accountCfgs := make([]linkedin.AccountConfig, 0, len(cfg.LinkedIn.Accounts))
	for _, a := range cfg.LinkedIn.Accounts {
		accountCfgs = append(accountCfgs, linkedin.AccountConfig{
			Name:      a.Name,
			BaseURL:   a.BaseURL,
			APIKey:    a.APIKey,
			AccountID: a.AccountID,
		})
	}
	manager, err := linkedin.NewManager(accountCfgs, cfg.LinkedIn.Timeout())
	if err != nil {
		log.Fatalf("Failed to configure LinkedIn accounts: %v", err)
	}
	accountNames := make([]string, 0, len(manager.Accounts()))
	for _, a := range manager.Accounts() {
		accountNames = append(accountNames, a.Name())
	}
	log.Printf("LinkedIn accounts configured: %s", strings.Join(accountNames, ", "))

	// Rate limiter shares the counters table with the status endpoint
	minGap, maxGap, err := cfg.Outreach.ParseRateInterval()
	if err != nil {
		log.Fatalf("Invalid rate_limit_interval: %v", err)
	}
	winStart, winEnd, err := cfg.Outreach.ParseRateWindow()
	if err != nil {
		log.Fatalf("Invalid rate_limit_window: %v", err)
	}
	loc, err := time.LoadLocation(cfg.Outreach.Timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", cfg.Outreach.Timezone, err)
	}
	limiter := ratelimit.NewLimiter(db, ratelimit.Options{
		DailyCap:    cfg.Outreach.RateLimitDaily,
		HourlyCap:   cfg.Outreach.RateLimitHourly,
		MinInterval: minGap,
		MaxInterval: maxGap,
		WindowStart: winStart,
		WindowEnd:   winEnd,
		Location:    loc,
	})

	hostname, _ := os.Hostname()
	locks := distlock.NewFactory(redisClient, db,
		fmt.Sprintf("%s-%d", hostname, os.Getpid()), cfg.Outreach.LockTTL())

	// Prospect pipeline
	classifier := prospect.NewClassifier(gen)
	analyser := prospect.NewAnalyser(gen)
	generator, err := prospect.NewGenerator(gen, cfg.Outreach.EventName, cfg.Outreach.EventDate)
	if err != nil {
		log.Fatalf("Failed to build message templates: %v", err)
	}

	// Daily report is optional
	var reporter *report.Reporter
	if cfg.Report.Enabled {
		sender, err := report.NewEmailSender(ctx, report.EmailConfig{
			Region:     cfg.Report.Region,
			AccessKey:  cfg.Report.AccessKey,
			SecretKey:  cfg.Report.SecretKey,
			From:       cfg.Report.FromAddress,
			Recipients: cfg.Report.Recipients,
			Timeout:    cfg.Report.Timeout(),
		})
		if err != nil {
			log.Fatalf("Failed to initialize SES sender: %v", err)
		}
		reporter = report.NewReporter(leads, gen, sender)
		log.Printf("Daily reports enabled to %s", strings.Join(cfg.Report.Recipients, ", "))
	} else {
		log.Println("Daily reports disabled")
	}

	// The three agents
	leadFinder := worker.NewLeadFinder(leads, classifier, store, worker.LeadFinderConfig{
		PollInterval:     cfg.LeadFinder.Interval(),
		MaxLeadsPerCycle: cfg.LeadFinder.MaxLeadsPerCycle,
		DefaultScore:     cfg.LeadFinder.DefaultQualityScore,
	})
	salesManager := worker.NewSalesManager(leads, limiter, locks, store, reporter, worker.SalesManagerConfig{
		CoordinationInterval:   cfg.SalesManager.CoordinationInterval(),
		ReportInterval:         cfg.SalesManager.ReportInterval(),
		MaxAllocationsPerCycle: cfg.SalesManager.MaxAllocationsPerCycle,
		SpeakerRatio:           cfg.SalesManager.SpeakerRatio,
		QualityThreshold:       cfg.LeadFinder.QualityThreshold,
		Accounts:               accountNames,
	})
	outreach := worker.NewOutreach(leads, limiter, locks, store, store, manager,
		generator, analyser, worker.OutreachConfig{
			PollInterval:        cfg.Outreach.Interval(),
			AcceptanceInterval:  cfg.Outreach.AcceptanceInterval(),
			ResponseInterval:    cfg.Outreach.ResponseInterval(),
			MaxAcceptanceChecks: cfg.Outreach.MaxAcceptanceChecks,
		})

	if err := leadFinder.Start(); err != nil {
		log.Fatalf("Failed to start lead finder: %v", err)
	}
	if err := salesManager.Start(); err != nil {
		log.Fatalf("Failed to start sales manager: %v", err)
	}
	if err := outreach.Start(); err != nil {
		log.Fatalf("Failed to start outreach: %v", err)
	}

	// Status server
	var server *api.Server
	if cfg.Server.Enabled {
		handlers := api.NewHandlers(leads, store)
		handlers.RegisterAgent("lead_finder", leadFinder)
		handlers.RegisterAgent("sales_manager", salesManager)
		handlers.RegisterAgent("outreach", outreach)
		server = api.NewServer(handlers)

		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			log.Printf("Status server listening on %s", addr)
			if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Status server error: %v", err)
			}
		}()
	}

	log.Println("All agents running")

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Println("Shutting down...")

	outreach.Stop()
	salesManager.Stop()
	leadFinder.Stop()
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Status server shutdown error: %v", err)
		}
	}

	log.Println("Stopped")
}
