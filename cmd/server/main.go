package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/pilarlabs/studio-operator/internal/api"
	"github.com/pilarlabs/studio-operator/internal/config"
	"github.com/pilarlabs/studio-operator/internal/followup"
	"github.com/pilarlabs/studio-operator/internal/health"
	"github.com/pilarlabs/studio-operator/internal/integrations"
	"github.com/pilarlabs/studio-operator/internal/operator"
	"github.com/pilarlabs/studio-operator/internal/pkg/distlock"
	"github.com/pilarlabs/studio-operator/internal/pkg/httpretry"
	"github.com/pilarlabs/studio-operator/internal/pkg/resilience"
	"github.com/pilarlabs/studio-operator/internal/repository/postgres"
)

func main() {
	log.Println("Starting Pilar studio operator API...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable, locks fall back to PG advisory: %v", err)
		} else {
			log.Println("Connected to Redis")
		}
	}

	deps, err := buildDependencies(cfg, db, redisClient)
	if err != nil {
		log.Fatalf("Failed to build services: %v", err)
	}

	handlers := api.NewHandlers(deps.operator, deps.healthAgg, deps.scheduler, deps.activity, cfg.Followup.BatchSize)
	server := api.NewServer(cfg.Server, handlers, api.NewHealthChecker(db, redisClient))

	go func() {
		log.Printf("API listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

type dependencies struct {
	operator  *operator.Operator
	healthAgg *health.Aggregator
	scheduler *followup.Scheduler
	activity  *postgres.ActivityRepo
}

// buildDependencies wires repositories, adapters, and the remediation core.
func buildDependencies(cfg *config.Config, db *sql.DB, redisClient *redis.Client) (*dependencies, error) {
	workspaceRepo := postgres.NewWorkspaceRepo(db)
	followupRepo := postgres.NewFollowupRepo(db)
	provisioningRepo := postgres.NewProvisioningRepo(db)
	activityRepo := postgres.NewActivityRepo(db)
	webhookRepo := postgres.NewWebhookRepo(db)

	twilio := integrations.NewTwilioAdapter(integrations.TwilioConfig{
		BaseURL:    cfg.Twilio.BaseURL,
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	})
	whatsapp := integrations.NewWhatsAppAdapter(integrations.WhatsAppConfig{
		BaseURL:       cfg.WhatsApp.BaseURL,
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
	})
	ses, err := integrations.NewSESAdapter(context.Background(), integrations.SESConfig{
		AccessKey: cfg.SES.AccessKey,
		SecretKey: cfg.SES.SecretKey,
		Region:    cfg.SES.Region,
		FromEmail: cfg.SES.FromEmail,
	})
	if err != nil {
		return nil, err
	}
	adapters := []integrations.Adapter{twilio, whatsapp, ses}

	healthAgg := health.NewAggregator(adapters, provisioningRepo, followupRepo)

	breakers := resilience.NewBreakerRegistry(resilience.BreakerOptions{})

	var generator followup.Generator
	if cfg.Bedrock.Enabled {
		gen, err := followup.NewBedrockGenerator(context.Background(), cfg.Bedrock.ModelID, cfg.Bedrock.Region)
		if err != nil {
			log.Printf("Bedrock unavailable, followups use static copy: %v", err)
		} else {
			generator = gen
		}
	}
	scheduler := followup.NewScheduler(followupRepo, followup.Senders{
		SMS:      twilio,
		WhatsApp: whatsapp,
		Email:    ses,
	}, generator, breakers)

	locks := distlock.NewManager(redisClient, db)
	scanner := operator.NewScanner(workspaceRepo, operator.AggregatorHealthSource{Agg: healthAgg}, followupRepo, webhookRepo)
	executor := operator.NewExecutor(locks, activityRepo, operator.Routines{
		Provisioning: operator.NewProvisioner(provisioningRepo),
		Followups:    scheduler,
		Webhooks:     operator.NewWebhookRedeliverer(webhookRepo, httpretry.NewRetryClient(&http.Client{Timeout: 15 * time.Second}, 2), 10),
		Integrations: operator.NewIntegrationRestarter(adapters),
	})

	return &dependencies{
		operator:  operator.New(scanner, executor, nil),
		healthAgg: healthAgg,
		scheduler: scheduler,
		activity:  activityRepo,
	}, nil
}
