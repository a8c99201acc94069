// The operator binary runs the remediation and followup loops on a timer,
// without the HTTP API. Deploy it as a singleton worker or alongside the
// server; per-tenant locks keep overlapping runs safe.
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
	log.Println("Starting Pilar studio operator worker...")

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
	}

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
		log.Fatalf("Failed to init SES: %v", err)
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
	op := operator.New(scanner, executor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Operator.Enabled {
		go runOperatorLoop(ctx, op, cfg.Operator)
	} else {
		log.Println("Operator loop disabled")
	}
	if cfg.Followup.Enabled {
		go runFollowupLoop(ctx, scheduler, cfg.Followup)
	} else {
		log.Println("Followup loop disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	// Give in-flight actions a moment to release their locks.
	time.Sleep(2 * time.Second)
	log.Println("Worker stopped")
}

func runOperatorLoop(ctx context.Context, op *operator.Operator, cfg config.OperatorConfig) {
	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()
	log.Printf("Operator loop started (every %s)", cfg.Interval())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := op.RunOperator(ctx, operator.Options{
				MaxSignals: cfg.MaxSignals,
				MaxActions: cfg.MaxActions,
			}); err != nil {
				log.Printf("Operator run failed: %v", err)
			}
		}
	}
}

func runFollowupLoop(ctx context.Context, scheduler *followup.Scheduler, cfg config.FollowupConfig) {
	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()
	log.Printf("Followup loop started (every %s)", cfg.Interval())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := scheduler.ProcessDue(ctx, cfg.BatchSize); err != nil {
				log.Printf("Followup pass failed: %v", err)
			}
		}
	}
}
