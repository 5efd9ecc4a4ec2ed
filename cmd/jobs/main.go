package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"eventlottery/config"
	"eventlottery/internal/adapters/email"
	"eventlottery/internal/adapters/push"
	"eventlottery/internal/adapters/queue"
	"eventlottery/internal/jobs"
	"eventlottery/internal/repository/postgres"
	"eventlottery/internal/services"
)

func main() {
	log := config.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if err := postgres.RunMigrations(log, cfg.DBUrl, cfg.MigrationsPath); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to ping redis", "error", err)
		os.Exit(1)
	}
	dispatchQueue := queue.NewStorage(redisClient)

	sender, err := push.NewSender(push.Config{
		Provider:       cfg.PushProvider,
		GatewayURL:     cfg.PushGatewayURL,
		TokenURL:       cfg.PushTokenURL,
		ServiceAccount: cfg.PushServiceAccount,
		PrivateKeyPEM:  cfg.PushPrivateKey,
		BatchSize:      cfg.PushBatchSize,
	}, log)
	if err != nil {
		log.Error("failed to create push sender", "error", err)
		os.Exit(1)
	}

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.AlertEmailFrom,
		FromName:    "eventlottery",
		SES: email.SESConfig{
			Region:          cfg.SESRegion,
			AccessKeyID:     cfg.SESAccessKeyID,
			SecretAccessKey: cfg.SESSecretAccessKey,
		},
	}, log)
	if err != nil {
		log.Error("failed to create mailer", "error", err)
		os.Exit(1)
	}

	eventRepo := postgres.NewEventRepository(db)
	entrantRepo := postgres.NewEntrantRepository(db)
	invitationRepo := postgres.NewInvitationRepository(db)
	requestRepo := postgres.NewNotificationRequestRepository(db)
	userRepo := postgres.NewUserRepository(db)

	alerts := services.NewAlertService(mailer, email.NewTemplateRenderer(), cfg.AlertEmailTo, log)
	selection := services.NewSelectionService(eventRepo, entrantRepo, invitationRepo, requestRepo, dispatchQueue, cfg.InvitationTTL, log)
	dispatcher := services.NewDispatchService(requestRepo, userRepo, sender, dispatchQueue, log)
	sweeper := services.NewSweepService(eventRepo, entrantRepo, requestRepo, dispatchQueue, cfg.SweepInterval, log)
	retry := services.NewRetryService(requestRepo, userRepo, sender, alerts, cfg.MaxRetries, cfg.MinRetryDelay, log)

	runner := jobs.NewRunner(selection, sweeper, retry, dispatcher, dispatchQueue,
		cfg.SelectionInterval, cfg.SweepInterval, cfg.RetryInterval, log)

	log.Info("starting entrant lifecycle jobs", "environment", cfg.Environment)
	runner.Run(ctx)
	log.Info("shutdown complete")
}
