package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docforge-backend/internal/client"
	"docforge-backend/internal/config"
	"docforge-backend/internal/logger"
	"docforge-backend/internal/repository"
	"docforge-backend/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// sweeper runs the background order jobs: cancelling stale PENDING
// orders past their expiry, and reconciling recent PENDING orders
// against the gateway in case a webhook was lost.
func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)

	db := client.InitMysqlClient(cfg.DatabaseURL)

	gatewayClient, err := client.NewGatewayClient(&cfg.Gateway)
	if err != nil {
		log.Fatal("gateway client init: ", err)
	}

	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	membershipService := service.NewMembershipService(db, membershipRepo, userRepo)
	paymentService := service.NewPaymentService(
		db, gatewayClient, cfg.Gateway.SecretKey,
		userRepo, planRepo, orderRepo,
		membershipService, webhookEventRepo,
	)

	scheduler := cron.New(cron.WithSeconds())

	_, err = scheduler.AddFunc(cfg.Sweeper.ExpireSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		count, err := paymentService.CancelExpiredOrders(ctx, time.Now())
		if err != nil {
			log.Printf("[CRON] expire sweep failed: %v", err)
			return
		}
		log.Printf("[CRON] cancelled %d expired orders", count)
	})
	if err != nil {
		log.Fatal("register expire job: ", err)
	}

	_, err = scheduler.AddFunc(cfg.Sweeper.ReconcileSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		// only orders young enough to still be payable are worth polling
		count, err := paymentService.ReconcilePendingOrders(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			log.Printf("[CRON] reconcile sweep failed: %v", err)
			return
		}
		if count > 0 {
			log.Printf("[CRON] settled %d orders via reconcile poll", count)
		}
	})
	if err != nil {
		log.Fatal("register reconcile job: ", err)
	}

	scheduler.Start()
	log.Println("Sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Println("Signal received, stopping scheduler...")
	<-scheduler.Stop().Done()
}
