package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"docforge-backend/internal/client"
	"docforge-backend/internal/config"
	"docforge-backend/internal/logger"
	"docforge-backend/internal/repository"
	"docforge-backend/internal/server"
	"docforge-backend/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if cfg.Admin.JWTSecret == "" {
		log.Fatal("missing required config: ADMIN_JWT_SECRET")
	}

	db := client.InitMysqlClient(cfg.DatabaseURL)

	gatewayClient, err := client.NewGatewayClient(&cfg.Gateway)
	if err != nil {
		log.Fatal("gateway client init: ", err)
	}

	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	membershipService := service.NewMembershipService(db, membershipRepo, userRepo)
	paymentService := service.NewPaymentService(
		db, gatewayClient, cfg.Gateway.SecretKey,
		userRepo, planRepo, orderRepo,
		membershipService, webhookEventRepo,
	)
	promoService := service.NewPromoService(db, promoRepo, userRepo, membershipService)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(paymentService, membershipService, promoService, cfg.Admin.JWTSecret)

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error")
	}
}
