package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/jepsonc/immich-monitor/internal/cloudflare"
	"github.com/jepsonc/immich-monitor/internal/config"
	"github.com/jepsonc/immich-monitor/internal/handlers"
	"github.com/jepsonc/immich-monitor/internal/immich"
)

func main() {
	godotenv.Load()

	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	cfClient := cloudflare.NewClient(logger, cfg)
	immichAgg := immich.NewAggregator(logger, cfg)
	cloudflareAgg := cloudflare.NewAggregator(logger, cfg, cfClient)

	handler := handlers.NewMetricsHandler(logger, immichAgg, cloudflareAgg)

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.RateLimitMiddleware(cfg))
	handlers.RegisterRoutes(r, handler)

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}).Handler(r)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:      corsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("Server shutdown error")
		}
	}()

	logger.WithField("addr", server.Addr).Info("Starting monitoring server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("Server failed")
	}
}
