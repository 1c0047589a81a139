package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LugmanS/chatbot/internal/adapters/httpapi"
	redisstore "github.com/LugmanS/chatbot/internal/adapters/redis"
	"github.com/LugmanS/chatbot/internal/adapters/whatsapp"
	"github.com/LugmanS/chatbot/internal/config"
	"github.com/LugmanS/chatbot/internal/engine"
	"github.com/LugmanS/chatbot/internal/logging"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long:  `Starts the HTTP server handling WhatsApp webhook events and the bot management API.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.FromEnv()
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Port = port
		}
		if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
			cfg.RedisAddr = addr
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.LogLevel = level
		}
		if err := cfg.Validate(); err != nil {
			fmt.Printf("Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		logger := logging.New(logging.ParseLevel(cfg.LogLevel))

		client := backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		store := redisstore.New(client)

		messengerOpts := []whatsapp.ClientOption{whatsapp.WithLogger(logger)}
		if cfg.GraphBaseURL != "" {
			messengerOpts = append(messengerOpts, whatsapp.WithBaseURL(cfg.GraphBaseURL))
		}
		messenger := whatsapp.NewClient(cfg.AccessToken, messengerOpts...)

		eng := engine.New(store, store, store, messenger, engine.WithLogger(logger))
		server := httpapi.NewServer(eng, store, store, cfg.VerifyToken, httpapi.WithLogger(logger))

		srv := &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: server.Handler(),
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			logger.Error("server error", "err", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("server close failed", "err", err)
				}
			}
			// Let in-flight event processing drain before exit.
			server.Wait()
			logger.Info("server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (overrides PORT)")
}
