package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concierge-whatsapp/internal/adapters/llm"
	"concierge-whatsapp/internal/adapters/rabbitmq"
	"concierge-whatsapp/internal/adapters/s3"
	"concierge-whatsapp/internal/adapters/twilio"
	"concierge-whatsapp/internal/handlers"
	"concierge-whatsapp/internal/services"

	"github.com/rs/zerolog/log"
)

func runServe() error {
	ctx := context.Background()
	cfg, h, s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer h.Close()
	log.Info().Str("backend", s.Backend()).Msg("Database ready")

	if cfg.SeedOnEmpty {
		sum, err := services.Seed(ctx, s)
		switch {
		case errors.Is(err, services.ErrNotEmpty):
			log.Info().Msg("SEED_ON_EMPTY set but database already has tenants")
		case err != nil:
			return err
		default:
			log.Info().Interface("seeded", sum).Msg("Demo data loaded")
		}
	}

	registry := twilio.NewRegistry()
	factory := services.TwilioClientFactory(cfg.TwilioAPIBaseURL)
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		client, err := factory(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create the default messaging client")
		} else {
			registry.SetDefault(client, cfg.TwilioWhatsAppNumber)
			log.Info().Str("from", cfg.TwilioWhatsAppNumber).Msg("Default messaging client configured")
		}
	}
	outbound := services.NewOutboundSender(registry, s, factory)
	if err := outbound.InitClients(ctx); err != nil {
		log.Error().Err(err).Msg("Messaging clients not initialized, they will be built on first send")
	}

	publisher := rabbitmq.NewPublisher(rabbitmq.Config{
		URL:            cfg.RabbitMQURL,
		Queue:          cfg.RabbitMQQueue,
		QueuePrefix:    cfg.RabbitMQQueuePrefix,
		SpecificEvents: cfg.RabbitMQSpecific,
	})
	defer publisher.Close()

	generator := services.NewReplyGenerator(s, llm.NewChatModelOrUnavailable(ctx, cfg), services.GeneratorConfig{
		MaxTokens:    cfg.ReplyMaxTokens,
		HistoryLimit: cfg.ReplyHistoryLimit,
		Timeout:      cfg.LLMTimeout,
	})
	dispatcher := services.NewReplyDispatcher(h.Gorm, s, generator, outbound, publisher, services.DispatcherConfig{
		Workers:    cfg.ReplyWorkers,
		QueueSize:  cfg.ReplyQueueSize,
		JobTimeout: cfg.LLMTimeout + time.Minute,
	})
	dispatcher.Start()
	if err := dispatcher.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover pending reply jobs")
	}

	var writer services.ObjectWriter
	if cfg.S3Enabled() {
		archiver, err := s3.NewArchiver(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			log.Error().Err(err).Msg("Transcript archive disabled")
		} else {
			if err := archiver.TestConnection(ctx); err != nil {
				log.Warn().Err(err).Str("bucket", archiver.Bucket()).Msg("S3 connection test failed")
			}
			writer = archiver
		}
	}

	auth := services.NewAuthService(s, services.NewSessionStore(cfg.SessionTTL), services.AuthConfig{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		ResetTokenTTL: cfg.ResetTokenTTL,
	})
	srv := handlers.NewServer(handlers.Deps{
		Store:         s,
		Auth:          auth,
		Ingest:        services.NewIngestService(s, services.NewTenantResolver(s, cfg.RoutingStrict), publisher),
		Dispatcher:    dispatcher,
		Conversations: services.NewConversationService(s, outbound),
		Outbound:      outbound,
		Archive:       services.NewArchiveService(s, writer, publisher),
		Onboarding:    services.NewOnboarding(cfg.TwilioWhatsAppNumber),
	}, handlers.Options{
		WebhookAuthToken: cfg.TwilioWebhookAuthToken,
		PublicBaseURL:    cfg.PublicBaseURL,
		CORSOrigins:      cfg.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		dispatcher.Stop()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	dispatcher.Stop()
	log.Info().Msg("Server stopped")
	return nil
}
