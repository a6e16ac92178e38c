package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"concierge-whatsapp/config"
	"concierge-whatsapp/internal/db"
	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/services"
	"concierge-whatsapp/internal/store"
	"concierge-whatsapp/pkg/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	logger.InitLogger()

	root := &cobra.Command{
		Use:           "concierge",
		Short:         "WhatsApp concierge service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.AddCommand(serveCommand(), seedCommand(), createTenantCommand(), onboardCommand())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the reply workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

// openStore loads the configuration and opens a migrated store.
func openStore(ctx context.Context) (*config.Config, *db.Handles, *store.SQLStore, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	h, err := db.Open(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := store.New(h.SQL)
	if err != nil {
		h.Close()
		return nil, nil, nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		h.Close()
		return nil, nil, nil, err
	}
	if err := h.MigrateDB(&models.ReplyJob{}); err != nil {
		h.Close()
		return nil, nil, nil, err
	}
	return cfg, h, s, nil
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo tenants, FAQs and conversations into an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, h, s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			sum, err := services.Seed(ctx, s)
			if errors.Is(err, services.ErrNotEmpty) {
				log.Warn().Msg("Database already has tenants, nothing seeded")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tenants, %d FAQs, %d conversations, %d messages\n",
				sum.Tenants, sum.FAQs, sum.Conversations, sum.Messages)
			return nil
		},
	}
}

func createTenantCommand() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-tenant",
		Short: "Create a tenant account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, h, s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			auth := services.NewAuthService(s, services.NewSessionStore(cfg.SessionTTL), services.AuthConfig{ResetTokenTTL: cfg.ResetTokenTTL})
			t, err := auth.CreateTenant(ctx, name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created tenant %d (%s)\n", t.ID, t.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func onboardCommand() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Print the sandbox join QR code of a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(tenantID, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid tenant id %q", tenantID)
			}
			ctx := cmd.Context()
			cfg, h, s, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			t, err := s.GetTenant(ctx, id)
			if err != nil {
				return err
			}
			return services.NewOnboarding(cfg.TwilioWhatsAppNumber).PrintQR(cmd.OutOrStdout(), t.TenantPublic)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.MarkFlagRequired("tenant")
	return cmd
}
