package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tokex-dev/tokex/internal/api"
	"github.com/tokex-dev/tokex/internal/config"
	"github.com/tokex-dev/tokex/internal/core"
	"github.com/tokex-dev/tokex/internal/engine"
	"github.com/tokex-dev/tokex/internal/idp"
	"github.com/tokex-dev/tokex/internal/issuers"
	"github.com/tokex-dev/tokex/internal/service"
	"github.com/tokex-dev/tokex/internal/visibility"
)

var serveConfigFile string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tokex server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := config.Load(serveConfigFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		log.Info().Msg("Initializing identity verification...")
		resolver := idp.NewKeyResolver(cfg.Providers)
		verifier := idp.NewVerifier(resolver, cfg.Audience)

		log.Info().Msg("Initializing issuers...")
		registry, ghIssuer, err := issuers.Build(cfg.Services, nil)
		if err != nil {
			return fmt.Errorf("building issuer registry: %w", err)
		}

		var vis core.VisibilityResolver
		if ghIssuer != nil {
			vis = visibility.New(ghIssuer.Visibility, visibility.DefaultTTL)
		}

		policies := engine.NewManager(cfg.Rules)
		svc := service.NewExchangeService(verifier, policies, registry, vis, cfg.Limits)

		server := &http.Server{
			Addr:    addr,
			Handler: api.NewServer(svc).Routes(),
		}

		go func() {
			log.Info().Msgf("Starting server on %s...", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server crashed")
			}
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

		for sig := range sigs {
			// SIGHUP reloads the policy rules without dropping in-flight
			// requests; everything else shuts down.
			if sig == syscall.SIGHUP {
				reloadRules(policies)
				continue
			}
			break
		}

		log.Info().Msg("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func reloadRules(policies *engine.PolicyManager) {
	cfg, err := config.Load(serveConfigFile)
	if err != nil {
		log.Error().Err(err).Msg("Policy reload failed, keeping the current rules")
		return
	}
	policies.Update(cfg.Rules)
	log.Info().Int("rules", len(cfg.Rules)).Msg("Policy rules reloaded")
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	serveCmd.Flags().StringVarP(&serveConfigFile, "config", "f", "tokex.yaml", "The tokex configuration file to use")
}
