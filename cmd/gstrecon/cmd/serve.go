package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gst-reconciliation-service/internal/portal"
	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/internal/server"
	"gst-reconciliation-service/pkg/logger"
)

// Flags for the serve command
var (
	listenAddr    string
	portalURL     string
	portalTimeout time.Duration
	cacheTTL      time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	Long: `Serve starts the HTTP API used by the web frontend. It exposes health
and period listing endpoints plus the four reconciliation operations
under /api/v1/reconcile.

Portal-backed operations (GSTR-1 vs books, GSTR-3B vs books,
comprehensive) need --portal-url pointing at the GST data gateway;
without it only the manual 2B vs books upload works.

Examples:
  gstrecon serve --listen :8084
  gstrecon serve --listen :8084 --portal-url https://gateway.example.in --cache-ttl 30m`,

	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd, args); err != nil {
			os.Exit(NewCLIErrorHandler().HandleError(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8084", "address to listen on")
	serveCmd.Flags().StringVar(&portalURL, "portal-url", "", "base URL of the GST data gateway")
	serveCmd.Flags().DurationVar(&portalTimeout, "portal-timeout", 30*time.Second, "timeout for portal requests")
	serveCmd.Flags().DurationVar(&cacheTTL, "cache-ttl", portal.DefaultCacheTTL, "portal response cache lifetime")

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("portal-url", serveCmd.Flags().Lookup("portal-url"))
	viper.BindPFlag("portal-timeout", serveCmd.Flags().Lookup("portal-timeout"))
	viper.BindPFlag("cache-ttl", serveCmd.Flags().Lookup("cache-ttl"))
}

func runServe(cmd *cobra.Command, args []string) error {
	listenAddr = viper.GetString("listen")
	portalURL = viper.GetString("portal-url")
	portalTimeout = viper.GetDuration("portal-timeout")
	cacheTTL = viper.GetDuration("cache-ttl")

	if portalTimeout <= 0 {
		return fmt.Errorf("portal timeout must be positive, got %s", portalTimeout)
	}
	if cacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", cacheTTL)
	}

	log := logger.GetGlobalLogger().WithComponent("serve")

	var portalClient portal.Client
	if portalURL != "" {
		portalClient = portal.NewCachingClient(portal.NewHTTPClient(portalURL, portalTimeout), cacheTTL)
		log.WithField("portal_url", portalURL).Info("Portal client configured")
	} else {
		log.Warn("No portal URL configured, only manual uploads will be available")
	}

	srv := server.NewServer(reconciler.NewService(portalClient))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("addr", listenAddr).Info("Starting HTTP server")
	return srv.Start(ctx, listenAddr)
}
