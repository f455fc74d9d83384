package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/coffeehunt/internal/server"
	"github.com/audiolibrelab/coffeehunt/internal/service"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk web server",
	Long: `Start the Coffee Hunt web server. The control page drives the hunt
from any browser on the same network, and finished clips are served from
/api/artifacts.

The server will display the local network URL for easy access from mobile devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}
		if cfg.Server.PublicURL == "" {
			cfg.Server.PublicURL = fmt.Sprintf("http://localhost:%s", cfg.Server.Port)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc := service.NewDefault(cfg)
		defer svc.Stop(context.Background())

		srv := server.New(svc, cfg)

		slog.Info("Coffee Hunt web server starting", "port", cfg.Server.Port, "profile", cfg.Profile)

		// Start server (this blocks)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (overrides config)")
}
