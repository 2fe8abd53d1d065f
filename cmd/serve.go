package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-align/internal/constants"
	"github.com/kozaktomas/face-align/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the face-align HTTP API.
POST /api/v1/align aligns one uploaded image, POST /api/v1/recover maps an
aligned image back with a given or recorded matrix.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", constants.DefaultPort, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("ledger", "", "Ledger directory (default from config)")
	serveCmd.Flags().Bool("no-ledger", false, "Do not record transforms of aligned images")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" && !cmd.Flags().Changed("port") {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" && !cmd.Flags().Changed("host") {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	al, err := newAligner(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var lh *ledgerHandle
	if !mustGetBool(cmd, "no-ledger") {
		if lh, err = openLedger(ctx, cfg, mustGetString(cmd, "ledger")); err != nil {
			return err
		}
		defer lh.Close()
		fmt.Printf("Recording transforms with the %s ledger\n", cfg.Ledger.Backend)
	}

	port, host := resolveServeHostPort(cmd)
	var server *web.Server
	if lh != nil {
		server = web.NewServer(cfg, port, host, al, lh.Ledger)
	} else {
		server = web.NewServer(cfg, port, host, al, nil)
	}

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting face-align API on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
