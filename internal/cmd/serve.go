package cmd

import (
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/osaibot/osaibot/internal/config"
	"github.com/osaibot/osaibot/internal/handlers"
	"github.com/osaibot/osaibot/internal/logger"
	"github.com/osaibot/osaibot/internal/sandbox"
	"github.com/osaibot/osaibot/internal/server"
	"github.com/osaibot/osaibot/internal/session"
	"github.com/osaibot/osaibot/internal/uploadfs"
)

var serveFlags struct {
	listenAddr string
	adminAddr  string
	dev        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge daemon",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.listenAddr, "listen", "", "bot-facing TCP address (default 0.0.0.0:49813)")
	serveCmd.Flags().StringVar(&serveFlags.adminAddr, "admin-addr", "", "enable the HTTP status endpoint on this address")
	serveCmd.Flags().BoolVar(&serveFlags.dev, "dev", false, "pretty console logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Configure(logger.GetLogLevelFromEnv(), serveFlags.dev)

	cfg := config.FromEnv()
	if serveFlags.listenAddr != "" {
		cfg.ListenAddr = serveFlags.listenAddr
	}
	if serveFlags.adminAddr != "" {
		cfg.AdminAddr = serveFlags.adminAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sandbox.StartReaper()

	if err := sandbox.EnablePing(); err != nil {
		logger.Warnf("ping_group_range: %v", err)
	}

	fuseServer, err := uploadfs.Mount(cfg.UploadMount)
	if err != nil {
		return err
	}
	defer fuseServer.Unmount()
	logger.Infof("upload filesystem mounted at %s", cfg.UploadMount)

	if watcher, err := server.WatchCollaborators(cfg); err != nil {
		logger.Warnf("collaborator watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	registry := session.NewRegistry()

	if cfg.AdminAddr != "" {
		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		handlers.NewAdminHandler(registry).Register(app)
		go func() {
			if err := app.Listen(cfg.AdminAddr); err != nil {
				logger.Errorf("admin endpoint: %v", err)
			}
		}()
		logger.Infof("admin endpoint on %s", cfg.AdminAddr)
	}

	return server.New(cfg, registry).Serve()
}
