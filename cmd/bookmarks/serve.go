package main

import (
	"bookmark-manager/internal/auth"
	"bookmark-manager/internal/config"
	"bookmark-manager/internal/feed"
	"bookmark-manager/internal/logging"
	"bookmark-manager/internal/server"
	"bookmark-manager/internal/storage"
	"bookmark-manager/internal/storage/sqlite"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bookmark server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg
			logger := logging.New("server")

			store, err := sqlite.New(storage.Config{DBPath: cfg.DBPath})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer store.Close()

			hub := feed.NewHub(logging.New("feed"))
			hubCtx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go hub.Run(hubCtx)
			store.RegisterHandler(hub)

			// Local-mode sessions may write the same database file
			watcher, err := sqlite.NewWatcher(cfg.DBPath, sqlite.WatcherConfig{
				OnChange: func() { hub.HandleExternalChange("") },
				Logger:   logging.New("sqlite"),
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(); err != nil {
				watcher.Close()
				return err
			}
			defer watcher.Stop()

			secret := cfg.JWTSecret
			if secret == "" {
				// Sessions will not survive a restart
				secret = uuid.NewString()
				logger.Printf("No jwt_secret configured, using a random one")
			}
			issuer, err := auth.NewIssuer(auth.Config{
				Secret:        secret,
				TTL:           cfg.TokenTTL,
				RefreshWindow: cfg.RefreshWindow,
			})
			if err != nil {
				return err
			}

			srv := server.New(store, hub, issuer, server.Config{
				Port:          cfg.Port,
				AllowDevLogin: cfg.AllowDevLogin,
				PIDPath:       cfg.PIDPath(),
				Logger:        logger,
			})
			if err := srv.Start(); err != nil {
				return err
			}
			logger.Printf("Database: %s", cfg.DBPath)
			if cfg.AllowDevLogin {
				logger.Printf("Development login enabled")
			}

			// Wait for interrupt signal
			<-cmd.Context().Done()

			logger.Println("Shutting down...")
			return srv.Stop()
		},
	}

	cmd.Flags().Int("port", 0, "port to listen on")
	cmd.Flags().Bool("allow-dev-login", false, "sign in any email without a password")
	bindFlags(v, cmd, map[string]string{
		config.KeyPort:          "port",
		config.KeyAllowDevLogin: "allow-dev-login",
	})
	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running bookmark server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			pid, err := server.StopRunning(a.cfg.PIDPath())
			if errors.Is(err, server.ErrNotRunning) {
				fmt.Println("Server is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Stopped server (pid %d)\n", pid)
			return nil
		},
	}
}
