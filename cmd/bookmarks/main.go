package main

import (
	"bookmark-manager/internal/config"
	"bookmark-manager/internal/logging"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	v       = config.NewViper()
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "bookmarks",
		Short:         "Personal bookmarks, synced across sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: <data-dir>/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")
	flags.String("data-dir", "", "directory for the database, session and pid file")
	flags.String("mode", "", "local (embedded database) or remote (server)")
	flags.String("server", "", "server URL for remote mode")
	flags.String("email", "", "identity used in local mode")
	flags.String("log-file", "", "write logs to this file with rotation")
	bindFlags(v, rootCmd, map[string]string{
		config.KeyDataDir:   "data-dir",
		config.KeyMode:      "mode",
		config.KeyServerURL: "server",
		config.KeyEmail:     "email",
		config.KeyLogFile:   "log-file",
	})

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(removeCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(watchCmd())

	// Interrupts cancel the command context; serve and watch wait on it
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bindFlags lets flags override config file and environment values.
// Flags that are left unset keep their lower-precedence value.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		if flag != nil {
			v.BindPFlag(key, flag)
		}
	}
}

// app carries the loaded configuration for one command invocation
type app struct {
	cfg     *config.Config
	closers []io.Closer
}

func loadApp() (*app, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	closer, err := logging.Init(logging.Config{File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &app{cfg: cfg, closers: []io.Closer{closer}}, nil
}

// logger returns a component logger. Interactive commands stay quiet unless
// --verbose or a log file is set.
func (a *app) logger(component string) *log.Logger {
	if verbose || a.cfg.LogFile != "" {
		return logging.New(component)
	}
	return logging.Discard()
}

func (a *app) onClose(c io.Closer) {
	a.closers = append(a.closers, c)
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
