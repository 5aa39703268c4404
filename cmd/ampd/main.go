// Command ampd runs the IDE bridge standalone against an in-memory editor
// stub, for manual exercising and smoke-testing the protocol without a
// real editor attached.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wrath-codes/amp-extras/internal/config"
	"github.com/wrath-codes/amp-extras/internal/host"
	"github.com/wrath-codes/amp-extras/internal/logger"
	"github.com/wrath-codes/amp-extras/internal/server"
)

func main() {
	var addrFlag string

	root := &cobra.Command{
		Use:   "ampd",
		Short: "amp-extras IDE bridge — standalone exerciser",
		Long:  "Runs the loopback WebSocket bridge against an in-memory editor stub, for testing the amp IDE protocol without a real editor attached.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(addrFlag)
		},
	}
	root.Flags().StringVar(&addrFlag, "addr", "", "listen address (default 127.0.0.1:0, an OS-assigned port)")
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(addr string) error {
	dir, err := config.UserDir()
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	settings, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := logger.Init(settings.LogLevel, settings.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	srv := server.New(server.Config{
		Addr:             addr,
		IDEName:          settings.IDEName,
		WorkspaceFolders: []string{wd},
		PluginDirectory:  dir,
	}, host.NewStub())

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	logger.Info("ampd listening", "port", srv.Port())
	fmt.Printf("ampd listening on 127.0.0.1:%d\n", srv.Port())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopSettings := make(chan struct{})
	defer close(stopSettings)
	if updates, err := config.Watch(dir, stopSettings); err == nil {
		go func() {
			for s := range updates {
				logger.Info("settings reloaded", "log_level", s.LogLevel)
			}
		}()
	}

	<-ctx.Done()
	fmt.Println("shutting down...")
	return srv.Stop()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bridge protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("amp-extras ide bridge 0.1.0")
			return nil
		},
	}
}
