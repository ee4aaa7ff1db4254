// portal is a terminal client for the ShifaLink booking platform: REST
// operations for appointments, doctors, chats and payments, plus a listen
// mode that follows the realtime event stream.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/shifalink/portal-client/internal/config"
	"github.com/shifalink/portal-client/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	root := &cli.Command{
		Name:  "portal",
		Usage: "ShifaLink booking platform client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "token",
				Usage: "Bearer token from a previous login (defaults to PORTAL_TOKEN)",
			},
		},
		Commands: []*cli.Command{
			loginCommand(cfg, logger),
			appointmentsCommand(cfg, logger),
			doctorsCommand(cfg, logger),
			chatsCommand(cfg, logger),
			payCommand(cfg, logger),
			listenCommand(cfg, logger),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Run(ctx, os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
