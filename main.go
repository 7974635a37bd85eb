// Command codecast runs the collaborative room registry and a terminal
// participant for it.
//
// It supports three commands:
//  1. "serve" (default) – runs the room registry behind an HTTP server exposing the REST API, WebSocket, and an /mcp endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal registry if none is reachable
//  3. "join" – joins a room from the terminal, editing and chatting through stdin
//
// Flags control host/port, template directory, debug logging, the local
// edit cache, and optional ngrok tunneling for easy external access during
// development. A .env file in the working directory is loaded first.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/codecast/logging"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "codecast"
)

// main loads .env, builds the command tree, and runs the selected command.
func main() {
	// Load .env file if it exists (ignore error if not found)
	envErr := godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(envErr).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newApp builds the codecast command tree. envErr is the result of loading
// .env and is reported once a logger exists.
func newApp(envErr error) *cli.Command {
	return &cli.Command{
		Name:           AppName,
		Usage:          "real-time collaborative rooms: one shared document and one chat per room",
		Version:        Version,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("CODECAST_DEBUG"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			log := logging.New(cmd.Bool("debug"))
			switch {
			case envErr == nil:
				log.Debug("Loaded environment variables from .env file")
			case !os.IsNotExist(envErr):
				log.Warnf("Error loading .env file: %v", envErr)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			joinCommand(),
		},
	}
}
