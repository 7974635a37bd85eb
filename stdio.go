package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/codecast/logging"
	"github.com/wricardo/codecast/transport/mcp"
	"go.uber.org/zap"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:    "mcp",
		Aliases: []string{"stdio-mcp", "mcp-stdio"},
		Usage:   "run an MCP stdio server against a registry, starting an internal one if none is reachable",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Value:   "http://localhost:8080",
				Usage:   "base URL of a running registry",
				Sources: cli.EnvVars("CODECAST_API"),
			},
			&cli.StringFlag{
				Name:    "templates",
				Usage:   "template directory for the internal registry",
				Sources: cli.EnvVars("CODECAST_TEMPLATES"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			// stdout carries the MCP protocol; zap writes to stderr.
			log := logging.New(cmd.Bool("debug"))
			defer log.Sync()

			baseURL, err := resolveAPI(ctx, cmd.String("api"), cmd.String("templates"), log)
			if err != nil {
				return err
			}

			log.Infof("MCP stdio server ready (using %s)", baseURL)
			if err := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer()); err != nil {
				return fmt.Errorf("MCP stdio server error: %w", err)
			}
			return nil
		},
	}
}

// resolveAPI returns externalURL when a registry answers there. Otherwise it
// starts an internal registry on a random loopback port, bound to ctx, and
// returns its URL.
func resolveAPI(ctx context.Context, externalURL, templatesDir string, log *zap.SugaredLogger) (string, error) {
	log = logging.OrNop(log)
	externalURL = strings.TrimRight(externalURL, "/")
	log.Infof("Checking for external registry at %s...", externalURL)

	if registryReachable(ctx, externalURL) {
		log.Infof("External registry found at %s, using it for MCP", externalURL)
		return externalURL, nil
	}

	log.Info("No external registry found, starting internal HTTP server")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to get available port: %w", err)
	}

	baseURL := "http://" + listener.Addr().String()
	handler, err := newRegistry(ctx, templatesDir, baseURL, log)
	if err != nil {
		listener.Close()
		return "", err
	}

	httpServer := &http.Server{Handler: handler}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Internal HTTP server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	log.Infof("Internal registry listening on %s", baseURL)
	return baseURL, nil
}

func registryReachable(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
