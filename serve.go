package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/codecast/api"
	"github.com/wricardo/codecast/collab/service"
	"github.com/wricardo/codecast/collab/templates"
	"github.com/wricardo/codecast/logging"
	"github.com/wricardo/codecast/transport/mcp"
	"github.com/wricardo/codecast/transport/websocket"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"server", "http"},
		Usage:   "run the room registry with the REST API, WebSocket, and MCP endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Value:   "localhost",
				Usage:   "HTTP server host",
				Sources: cli.EnvVars("CODECAST_HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "HTTP server port",
				Sources: cli.EnvVars("PORT", "CODECAST_PORT"),
			},
			&cli.StringFlag{
				Name:    "templates",
				Usage:   "directory of <language>.json starter documents (built-in only when empty)",
				Sources: cli.EnvVars("CODECAST_TEMPLATES"),
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "expose the server through an ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logging.New(cmd.Bool("debug"))
			defer log.Sync()

			return runHTTPServer(ctx, serveConfig{
				Addr:         fmt.Sprintf("%s:%d", cmd.String("host"), cmd.Int("port")),
				TemplatesDir: cmd.String("templates"),
				Ngrok:        cmd.Bool("ngrok"),
				NgrokAuth:    cmd.String("ngrok-auth"),
				NgrokDomain:  cmd.String("ngrok-domain"),
			}, log)
		},
	}
}

type serveConfig struct {
	Addr         string
	TemplatesDir string
	Ngrok        bool
	NgrokAuth    string
	NgrokDomain  string
}

// newRegistry starts a hub bound to ctx and builds the HTTP handler around
// it: the REST API and WebSocket at the root and MCP at /mcp. baseURL is
// where the MCP tools reach the REST API.
func newRegistry(ctx context.Context, templatesDir, baseURL string, log *zap.SugaredLogger) (http.Handler, error) {
	log = logging.OrNop(log)

	tmpl, err := templates.NewManager(templatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}

	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hangup)
		reloadTemplates(ctx, tmpl, hangup, log)
	}()

	hub := websocket.NewHub(log.Named("registry"))
	go hub.Run(ctx)

	roomService := service.NewRoomService(hub, tmpl)
	apiServer := api.NewServer(roomService, hub, log.Named("api"))

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.Handle("/mcp", mcpHandler(mcp.NewClient(baseURL)))
	return mainRouter, nil
}

// reloadTemplates clears the template cache each time signals fires, so
// template files edited on disk are picked up without a restart.
func reloadTemplates(ctx context.Context, tmpl *templates.Manager, signals <-chan os.Signal, log *zap.SugaredLogger) {
	log = logging.OrNop(log)
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			tmpl.Refresh()
			log.Info("Template cache cleared")
		}
	}
}

// mcpHandler answers MCP JSON-RPC messages posted over HTTP.
func mcpHandler(mcpClient *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// runHTTPServer serves the registry until ctx is cancelled, then shuts down
// gracefully. If ngrok is enabled it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, cfg serveConfig, log *zap.SugaredLogger) error {
	log = logging.OrNop(log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler, err := newRegistry(ctx, cfg.TemplatesDir, "http://"+cfg.Addr, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		log.Infof("HTTP server listening on %s", cfg.Addr)
		log.Infof("REST API: http://%s/api/rooms", cfg.Addr)
		log.Infof("WebSocket: ws://%s/ws", cfg.Addr)
		log.Infof("MCP endpoint: http://%s/mcp", cfg.Addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server failed: %w", err)
			cancel()
		}
	}()

	if cfg.Ngrok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cfg, handler, log)
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}

	wg.Wait()
	log.Info("Server stopped")

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// runNgrok serves handler through an ngrok tunnel until ctx is cancelled.
func runNgrok(ctx context.Context, cfg serveConfig, handler http.Handler, log *zap.SugaredLogger) {
	if cfg.NgrokAuth == "" {
		log.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	log.Info("Starting ngrok tunnel...")

	var tunnel ngrokConfig.Tunnel
	if cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.NgrokDomain))
		log.Infof("Using custom ngrok domain: %s", cfg.NgrokDomain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.NgrokAuth))
	if err != nil {
		log.Errorf("Failed to start ngrok tunnel: %v", err)
		return
	}

	ngrokURL := tun.URL()
	log.Infof("Ngrok tunnel established: %s", ngrokURL)
	log.Infof("  REST API (ngrok): %s/api/rooms", ngrokURL)
	log.Infof("  WebSocket (ngrok): %s/ws", ngrokURL)
	log.Infof("  MCP endpoint (ngrok): %s/mcp", ngrokURL)

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warnf("Failed to close ngrok tunnel: %v", err)
		}
	}()

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Errorf("Ngrok server error: %v", err)
	}
	log.Info("Ngrok tunnel closed")
}
