package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/codecast/collab/cache"
	"github.com/wricardo/codecast/collab/chat"
	"github.com/wricardo/codecast/collab/lifecycle"
	"github.com/wricardo/codecast/collab/notify"
	"github.com/wricardo/codecast/collab/templates"
	"github.com/wricardo/codecast/collab/transport"
	"github.com/wricardo/codecast/logging"
	"go.uber.org/zap"
)

func joinCommand() *cli.Command {
	return &cli.Command{
		Name:  "join",
		Usage: "join a room from the terminal",
		Description: `Commands read from stdin:
   /set <text>     replace the document (\n starts a new line)
   /append <text>  add a line to the end of the document
   /show           print the document
   /who            list participants
   /chat <text>    send a chat message (plain text does the same)
   /room           print the room token
   /leave          leave the room`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "ws://localhost:8080/ws",
				Usage:   "registry websocket URL",
				Sources: cli.EnvVars("CODECAST_SERVER"),
			},
			&cli.StringFlag{
				Name:  "room",
				Usage: "room token (a new one is generated when empty)",
			},
			&cli.StringFlag{
				Name:    "name",
				Usage:   "display name",
				Sources: cli.EnvVars("CODECAST_NAME"),
			},
			&cli.StringFlag{
				Name:    "cache",
				Value:   cache.KindFile,
				Usage:   "local edit cache: file, bolt or memory",
				Sources: cli.EnvVars("CODECAST_CACHE"),
			},
			&cli.StringFlag{
				Name:    "cache-path",
				Usage:   "cache directory (file) or database (bolt), defaults under the user cache dir",
				Sources: cli.EnvVars("CODECAST_CACHE_PATH"),
			},
			&cli.StringFlag{
				Name:  "language",
				Usage: "starter document language: " + strings.Join(templates.Languages, ", "),
			},
			&cli.StringFlag{
				Name:    "templates",
				Usage:   "directory of <language>.json starter documents",
				Sources: cli.EnvVars("CODECAST_TEMPLATES"),
			},
			&cli.IntFlag{
				Name:  "attempts",
				Value: transport.DefaultAttempts,
				Usage: "connection attempts before giving up",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: transport.DefaultTimeout,
				Usage: "time budget for one round of connection attempts",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logging.New(cmd.Bool("debug"))
			defer log.Sync()

			return runJoin(ctx, joinConfig{
				Server:       cmd.String("server"),
				Room:         cmd.String("room"),
				Name:         cmd.String("name"),
				CacheKind:    cmd.String("cache"),
				CachePath:    cmd.String("cache-path"),
				Language:     cmd.String("language"),
				TemplatesDir: cmd.String("templates"),
				Attempts:     int(cmd.Int("attempts")),
				Timeout:      cmd.Duration("timeout"),
			}, cmd.Root().Reader, cmd.Root().Writer, log)
		},
	}
}

type joinConfig struct {
	Server       string
	Room         string
	Name         string
	CacheKind    string
	CachePath    string
	Language     string
	TemplatesDir string
	Attempts     int
	Timeout      time.Duration
}

// defaultCachePath picks where a cache of kind lives when no path is given.
func defaultCachePath(kind string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	dir := filepath.Join(base, AppName)

	switch strings.ToLower(kind) {
	case cache.KindBolt:
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create cache directory: %w", err)
		}
		return filepath.Join(dir, "rooms.db"), nil
	default:
		return filepath.Join(dir, "rooms"), nil
	}
}

// runJoin enters a room and drives it from in until the user leaves, in is
// exhausted, ctx is cancelled or the connection is lost.
func runJoin(ctx context.Context, cfg joinConfig, in io.Reader, out io.Writer, log *zap.SugaredLogger) error {
	log = logging.OrNop(log)

	cachePath := cfg.CachePath
	if cachePath == "" && !strings.EqualFold(cfg.CacheKind, cache.KindMemory) {
		p, err := defaultCachePath(cfg.CacheKind)
		if err != nil {
			return err
		}
		cachePath = p
	}
	store, err := cache.Open(cfg.CacheKind, cachePath)
	if err != nil {
		return fmt.Errorf("failed to open edit cache: %w", err)
	}
	defer store.Close()

	tmpl, err := templates.NewManager(cfg.TemplatesDir)
	if err != nil {
		return fmt.Errorf("failed to create template manager: %w", err)
	}

	term := &terminal{out: out, loc: time.Local}

	room := cfg.Room
	if strings.TrimSpace(room) == "" && strings.TrimSpace(cfg.Name) != "" {
		room = uuid.NewString()
		term.printf("Created room %s, share it to invite others\n", room)
	}

	h, err := lifecycle.Enter(ctx, room, cfg.Name, lifecycle.Options{
		URL:             cfg.Server,
		Attempts:        cfg.Attempts,
		Timeout:         cfg.Timeout,
		DefaultDocument: tmpl.Content(cfg.Language),
		Cache:           store,
		Notifier:        notify.NewLogger(logging.NewPlain(term)),
		Logger:          log.Named("room"),
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrRedirect) {
			return fmt.Errorf("%w (set --name and --room)", err)
		}
		return err
	}

	term.h = h
	cancelChat := h.OnMessage(term.showMessage)
	defer cancelChat()
	cancelDoc := h.OnRemoteDocument(term.showDocumentChange)
	defer cancelDoc()

	term.printf("Joined room %s as %s. Type /help for commands.\n", h.Room(), h.DisplayName())
	return term.run(ctx, in)
}

// terminal presents one room handle on a line-oriented stream.
type terminal struct {
	h   *lifecycle.Handle
	loc *time.Location

	mu  sync.Mutex
	out io.Writer
}

func (t *terminal) printf(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// Write lets notices share the terminal's output lock.
func (t *terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Write(p)
}

func (t *terminal) showMessage(m chat.Message) {
	t.printf("%s %s: %s\n", m.DisplayTime(t.loc), m.Author, m.Body)
}

func (t *terminal) showDocumentChange(content string) {
	t.printf("* document updated (%d lines)\n", strings.Count(content, "\n")+1)
}

func (t *terminal) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-t.h.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return t.h.Leave()

		case <-t.h.Done():
			if err := t.h.Err(); errors.Is(err, lifecycle.ErrConnectionLost) {
				return err
			}
			return nil

		case line, ok := <-lines:
			if !ok {
				return t.h.Leave()
			}
			if t.exec(line) {
				return t.h.Leave()
			}
		}
	}
}

// exec runs one input line and reports whether the user asked to leave.
func (t *terminal) exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		t.sendChat(line)
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/leave", "/quit":
		return true

	case "/set":
		t.edit(func() error { return t.h.Edit(unescape(arg)) })

	case "/append":
		t.edit(func() error { return t.h.Append(unescape(arg) + "\n") })

	case "/show":
		t.printf("----- %s -----\n%s\n-----\n", t.h.Room(), t.h.Document())

	case "/who":
		participants := t.h.Roster()
		t.printf("%d in room:\n", len(participants))
		for _, p := range participants {
			marker := ""
			if p.ConnectionID == t.h.ConnectionID() {
				marker = " (you)"
			}
			t.printf("  %s%s\n", p.DisplayName, marker)
		}

	case "/chat":
		t.sendChat(arg)

	case "/room":
		t.printf("Room %s, connection %s\n", t.h.Room(), t.h.ConnectionID())

	case "/help":
		t.printf("/set <text>  /append <text>  /show  /who  /chat <text>  /room  /leave\n")

	default:
		t.printf("Unknown command %s, try /help\n", name)
	}
	return false
}

func (t *terminal) edit(fn func() error) {
	if err := fn(); err != nil {
		t.printf("Edit failed: %v\n", err)
	}
}

func (t *terminal) sendChat(body string) {
	err := t.h.SendChat(body)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		t.printf("Nothing to send\n")
	case err != nil:
		t.printf("Chat failed: %v\n", err)
	}
}

func unescape(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
