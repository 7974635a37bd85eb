// Command inspect prints what a codecast local edit cache holds: one line per
// cached room with its size and last save time, or the full document of a
// single room. With --delete it drops one room's cached document.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/wricardo/codecast/collab/cache"
)

func main() {
	cmd := &cli.Command{
		Name:      "inspect",
		Usage:     "print the contents of a local edit cache",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Value: cache.KindFile,
				Usage: "cache kind: file or bolt",
			},
			&cli.StringFlag{
				Name:  "room",
				Usage: "print the full document of one room",
			},
			&cli.StringFlag{
				Name:  "delete",
				Usage: "remove the cached document of one room",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("cache path is required")
			}

			store, err := cache.Open(cmd.String("kind"), path)
			if err != nil {
				return err
			}
			defer store.Close()

			if room := cmd.String("delete"); room != "" {
				return deleteRoom(cmd.Writer, store, room)
			}
			if room := cmd.String("room"); room != "" {
				return printRoom(cmd.Writer, store, room)
			}
			return printSummary(cmd.Writer, store)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func printSummary(w io.Writer, store cache.Store) error {
	rooms, err := store.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}
	sort.Strings(rooms)

	fmt.Fprintf(w, "%d cached rooms\n", len(rooms))
	for _, room := range rooms {
		entry, err := store.Load(room)
		if err != nil {
			fmt.Fprintf(w, "  %s: %v\n", room, err)
			continue
		}
		fmt.Fprintf(w, "  %s  %d bytes  %d lines  saved %s  %q\n",
			room, len(entry.Content), lineCount(entry.Content),
			entry.UpdatedAt.Local().Format("2006-01-02 15:04:05"), preview(entry.Content, 40))
	}
	return nil
}

func printRoom(w io.Writer, store cache.Store, room string) error {
	entry, err := store.Load(room)
	if err != nil {
		return fmt.Errorf("room %s: %w", room, err)
	}
	fmt.Fprintf(w, "=== %s (saved %s) ===\n", entry.Room, entry.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(w, entry.Content)
	return nil
}

func deleteRoom(w io.Writer, store cache.Store, room string) error {
	if err := store.Delete(room); err != nil {
		return fmt.Errorf("room %s: %w", room, err)
	}
	fmt.Fprintf(w, "Deleted cached document for %s\n", room)
	return nil
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// preview returns the first line of s, cut to at most n runes.
func preview(s string, n int) string {
	line, _, cut := strings.Cut(s, "\n")
	r := []rune(line)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	if cut {
		return line + "..."
	}
	return line
}
