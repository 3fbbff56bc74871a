// Command transcripts prints ticket transcripts from a saved snapshot
// without connecting to Discord.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/pflag"

	"modmail-bot/internal/pager"
	"modmail-bot/internal/store"
	"modmail-bot/internal/ticket"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "transcripts:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("transcripts", pflag.ContinueOnError)
	kind := fs.String("store", string(store.KindFile), "snapshot backend: file or sqlite")
	path := fs.String("path", "tickets.json", "snapshot file or database path")
	user := fs.String("user", "", "only print this user's tickets")
	chunk := fs.Int("chunk", pager.DefaultChunk, "entries per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snapshots, err := store.Open(store.Kind(*kind), *path)
	if err != nil {
		return err
	}
	if closer, ok := snapshots.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	snap, err := snapshots.Load(context.Background())
	if err != nil {
		return err
	}
	registry := ticket.NewRegistry(nil)
	registry.Restore(snap)

	users := registry.Users()
	if *user != "" {
		users = []string{*user}
	}
	sort.Strings(users)

	printed := 0
	for _, u := range users {
		for _, page := range pager.Build(u, registry.Tickets(u), *chunk) {
			if printed > 0 {
				fmt.Fprintln(out, "----")
			}
			fmt.Fprintln(out, pager.Render(page))
			printed++
		}
	}
	if printed == 0 {
		fmt.Fprintln(out, "no tickets")
	}
	return nil
}
