package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/maxxfly/trailerfin/internal/config"
	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/state"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newStateCommand() *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit persisted trailer state",
	}

	stateCmd.AddCommand(newStateListCommand())
	stateCmd.AddCommand(newStateRemoveCommand())

	return stateCmd
}

// openStores loads both persisted stores from the configured data directory
func openStores() (*config.Config, *state.ExpirationStore, *state.IgnoreStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	fs := afero.NewOsFs()
	expirations, err := state.NewExpirationStore(fs, cfg.ExpirationFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load expiration store: %w", err)
	}
	ignores, err := state.NewIgnoreStore(fs, cfg.IgnoreFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load ignore store: %w", err)
	}

	return cfg, expirations, ignores, nil
}

func newStateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trailer records, ignored titles and the library index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, expirations, ignores, err := openStores()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			records := expirations.All()
			keys := make([]string, 0, len(records))
			for key := range records {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			fmt.Fprintf(out, "Trailer records (%d):\n", len(records))
			for _, key := range keys {
				record := records[key]
				expiry := "never"
				if record.ExpiresAt != nil {
					expiry = record.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "  %s  source=%s  language=%s  expires=%s\n", key, record.Source, record.Language, expiry)
			}

			entries := ignores.All()
			keys = keys[:0]
			for key := range entries {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			fmt.Fprintf(out, "Ignored titles (%d):\n", len(entries))
			for _, key := range keys {
				entry := entries[key]
				fmt.Fprintf(out, "  %s  reason=%q  last_checked=%s\n", key, entry.Reason, entry.LastChecked.Format(time.RFC3339))
			}

			printIndex(out, cfg.DatabaseFile)
			return nil
		},
	}
}

// printIndex appends the library index section. The index is derived data
// that may not exist yet, and a running daemon holds its file lock; neither
// case fails the listing.
func printIndex(out io.Writer, path string) {
	exists, err := afero.Exists(afero.NewOsFs(), path)
	if err != nil || !exists {
		return
	}

	db, err := models.NewDatabase(path)
	if err != nil {
		fmt.Fprintf(out, "Library index unavailable: %v\n", err)
		return
	}
	defer db.Close()

	items, err := db.GetAllItems()
	if err != nil {
		fmt.Fprintf(out, "Library index unavailable: %v\n", err)
		return
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	fmt.Fprintf(out, "Library index (%d):\n", len(items))
	for _, item := range items {
		fmt.Fprintf(out, "  %s  state=%s  last_pass=%s", item.Key, item.State, item.LastPass.Format(time.RFC3339))
		if item.LastError != "" {
			fmt.Fprintf(out, "  error=%q", item.LastError)
		}
		fmt.Fprintln(out)
	}
}

func newStateRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <imdb-id>",
		Short: "Forget a trailer record or ignore entry so the next pass re-resolves it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			_, expirations, ignores, err := openStores()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			removed := false
			if _, ok := expirations.Get(key); ok {
				if err := expirations.Delete(key); err != nil {
					return fmt.Errorf("failed to remove trailer record: %w", err)
				}
				fmt.Fprintf(out, "Removed trailer record for %s\n", key)
				removed = true
			}
			if ignores.Contains(key) {
				if err := ignores.Remove(key); err != nil {
					return fmt.Errorf("failed to remove ignore entry: %w", err)
				}
				fmt.Fprintf(out, "Removed ignore entry for %s\n", key)
				removed = true
			}
			if !removed {
				fmt.Fprintf(out, "No state found for %s\n", key)
			}

			return nil
		},
	}
}
