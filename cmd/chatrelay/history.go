package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aixgo-dev/chatrelay/pkg/config"
	"github.com/aixgo-dev/chatrelay/pkg/session"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		asJSON bool
		name   string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation for a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			return printHistory(cmd.Context(), cfg, name, asJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw stored JSON")
	cmd.Flags().StringVar(&name, "session", "", "session name (default from config)")
	return cmd
}

func printHistory(ctx context.Context, cfg *config.Config, name string, asJSON bool, w io.Writer) error {
	backend, err := session.NewBackend(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("open %s history store: %w", cfg.Session.Store, err)
	}
	defer backend.Close()

	msgs, err := backend.LoadHistory(ctx, cfg.Session.KeyFor(name))
	if err != nil {
		return err
	}

	if asJSON {
		if msgs == nil {
			msgs = []session.Message{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(msgs)
	}

	if len(msgs) == 0 {
		_, err := fmt.Fprintln(w, "(no history)")
		return err
	}
	for _, m := range msgs {
		if _, err := fmt.Fprintf(w, "%s: %s\n", m.Role, m.Content); err != nil {
			return err
		}
	}
	return nil
}
