package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/argus-labs/deck-engine/pkg/engine"
	"github.com/argus-labs/deck-engine/pkg/engine/types"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show decks, arenas and match counts of a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, raw, err := fetchStatus(addr, timeout)
			if err != nil {
				return err
			}
			if asJSON {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return err
			}
			renderStatus(status)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:4040", "server base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON status")
	return cmd
}

func fetchStatus(addr string, timeout time.Duration) (engine.GlobalStatus, []byte, error) {
	var status engine.GlobalStatus

	agent := fiber.Get(strings.TrimRight(addr, "/") + "/status").Timeout(timeout)
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return status, nil, eris.Wrap(errs[0], "failed to reach server")
	}
	if code != fiber.StatusOK {
		return status, nil, eris.Errorf("server answered %d: %s", code, body)
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return status, nil, eris.Wrap(err, "failed to decode status")
	}
	return status, body, nil
}

func renderStatus(s engine.GlobalStatus) {
	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.AppendHeader(table.Row{"Processing", "Uptime", "Queued", "In flight", "Pending retries"})
	summary.AppendRow(table.Row{s.Processing, s.Uptime.Round(time.Second), s.Queued, s.InFlight, s.PendingRetries})
	summary.Render()

	decks := table.NewWriter()
	decks.SetOutputMirror(os.Stdout)
	decks.AppendHeader(table.Row{"Deck", "Arena", "Enabled", "Paused", "Max attempts", "Cards"})
	for _, d := range s.Decks {
		cards := "play"
		if !d.SingleHandler {
			cards = strings.Join(d.Cards, ", ")
		}
		decks.AppendRow(table.Row{d.Name, d.Arena.Name, d.Enabled, d.Paused, d.Retry.MaxAttempts, cards})
	}
	decks.Render()

	arenas := table.NewWriter()
	arenas.SetOutputMirror(os.Stdout)
	arenas.AppendHeader(table.Row{"Arena", "Limit", "Queued", "In flight", "Completed", "Failed", "Paused"})
	for _, a := range s.Arenas {
		arenas.AppendRow(table.Row{a.Name, a.ConcurrencyLimit, a.Queued, a.InFlight, a.Completed, a.Failed, a.Paused})
	}
	arenas.Render()

	matches := table.NewWriter()
	matches.SetOutputMirror(os.Stdout)
	matches.AppendHeader(table.Row{"State", "Matches"})
	for _, st := range types.AllMatchStates {
		if n := s.Matches[st]; n > 0 {
			matches.AppendRow(table.Row{st, n})
		}
	}
	matches.Render()
}
