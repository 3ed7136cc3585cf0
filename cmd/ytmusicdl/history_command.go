package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ytmusicdl/internal/api"
	"ytmusicdl/internal/ledger"
)

const historyTimeFormat = "2006-01-02 15:04:05"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		sessionID   string
		kinds       []string
		limit       int
		remote      bool
		managerFlag string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent job and session events from the ledger",
		Long: "Show recent job and session events from the ledger.\n\n" +
			"By default the ledger database named in the config is read directly.\n" +
			"Use --remote to ask a running manager through its admin API instead.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			var events []ledger.Event
			if remote {
				client, address, err := ctx.apiClient(managerFlag)
				if err != nil {
					return err
				}
				resp, err := client.History(cmd.Context(), api.HistoryQuery{SessionID: sessionID, Kinds: kinds, Limit: limit})
				if err != nil {
					return wrapAPIError(err, address)
				}
				events = resp.Events
			} else {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				if !cfg.Ledger.Enabled {
					return errors.New("ledger is disabled in the config; enable [ledger] or use --remote")
				}
				store, err := ledger.Open(cfg)
				if err != nil {
					return fmt.Errorf("open ledger: %w", err)
				}
				defer store.Close()
				filter := ledger.Filter{SessionID: strings.TrimSpace(sessionID), Limit: limit}
				for _, kind := range kinds {
					if kind = strings.TrimSpace(kind); kind != "" {
						filter.Kinds = append(filter.Kinds, ledger.Kind(kind))
					}
				}
				events, err = store.Recent(cmd.Context(), filter)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				if events == nil {
					events = []ledger.Event{}
				}
				return printJSON(cmd, events)
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable("", historyColumns, historyRows(events)))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Only events of this session")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only events of these kinds (repeatable, e.g. job_failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of events")
	cmd.Flags().BoolVar(&remote, "remote", false, "Query the manager admin API instead of the local ledger file")
	cmd.Flags().StringVar(&managerFlag, "manager", "", "Manager address for --remote (defaults to manager.bind)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print events as JSON")
	return cmd
}

var historyColumns = []column{
	idColumn("Time"), idColumn("Event"), idColumn("Session"), idColumn("Job"),
	idColumn("Video"), textColumn("Title"), reasonColumn("Detail"),
}

func historyRows(events []ledger.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.CreatedAt.In(time.Local).Format(historyTimeFormat),
			string(ev.Kind),
			shortID(ev.SessionID),
			shortID(ev.JobID),
			ev.VideoID,
			ev.Title,
			ev.Detail,
		})
	}
	return rows
}
