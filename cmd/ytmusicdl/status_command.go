package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ytmusicdl/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var managerFlag string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sessions, downloaders and jobs of a running manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, address, err := ctx.apiClient(managerFlag)
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return wrapAPIError(err, address)
			}
			if jsonOutput {
				return printJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			renderStatus(out, status, colorOutput(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&managerFlag, "manager", "", "Manager address (defaults to manager.bind)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw status payload")
	return cmd
}

func renderStatus(out io.Writer, status api.Status, colorize bool) {
	counts := status.Counts
	lines := sectionHeader("Manager", colorize)

	workerKind := healthOK
	switch {
	case counts.Workers == 0:
		workerKind = healthDown
	case counts.IdleWorkers == 0 && counts.Queued > 0:
		workerKind = healthDegraded
	}
	lines = append(lines,
		healthLine("Downloaders", workerKind, fmt.Sprintf("%d connected, %d idle", counts.Workers, counts.IdleWorkers), colorize),
		healthLine("Sessions", healthInfo, strconv.Itoa(counts.Sessions), colorize),
		healthLine("Jobs", healthInfo, fmt.Sprintf("%d total, %d queued", counts.Jobs, counts.Queued), colorize),
	)
	fmt.Fprintln(out, strings.Join(lines, "\n"))

	if len(status.Workers) > 0 {
		rows := make([][]string, 0, len(status.Workers))
		for _, w := range status.Workers {
			current := "idle"
			if w.CurrentDownload != "" {
				current = shortID(w.CurrentDownload)
			}
			rows = append(rows, []string{w.Name, w.ContactURL, current, yesNo(w.Rejecting)})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable("Downloaders", []column{idColumn("Name"), textColumn("Contact"), idColumn("Job"), idColumn("Rejecting")}, rows))
	}

	if len(status.Sessions) > 0 {
		rows := make([][]string, 0, len(status.Sessions))
		for _, s := range status.Sessions {
			rows = append(rows, []string{
				shortID(s.ID),
				s.State,
				s.Packaging,
				strconv.Itoa(s.Jobs),
				strconv.Itoa(s.UnfinishedJobs),
				yesNo(s.Connected),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable("Sessions", []column{
			idColumn("Session"), idColumn("State"), idColumn("Packaging"),
			countColumn("Jobs"), countColumn("Open"), idColumn("Connected"),
		}, rows))
	}

	if len(status.Jobs) > 0 {
		rows := make([][]string, 0, len(status.Jobs))
		for _, j := range status.Jobs {
			rows = append(rows, []string{shortID(j.ID), shortID(j.SessionID), j.VideoID, j.Title, jobState(j)})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable("Jobs", []column{idColumn("Job"), idColumn("Session"), idColumn("Video"), textColumn("Title"), idColumn("State")}, rows))
	}
}

func jobState(job api.JobSummary) string {
	switch {
	case job.Finished:
		return "finished"
	case job.AssignedWorker != "":
		return "downloading"
	case job.PendingDownload:
		return "starting"
	case job.Paused:
		return "paused"
	case job.QueuePosition != nil:
		return fmt.Sprintf("queued #%d", *job.QueuePosition+1)
	default:
		return "waiting"
	}
}
