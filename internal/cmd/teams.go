package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/planningpoker/internal/config"
	"github.com/Iron-Ham/planningpoker/internal/logging"
	"github.com/Iron-Ham/planningpoker/internal/poker"
	"github.com/Iron-Ham/planningpoker/internal/storage"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "Inspect persisted teams",
	Long: `Commands that read or clear the teams held in the configured storage.
They work on storage directly and do not need a running server.`,
}

var teamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted teams",
	RunE:  runTeamsList,
}

var teamsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every persisted team",
	Long: `Delete every persisted team from the configured storage.

Running servers keep their in-memory teams and write them back on the
next change.`,
	RunE: runTeamsPurge,
}

var purgeConfirmed bool

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stateStyles = map[poker.TeamState]lipgloss.Style{
		poker.StateInitial:            lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		poker.StateEstimateInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		poker.StateEstimateFinished:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		poker.StateEstimateCanceled:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

func init() {
	rootCmd.AddCommand(teamsCmd)
	teamsCmd.AddCommand(teamsListCmd)
	teamsCmd.AddCommand(teamsPurgeCmd)

	teamsPurgeCmd.Flags().BoolVarP(&purgeConfirmed, "yes", "y", false, "confirm deletion")
}

// withStorage opens the configured storage for a one-shot command.
func withStorage(fn func(ctx context.Context, s storage.Storage) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := openBackend(ctx, cfg, logging.NopLogger())
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(ctx, backend.storage)
}

// teamRow is one line of the teams list.
type teamRow struct {
	name         string
	state        poker.TeamState
	participants int
	lastActivity time.Time
}

func runTeamsList(cmd *cobra.Command, args []string) error {
	return withStorage(func(ctx context.Context, s storage.Storage) error {
		names, err := s.TeamNames(ctx)
		if err != nil {
			return fmt.Errorf("failed to list teams: %w", err)
		}

		rows := make([]teamRow, 0, len(names))
		for _, name := range names {
			team, err := s.LoadTeam(ctx, name)
			if err != nil || team == nil {
				continue
			}
			row := teamRow{name: team.Name(), state: team.State(), participants: len(team.Participants())}
			for _, p := range team.Participants() {
				if p.LastActivity().After(row.lastActivity) {
					row.lastActivity = p.LastActivity()
				}
			}
			rows = append(rows, row)
		}

		fmt.Fprint(cmd.OutOrStdout(), renderTeams(rows))
		return nil
	})
}

func renderTeams(rows []teamRow) string {
	if len(rows) == 0 {
		return mutedStyle.Render("No teams found.") + "\n"
	}

	nameWidth := len("TEAM")
	for _, r := range rows {
		nameWidth = max(nameWidth, lipgloss.Width(r.name))
	}
	col := func(s string, w int) string {
		return lipgloss.NewStyle().Width(w).Render(s)
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(col("TEAM", nameWidth+2) + col("STATE", 22) + col("PEOPLE", 8) + "LAST SEEN"))
	sb.WriteString("\n")
	for _, r := range rows {
		state := stateStyles[r.state].Render(col(string(r.state), 22))
		seen := "-"
		if !r.lastActivity.IsZero() {
			seen = r.lastActivity.Local().Format(time.DateTime)
		}
		sb.WriteString(col(r.name, nameWidth+2) + state + col(fmt.Sprint(r.participants), 8) + mutedStyle.Render(seen))
		sb.WriteString("\n")
	}
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%d team(s)", len(rows))))
	sb.WriteString("\n")
	return sb.String()
}

func runTeamsPurge(cmd *cobra.Command, args []string) error {
	if !purgeConfirmed {
		return fmt.Errorf("refusing to delete teams without --yes")
	}
	return withStorage(func(ctx context.Context, s storage.Storage) error {
		names, err := s.TeamNames(ctx)
		if err != nil {
			return fmt.Errorf("failed to list teams: %w", err)
		}
		if err := s.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to delete teams: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d team(s)\n", len(names))
		return nil
	})
}
