package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skalene/canopy/internal/sink"
	"github.com/skalene/canopy/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [mission-id]",
	Short: "Show recent missions",
	Long: `Show recent missions from the project mission store.

Without arguments, lists the most recent missions. With a mission ID,
shows that mission's tasks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Maximum number of missions to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	s, err := sink.Open(sink.ProjectPath(cwd))
	if err != nil {
		return fmt.Errorf("open mission store: %w", err)
	}
	defer s.Close()

	if len(args) == 1 {
		return printMissionTasks(s, args[0])
	}
	return printMissions(s)
}

func printMissions(s *sink.SQLiteSink) error {
	missions, err := s.Missions(statusLimit)
	if err != nil {
		return err
	}
	if len(missions) == 0 {
		fmt.Println("no missions recorded")
		return nil
	}

	for _, m := range missions {
		statusColor(m.Status).Printf("%-10s", m.Status)
		name := m.Name
		if name == "" {
			name = m.Objective
		}
		fmt.Printf(" %s  %s  %s\n", m.ID, m.StartedAt.Local().Format(time.DateTime), name)
	}
	return nil
}

func printMissionTasks(s *sink.SQLiteSink, missionID string) error {
	tasks, err := s.TasksForMission(missionID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Printf("no tasks recorded for mission %s\n", missionID)
		return nil
	}

	for _, t := range tasks {
		statusColor(string(t.Status)).Printf("%-10s", t.Status)
		fmt.Printf(" %-12s %s", t.OwnerID, t.Objective)
		if d := t.Duration(); d > 0 {
			fmt.Printf(" (%s)", d.Round(time.Millisecond))
		}
		if t.Error != "" {
			fmt.Printf("  %s", t.Error)
		}
		fmt.Println()
	}
	return nil
}

func statusColor(status string) *color.Color {
	switch models.TaskStatus(status) {
	case models.TaskStatusCompleted:
		return color.New(color.FgGreen)
	case models.TaskStatusFailed:
		return color.New(color.FgRed)
	case models.TaskStatusCancelled:
		return color.New(color.FgYellow)
	case models.TaskStatusRunning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}
