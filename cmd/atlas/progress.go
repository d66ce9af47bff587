package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/castleatlas/atlas/internal/progress"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show and update learning progress",
	Args:  cobra.NoArgs,
	RunE:  runProgressShow,
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show overall progress, skills, streak and achievements",
	Args:  cobra.NoArgs,
	RunE:  runProgressShow,
}

var progressUpdateCmd = &cobra.Command{
	Use:     "update <skill> <percent>",
	Short:   "Set the completion of a skill",
	Example: `  atlas progress update heraldry 75`,
	Args:    cobra.ExactArgs(2),
	RunE:    runProgressUpdate,
}

var progressResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear locally held progress state",
	Args:  cobra.NoArgs,
	RunE:  runProgressReset,
}

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.AddCommand(progressShowCmd, progressUpdateCmd, progressResetCmd)
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	if err := c.Auth.EnsureAuthenticated(cmd.Context()); err != nil {
		return err
	}

	if err := c.Progress.Refresh(cmd.Context()); err != nil {
		return err
	}

	printProgress(c.Progress.State())
	return nil
}

func runProgressUpdate(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid percent %q: %w", args[1], err)
	}

	c, err := getClient()
	if err != nil {
		return err
	}

	if err := c.Auth.EnsureAuthenticated(cmd.Context()); err != nil {
		return err
	}

	if err := c.Progress.UpdateSkillProgress(cmd.Context(), args[0], value); err != nil {
		return err
	}

	printProgress(c.Progress.State())
	return nil
}

func runProgressReset(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	c.Progress.Reset()
	printProgress(c.Progress.State())
	return nil
}

func printProgress(s progress.State) {
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  true,
			"progress": s,
		})
		return
	}

	printField("Overall", fmt.Sprintf("%.1f%%", s.OverallProgress))
	printField("Streak", fmt.Sprintf("%d days", s.CurrentStreak))

	if len(s.SkillProgress) > 0 {
		ids := make([]string, 0, len(s.SkillProgress))
		for id := range s.SkillProgress {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		labelColor.Fprintln(stdout, "\nSkills")
		for _, id := range ids {
			fmt.Fprintf(stdout, "  %-16s %s %5.1f%%\n", id, progressBar(s.SkillProgress[id], 20), s.SkillProgress[id])
		}
	}

	if len(s.Achievements) > 0 {
		labelColor.Fprintln(stdout, "\nAchievements")
		for _, a := range s.Achievements {
			fmt.Fprintf(stdout, "  %s  %s\n", a.EarnedAt.Format("2006-01-02"), a.Title)
		}
	}
}

func progressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	bar := make([]rune, width)
	for i := range bar {
		if i < filled {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}
	return string(bar)
}
