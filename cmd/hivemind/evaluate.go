package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hivemind/cmd/hivemind/ui"
	"hivemind/internal/channel"
	"hivemind/internal/specialist"
)

// evaluateCmd scores a task against every profile without running the hive
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [task]",
	Short: "Score a task against every specialist profile",
	Long: `Runs the keyword confidence tables of each configured specialist against
the given task text and prints what the hive would do with it: assign
directly, negotiate first, or decline. Nothing is posted anywhere; this is
a dry run of the evaluation stage only.

Example:
  hivemind evaluate "what's the weather in Boston"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hub := channel.NewHub()
	defer hub.Close()

	styles := ui.DefaultStyles()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s %q\n\n", styles.Bold.Render("Task:"), task)
	fmt.Fprintf(out, "%-14s %-12s %s\n",
		styles.Muted.Render("SPECIALIST"),
		styles.Muted.Render("CONFIDENCE"),
		styles.Muted.Render("WILLING"))

	bestName, bestConfidence := "", 0
	for _, p := range cfg.Specialists {
		sp, err := specialist.New(specialist.Options{
			Profile: p,
			Adapter: hub.Client(p.UserID, p.BotID),
			Channel: cfg.Coordination.Channel,
		})
		if err != nil {
			return err
		}
		willing, confidence := sp.Evaluate(task)

		mark := styles.Muted.Render("no")
		if willing {
			mark = styles.Success.Render("yes")
		}
		fmt.Fprintf(out, "%-14s %-12s %s\n", p.Name, fmt.Sprintf("%d%%", confidence), mark)

		if confidence > bestConfidence {
			bestName, bestConfidence = p.Name, confidence
		}
	}

	var verdict string
	switch {
	case bestConfidence >= cfg.Coordination.DiscussionThreshold:
		verdict = styles.Success.Render(fmt.Sprintf(
			"would assign %s directly at %d%% confidence", bestName, bestConfidence))
	case bestConfidence >= cfg.Coordination.MinConfidence:
		verdict = styles.Warning.Render(fmt.Sprintf(
			"would negotiate: %s leads at %d%%, below the %d%% discussion threshold",
			bestName, bestConfidence, cfg.Coordination.DiscussionThreshold))
	default:
		verdict = styles.Error.Render(fmt.Sprintf(
			"would decline: best report %d%% is under the %d%% minimum",
			bestConfidence, cfg.Coordination.MinConfidence))
	}
	fmt.Fprintf(out, "\n%s\n", verdict)
	return nil
}
