package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/ledger"
)

var errUsage = errors.New("invalid arguments")

// playCommand runs one daemon-backed command
type playCommand func(ctx context.Context, c *client, w io.Writer, args []string) error

var playCommands = map[string]playCommand{
	"levels":   cmdLevels,
	"tasks":    cmdTasks,
	"submit":   cmdSubmit,
	"stats":    cmdStats,
	"verify":   cmdVerify,
	"attempts": cmdAttempts,
	"progress": cmdProgress,
	"level":    cmdLevel,
}

func cmdLevels(ctx context.Context, c *client, w io.Writer, _ []string) error {
	levels, err := c.levels(ctx)
	if err != nil {
		return err
	}
	if len(levels) == 0 {
		fmt.Fprintln(w, "No levels available.")
		return nil
	}
	for _, l := range levels {
		fmt.Fprintf(w, "%2d. %-16s %s\n", l.Ordering, l.ID, l.Title)
	}
	return nil
}

func cmdTasks(ctx context.Context, c *client, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: radquest tasks <level>", errUsage)
	}
	tasks, err := c.tasks(ctx, args[0])
	if err != nil {
		return err
	}
	for _, t := range tasks {
		fmt.Fprintf(w, "[%s] %s\n", t.ID, t.Prompt)
		switch t.Kind {
		case domain.TaskKindMultipleChoice:
			for _, o := range t.Options {
				fmt.Fprintf(w, "    %-28s %s (%d)\n", o.ID, o.Text, o.Cost)
			}
		case domain.TaskKindFreeText:
			fmt.Fprintf(w, "    free text, up to %d WP\n", t.MaxPoints)
		}
	}
	return nil
}

func cmdSubmit(ctx context.Context, c *client, w io.Writer, args []string) error {
	var req ledger.SubmitRequest
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&req.PlayerID, "player", "", "player id")
	fs.StringVar(&req.LevelID, "level", "", "level id")
	fs.StringVar(&req.TaskID, "task", "", "task id")
	fs.StringVar(&req.OptionID, "option", "", "chosen option (multiple choice)")
	fs.StringVar(&req.AnswerText, "answer", "", "answer text (free text)")
	fs.StringVar(&req.Reasoning, "reason", "", "reasoning for the choice")
	fs.StringVar(&req.SubmissionID, "id", "", "submission id for safe retries")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if req.PlayerID == "" || req.LevelID == "" || req.TaskID == "" {
		return fmt.Errorf("%w: -player, -level and -task are required", errUsage)
	}

	res, err := c.submit(ctx, req)
	if err != nil {
		return err
	}

	if res.Replayed {
		fmt.Fprintln(w, "Already submitted, showing the recorded result.")
	}
	fmt.Fprintf(w, "Points:    +%d WP\n", res.PointsAwarded)
	fmt.Fprintf(w, "Dose:      +%.2f mSv\n", res.DoseReceived)
	if v := res.Verdict; v != nil {
		fmt.Fprintf(w, "Judge:     %d/10 %s\n", v.Score, v.Summary)
	}
	fmt.Fprintf(w, "Total:     %d WP, %.2f mSv\n", res.Stats.KnowledgePoints, res.Stats.Dose)
	return nil
}

func cmdStats(ctx context.Context, c *client, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: radquest stats <player>", errUsage)
	}
	st, err := c.stats(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Player:    %s\n", st.PlayerID)
	fmt.Fprintf(w, "Knowledge: %d WP\n", st.KnowledgePoints)
	fmt.Fprintf(w, "Dose:      %.2f mSv %s\n", st.Dose, renderDoseBar(st.Dose, 20))
	fmt.Fprintf(w, "Attempts:  %d\n", st.Attempts)
	return nil
}

func cmdVerify(ctx context.Context, c *client, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: radquest verify <player>", errUsage)
	}
	v, err := c.verify(ctx, args[0])
	if err != nil {
		return err
	}

	if v.Consistent {
		fmt.Fprintln(w, "✓ stats match the attempt history")
		return nil
	}
	fmt.Fprintln(w, "✗ stats drift from the attempt history")
	fmt.Fprintf(w, "  points:   %+d\n", v.Report.PointsDiff)
	fmt.Fprintf(w, "  dose:     %+.4f mSv\n", v.Report.DoseDiff)
	fmt.Fprintf(w, "  attempts: %+d\n", v.Report.AttemptsDiff)
	return nil
}

func cmdAttempts(ctx context.Context, c *client, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("attempts", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "maximum attempts to show")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: usage: radquest attempts [-limit n] <player>", errUsage)
	}

	list, err := c.attempts(ctx, fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No attempts yet.")
		return nil
	}
	for _, a := range list {
		judged := ""
		if a.Verdict != nil {
			judged = fmt.Sprintf(" judge %d/10", a.Verdict.Score)
		}
		fmt.Fprintf(w, "%s  %-14s %-20s %+3d WP %5.2f mSv%s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04"), a.LevelID, a.TaskID, a.Points, a.Dose, judged)
	}
	return nil
}

func cmdProgress(ctx context.Context, c *client, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: radquest progress <player>", errUsage)
	}
	list, err := c.progress(ctx, args[0])
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No levels started.")
		return nil
	}
	for _, p := range list {
		mark := "…"
		if p.Completed() {
			mark = "✓"
		}
		fmt.Fprintf(w, "%s %-16s %s\n", mark, p.LevelID, p.State)
	}
	return nil
}

func cmdLevel(ctx context.Context, c *client, w io.Writer, args []string) error {
	if len(args) != 3 || (args[0] != "start" && args[0] != "complete") {
		return fmt.Errorf("%w: usage: radquest level start|complete <player> <level>", errUsage)
	}
	p, err := c.level(ctx, args[1], args[2], args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s\n", p.LevelID, p.State)
	return nil
}

// renderDoseBar shows the dose against the 20 mSv yearly limit for
// occupationally exposed persons
func renderDoseBar(dose float64, width int) string {
	const limit = 20.0
	filled := int(dose / limit * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
