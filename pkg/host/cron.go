package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/furrowlabs/furrow/pkg/runner"
)

// CrontabScheduler implements CronScheduler over the crontab CLI. Entries
// are tagged with a trailing marker comment so re-runs replace rather than
// accumulate.
type CrontabScheduler struct {
	run runner.Runner
}

// NewCrontabScheduler creates a crontab-backed scheduler.
func NewCrontabScheduler(run runner.Runner) *CrontabScheduler {
	return &CrontabScheduler{run: run}
}

// HasEntry implements CronScheduler.
func (c *CrontabScheduler) HasEntry(ctx context.Context, user, marker string) (bool, error) {
	table, err := c.readTable(ctx, user)
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(table, "\n") {
		if strings.Contains(line, markerTag(marker)) {
			return true, nil
		}
	}
	return false, nil
}

// Install implements CronScheduler. The whole table is rewritten: the
// marker-tagged line is replaced in place or appended, everything else is
// preserved verbatim.
func (c *CrontabScheduler) Install(ctx context.Context, user, marker, schedule, command string) error {
	table, err := c.readTable(ctx, user)
	if err != nil {
		return err
	}

	entry := fmt.Sprintf("%s %s %s", schedule, command, markerTag(marker))
	var lines []string
	replaced := false
	for _, line := range strings.Split(table, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, markerTag(marker)) {
			if !replaced {
				lines = append(lines, entry)
				replaced = true
			}
			continue
		}
		lines = append(lines, line)
	}
	if !replaced {
		lines = append(lines, entry)
	}

	res, err := c.run.Run(ctx, runner.Command{
		Name:  "crontab",
		Args:  []string{"-u", user, "-"},
		Stdin: strings.Join(lines, "\n") + "\n",
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("installing crontab for %s failed (exit %d): %s", user, res.ExitCode, res.StderrTail(256))
	}
	return nil
}

func (c *CrontabScheduler) readTable(ctx context.Context, user string) (string, error) {
	res, err := c.run.Run(ctx, runner.Command{
		Name: "crontab",
		Args: []string{"-u", user, "-l"},
	})
	if err != nil {
		return "", fmt.Errorf("reading crontab for %s: %w", user, err)
	}
	// crontab -l exits 1 with "no crontab for ..." when the table is empty.
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("crontab -l for %s failed (exit %d): %s", user, res.ExitCode, res.StderrTail(256))
	}
	return res.Stdout, nil
}

func markerTag(marker string) string {
	return "# furrow:" + marker
}
