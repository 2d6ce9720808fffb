package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommandConfigFlag(t *testing.T) {
	cmd := newRootCommand("1.0.0", "abc123", "2026-01-01")

	flag := cmd.PersistentFlags().Lookup("config")
	if flag == nil {
		t.Fatal("missing --config flag")
	}
	if flag.Shorthand != "c" {
		t.Errorf("shorthand = %q, want c", flag.Shorthand)
	}
	if flag.DefValue != "profile.yaml" {
		t.Errorf("default = %q", flag.DefValue)
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := newRootCommand("1.0.0", "abc123", "2026-01-01")

	have := map[string]bool{}
	for _, sub := range cmd.Commands() {
		have[sub.Name()] = true
	}
	for _, want := range []string{"validate", "plan", "apply", "status", "history", "version"} {
		if !have[want] {
			t.Errorf("missing %s subcommand", want)
		}
	}
}

func TestVersionCommandOutput(t *testing.T) {
	cmd := newVersionCommand("1.2.3", "deadbeef", "2026-01-01")
	var out bytes.Buffer
	cmd.SetOut(&out)

	cmd.Run(cmd, nil)

	got := out.String()
	for _, want := range []string{"furrow 1.2.3", "deadbeef", "2026-01-01"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
