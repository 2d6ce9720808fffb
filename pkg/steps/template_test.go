package steps

import (
	"context"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"testing"

	"github.com/furrowlabs/furrow/pkg/engine"
)

func TestTemplateWriteConverges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.conf")
	data := struct{ Port int }{Port: 8069}

	step, err := NewTemplateWrite("conf", engine.PolicyFatal, path, 0o640, "", "port = {{.Port}}\n", data)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	got, err := step.Check(ctx)
	if err != nil || got != engine.StateNotSatisfied {
		t.Fatalf("Check() before Apply = %s, %v", got, err)
	}

	if err := step.Apply(ctx); err != nil {
		t.Fatalf("Apply() = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "port = 8069\n" {
		t.Errorf("content = %q", content)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}

	got, err = step.Check(ctx)
	if err != nil || got != engine.StateSatisfied {
		t.Fatalf("Check() after Apply = %s, %v", got, err)
	}
}

func TestTemplateWriteDetectsDrift(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.conf")
	step, err := NewTemplateWrite("conf", engine.PolicyFatal, path, 0o644, "", "port = 8069\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := os.WriteFile(path, []byte("port = 9999\n# hand edit\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, _ := step.Check(ctx)
	if got != engine.StateNotSatisfied {
		t.Fatalf("Check() with drifted content = %s", got)
	}

	// Apply overwrites; the hand edit is not merged.
	if err := step.Apply(ctx); err != nil {
		t.Fatal(err)
	}
	content, _ := os.ReadFile(path)
	if strings.Contains(string(content), "hand edit") {
		t.Errorf("apply merged instead of overwriting: %q", content)
	}
}

func TestTemplateWriteDetectsModeDrift(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.sh")
	step, err := NewTemplateWrite("script", engine.PolicyFatal, path, 0o750, "", "#!/bin/sh\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, _ := step.Check(ctx)
	if got != engine.StateNotSatisfied {
		t.Fatalf("Check() with wrong mode = %s", got)
	}

	if err := step.Apply(ctx); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o750 {
		t.Errorf("mode after Apply = %v", info.Mode().Perm())
	}
}

func TestTemplateWriteSatisfiedWithMatchingOwner(t *testing.T) {
	me, err := user.Current()
	if err != nil {
		t.Skip("current user unavailable")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "server.conf")
	step, err := NewTemplateWrite("conf", engine.PolicyFatal, path, 0o644, me.Username, "port = 8069\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("port = 8069\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := step.Check(context.Background())
	if err != nil || got != engine.StateSatisfied {
		t.Fatalf("Check() = %s, %v", got, err)
	}
}

func TestTemplateWriteDetectsOwnerDrift(t *testing.T) {
	other, err := user.Lookup("daemon")
	if err != nil {
		t.Skip("no daemon user on this host")
	}
	me, err := user.Current()
	if err != nil || me.Uid == other.Uid {
		t.Skip("cannot distinguish owners")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "server.conf")
	step, err := NewTemplateWrite("conf", engine.PolicyFatal, path, 0o644, other.Username, "port = 8069\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	// Content and mode match, but the file belongs to the invoking user
	// instead of the requested owner.
	if err := os.WriteFile(path, []byte("port = 8069\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := step.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != engine.StateNotSatisfied {
		t.Fatalf("Check() with wrong owner = %s", got)
	}
}

func TestTemplateWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.service")
	step, err := NewTemplateWrite("unit", engine.PolicyFatal, path, 0o644, "", "[Unit]\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := step.Apply(context.Background()); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "unit.service" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only the target", names)
	}
}

func TestTemplateWriteRejectsBadTemplate(t *testing.T) {
	_, err := NewTemplateWrite("bad", engine.PolicyFatal, "/tmp/x", 0o644, "", "{{.Oops", nil)
	if err == nil {
		t.Fatal("expected a parse error at construction")
	}
}

func TestTemplateWriteMissingFieldIsUnknown(t *testing.T) {
	dir := t.TempDir()
	step, err := NewTemplateWrite("conf", engine.PolicyFatal, filepath.Join(dir, "c"), 0o644, "", "{{.Missing}}", map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := step.Check(context.Background())
	if err == nil || got != engine.StateUnknown {
		t.Fatalf("Check() = %s, %v", got, err)
	}
}
