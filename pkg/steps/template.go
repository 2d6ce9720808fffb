package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"text/template"

	"github.com/furrowlabs/furrow/pkg/engine"
)

// TemplateWrite renders a template and ensures the target file holds exactly
// the rendered content with the requested mode. Apply writes the whole file
// through a temp-file rename, so readers never observe a partial write.
type TemplateWrite struct {
	base
	path  string
	mode  os.FileMode
	owner string
	tmpl  *template.Template
	data  any
}

// NewTemplateWrite creates a file templating step. owner may be empty to
// leave ownership with the invoking user. Template parse errors surface at
// plan build time, not mid-run.
func NewTemplateWrite(name string, policy engine.FailurePolicy, path string, mode os.FileMode, owner, text string, data any, requires ...string) (*TemplateWrite, error) {
	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template for %s: %w", path, err)
	}
	return &TemplateWrite{
		base:  newBase(name, policy, requires...),
		path:  path,
		mode:  mode,
		owner: owner,
		tmpl:  tmpl,
		data:  data,
	}, nil
}

// Path returns the target file path.
func (s *TemplateWrite) Path() string { return s.path }

// Render produces the target file content.
func (s *TemplateWrite) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, s.data); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", s.path, err)
	}
	return buf.Bytes(), nil
}

// Check implements engine.Step. The file satisfies the step only when its
// content, mode, and ownership (when an owner is set) all match the rendered
// target.
func (s *TemplateWrite) Check(ctx context.Context) (engine.CheckState, error) {
	want, err := s.Render()
	if err != nil {
		return engine.StateUnknown, err
	}

	got, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return engine.StateNotSatisfied, nil
	}
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("reading %s: %w", s.path, err)
	}
	if !bytes.Equal(got, want) {
		return engine.StateNotSatisfied, nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return engine.StateUnknown, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if info.Mode().Perm() != s.mode.Perm() {
		return engine.StateNotSatisfied, nil
	}

	if s.owner != "" {
		owned, err := ownedBy(info, s.owner)
		if err != nil {
			return engine.StateUnknown, err
		}
		if !owned {
			return engine.StateNotSatisfied, nil
		}
	}
	return engine.StateSatisfied, nil
}

func ownedBy(info os.FileInfo, owner string) (bool, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		// No uid available on this platform; nothing to compare.
		return true, nil
	}
	u, err := user.Lookup(owner)
	if err != nil {
		return false, fmt.Errorf("looking up user %s: %w", owner, err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return false, fmt.Errorf("parsing uid for %s: %w", owner, err)
	}
	return stat.Uid == uint32(uid), nil
}

// Apply implements engine.Step.
func (s *TemplateWrite) Apply(ctx context.Context) error {
	content, err := s.Render()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(s.mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if s.owner != "" {
		if err := chownToUser(tmpName, s.owner); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

func chownToUser(path, owner string) error {
	u, err := user.Lookup(owner)
	if err != nil {
		return fmt.Errorf("looking up user %s: %w", owner, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parsing uid for %s: %w", owner, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parsing gid for %s: %w", owner, err)
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("chown %s to %s: %w", path, owner, err)
	}
	return nil
}
