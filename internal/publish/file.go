package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes the bulletin into Dir. The file appears atomically via a
// temp file and rename, so a failed run never leaves a partial bulletin or
// replaces a previous one. Latest, when set, is a symlink updated to point at
// the newest file.
type FileSink struct {
	Dir      string
	Template string
	Latest   string
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Publish(ctx context.Context, art Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := FormatName(s.Template, art.CreatedAt, art.Container)
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid output file name %q", name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	dest := filepath.Join(s.Dir, name)
	if err := writeAtomic(dest, art.Data); err != nil {
		return "", err
	}

	if s.Latest != "" {
		if err := s.link(name); err != nil {
			return dest, err
		}
	}

	return dest, nil
}

// link points Dir/Latest at name, replacing any previous link in one rename.
func (s *FileSink) link(name string) error {
	latest := filepath.Join(s.Dir, s.Latest)
	tmp := latest + ".tmp"

	_ = os.Remove(tmp)
	if err := os.Symlink(name, tmp); err != nil {
		return fmt.Errorf("create latest symlink: %w", err)
	}
	if err := os.Rename(tmp, latest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace latest symlink: %w", err)
	}

	return nil
}

func writeAtomic(dest string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}
