// Package doctor provides environment preflight checks for bulletin renders.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check. A nil func
// skips its check.
type Config struct {
	// Settings reports configuration problems (config.Validate).
	Settings func() error
	// FFmpegVersion returns the first line of `ffmpeg -version`. Required
	// only when the output container is not WAV.
	FFmpegVersion VersionFunc
	// PocketTTSVersion and PythonVersion apply to the pocket provider.
	PocketTTSVersion VersionFunc
	PythonVersion    VersionFunc
	// Assets loads and decodes every asset of the mix plan.
	Assets func() (int, error)
	// OutputDir must exist or be creatable, and be writable.
	OutputDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	check := func(name string, fn func() (string, error)) {
		detail, err := fn()
		if err != nil {
			res.fail(fmt.Sprintf("%s: %v", name, err))
			fmt.Fprintf(w, "%s %s: %v\n", FailMark, name, err)
			return
		}
		fmt.Fprintf(w, "%s %s: %s\n", PassMark, name, detail)
	}

	if cfg.Settings != nil {
		check("configuration", func() (string, error) { return "ok", cfg.Settings() })
	}

	if cfg.FFmpegVersion != nil {
		check("ffmpeg", cfg.FFmpegVersion)
	} else {
		fmt.Fprintf(w, "%s ffmpeg: skipped (wav output)\n", PassMark)
	}

	if cfg.PocketTTSVersion != nil {
		check("pocket-tts binary", cfg.PocketTTSVersion)
	}
	if cfg.PythonVersion != nil {
		check("python version", func() (string, error) {
			ver, err := cfg.PythonVersion()
			if err != nil {
				return "", err
			}
			if err := checkPythonVersion(ver); err != nil {
				return "", fmt.Errorf("%s: %w", ver, err)
			}
			return ver, nil
		})
	}

	if cfg.Assets != nil {
		check("assets", func() (string, error) {
			n, err := cfg.Assets()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d decoded", n), nil
		})
	}

	if cfg.OutputDir != "" {
		check("output dir", func() (string, error) { return cfg.OutputDir, checkWritable(cfg.OutputDir) })
	}

	return res
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// checkPythonVersion returns an error if ver is outside [3.10, 3.15).
// ver is expected to be a string like "3.11.4".
func checkPythonVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != 3 {
		return fmt.Errorf("requires Python 3, got %d", major)
	}
	if minor < 10 {
		return fmt.Errorf("requires Python >=3.10, got 3.%d", minor)
	}
	if minor >= 15 {
		return fmt.Errorf("requires Python <3.15, got 3.%d", minor)
	}
	return nil
}

// parseMajorMinor reads "x.y[.z]" from a bare version or from the last word
// of a "Python x.y.z" banner.
func parseMajorMinor(ver string) (major, minor int, err error) {
	fields := strings.Fields(ver)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	parts := strings.SplitN(fields[len(fields)-1], ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
