package history

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/fault"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one render attempt.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         Status
	ErrorKind      string
	ErrorDetail    string
	OutputPath     string
	Container      string
	Duration       time.Duration
	SpeechSegments int
	PeakDBFS       float64
	RMSDBFS        float64
	TrackGainDB    float64
}

// Succeed marks the run successful and copies the loudness report.
func (r *Run) Succeed(output string, l audio.Loudness) {
	r.Status = StatusSucceeded
	r.OutputPath = output
	r.PeakDBFS = l.PeakDBFS
	r.RMSDBFS = l.RMSDBFS
	r.TrackGainDB = l.TrackGainDB
}

// Fail marks the run failed. Pipeline faults are recorded by kind.
func (r *Run) Fail(err error) {
	r.Status = StatusFailed
	if err == nil {
		return
	}
	r.ErrorDetail = err.Error()
	if k := fault.KindOf(err); k != 0 {
		r.ErrorKind = k.String()
	} else {
		r.ErrorKind = "other"
	}
}

// Elapsed is the wall time of a finished run.
func (r Run) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run                       Run
		started                   string
		finished                  sql.NullString
		status                    string
		kind, detail, out, format sql.NullString
		durationMS                int64
		peak, rms, gain           sql.NullFloat64
	)

	err := scanner.Scan(&run.ID, &started, &finished, &status, &kind, &detail,
		&out, &format, &durationMS, &run.SpeechSegments, &peak, &rms, &gain)
	if err != nil {
		return nil, err
	}

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
	}

	run.Status = Status(status)
	run.ErrorKind = kind.String
	run.ErrorDetail = detail.String
	run.OutputPath = out.String
	run.Container = format.String
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.PeakDBFS = floatOrSilence(peak)
	run.RMSDBFS = floatOrSilence(rms)
	run.TrackGainDB = gain.Float64

	return &run, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// SQLite has no infinity literal; silence is stored as NULL.
func nullableFloat(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}

func floatOrSilence(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(-1)
	}
	return v.Float64
}
