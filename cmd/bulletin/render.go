package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/history"
	"github.com/example/go-news-bulletin/internal/pipeline"
	"github.com/example/go-news-bulletin/internal/publish"
	"github.com/example/go-news-bulletin/internal/runlock"
	"github.com/example/go-news-bulletin/internal/tts"
)

// newSynthesizer is a seam so tests can avoid real TTS providers.
var newSynthesizer = func(cfg config.Config, logger *slog.Logger) (tts.Synthesizer, error) {
	return tts.New(cfg, logger)
}

var now = time.Now

func newRenderCmd() *cobra.Command {
	var localOnly bool

	cmd := &cobra.Command{
		Use:   "render [script-file|-]",
		Short: "Render a script into an encoded bulletin and publish it",
		Long: "Render a script into an encoded bulletin.\n\n" +
			"The script is read from the file argument, or stdin when it is \"-\" or omitted. " +
			"The bulletin is written to paths.output_dir and then uploaded to every enabled remote sink.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			text, err := readScript(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			return runRender(cmd.Context(), cfg, text, localOnly, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local-only", false, "Write to the output directory only; skip S3 and AzuraCast")

	return cmd
}

func readScript(args []string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", pipeline.ErrNoInput
	}

	return string(data), nil
}

func runRender(ctx context.Context, cfg config.Config, text string, localOnly bool, out io.Writer) error {
	lock, err := runlock.Acquire(cfg.Paths.LockFile)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	store, err := history.Open(ctx, cfg.Paths.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Start(ctx)
	if err != nil {
		return err
	}
	logger := slog.Default().With(slog.String("run_id", run.ID))

	deliveries, renderErr := renderAndPublish(ctx, cfg, text, run, localOnly, logger)
	if renderErr != nil && run.Status != history.StatusSucceeded {
		run.Fail(renderErr)
	}

	if err := store.Finish(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("record run failed", slog.Any("error", err))
	}

	if len(deliveries) > 0 {
		printDeliveries(out, run, deliveries)
	}
	if run.Status != history.StatusSucceeded {
		return renderErr
	}
	if renderErr != nil {
		_, _ = fmt.Fprintf(out, "warning: %v\n", renderErr)
	}

	return nil
}

// renderAndPublish marks run succeeded once the local file is written. A
// non-nil error alongside a succeeded run means a remote sink failed.
func renderAndPublish(ctx context.Context, cfg config.Config, text string, run *history.Run, localOnly bool, logger *slog.Logger) ([]publish.Delivery, error) {
	synth, err := newSynthesizer(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("tts provider selected", slog.String("provider", synth.Name()))

	r, err := pipeline.New(cfg, synth, pipeline.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	res, err := r.Render(ctx, pipeline.Input{Script: text})
	if err != nil {
		return nil, err
	}
	run.Container = res.Container
	run.Duration = res.Duration
	run.SpeechSegments = res.SpeechSegments()

	sinks, err := publish.Sinks(cfg, logger)
	if err != nil {
		return nil, err
	}
	if localOnly {
		sinks = sinks[:1]
	}

	art := publish.Artifact{
		RunID:       run.ID,
		Data:        res.Audio,
		Container:   res.Container,
		ContentType: res.ContentType,
		CreatedAt:   now(),
	}
	deliveries, err := publish.Fanout(ctx, logger, art, sinks...)
	if len(deliveries) == 0 || deliveries[0].Err != nil {
		return deliveries, err
	}

	run.Succeed(deliveries[0].Location, res.Loudness)
	if err != nil {
		run.ErrorDetail = err.Error()
	}
	logger.Info("loudness",
		slog.Float64("peak_dbfs", res.Loudness.PeakDBFS),
		slog.Float64("rms_dbfs", res.Loudness.RMSDBFS),
		slog.Float64("track_gain_db", res.Loudness.TrackGainDB),
		slog.Int("clipped_samples", res.Clipped),
	)

	return deliveries, err
}

func printDeliveries(w io.Writer, run *history.Run, deliveries []publish.Delivery) {
	rows := make([][]string, 0, len(deliveries))
	for _, d := range deliveries {
		status := "ok"
		if d.Err != nil {
			status = "failed"
		}
		rows = append(rows, []string{displayName(d.Sink), status, d.Location})
	}

	_, _ = fmt.Fprintf(w, "run %s: %s, %s, %d speech segments\n",
		run.ID, run.Status, run.Duration.Round(time.Millisecond), run.SpeechSegments)
	_, _ = fmt.Fprintln(w, renderTable([]string{"Sink", "Status", "Location"}, rows, nil))
}
