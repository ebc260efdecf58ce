package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-news-bulletin/internal/assets"
	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/pipeline"
	"github.com/example/go-news-bulletin/internal/script"
)

func newAssetValidator(cfg config.Config) *assets.Validator {
	return assets.NewValidator(pipeline.NewDecoder(cfg),
		assets.WithWorkers(cfg.Mix.DecodeWorkers),
		assets.WithTimeout(time.Duration(cfg.Mix.DecodeTimeoutSeconds)*time.Second),
		assets.WithLogger(slog.Default()),
	)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [script-file|-]",
		Short: "Check configuration, assets and optionally a script without synthesizing speech",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if err := config.Validate(cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "config: ok")

			set, err := newAssetValidator(cfg).Validate(cmd.Context(), assets.PlanFromConfig(cfg))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "assets: %d ok\n", len(set.Names()))

			if len(args) == 0 {
				return nil
			}
			text, err := readScript(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			segs, err := script.NewParser(slog.Default()).Parse(text)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "script: %d segments, %d spoken\n", len(segs), script.SpeechCount(segs))
			return nil
		},
	}
}

func newSegmentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "segments [script-file|-]",
		Short: "Parse a script and list its segments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readScript(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			segs, err := script.NewParser(slog.Default()).Parse(text)
			if err != nil {
				return err
			}

			printSegments(cmd.OutOrStdout(), segs)
			return nil
		},
	}
}

func printSegments(w io.Writer, segs []script.Segment) {
	rows := make([][]string, 0, len(segs))
	for i, s := range segs {
		if s.IsSpeech() {
			rows = append(rows, []string{strconv.Itoa(i), "Speech", preview(s.Text, 60), strconv.Itoa(len(s.Text))})
			continue
		}
		rows = append(rows, []string{strconv.Itoa(i), "SFX", displayName(s.Marker.Asset()), ""})
	}

	_, _ = fmt.Fprintln(w, renderTable(
		[]string{"#", "Kind", "Content", "Chars"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	))
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Load every asset of the mix plan and show its settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			plan := assets.PlanFromConfig(cfg)
			set, err := newAssetValidator(cfg).Validate(cmd.Context(), plan)
			if err != nil {
				return err
			}

			printPlan(cmd.OutOrStdout(), plan, set)
			return nil
		},
	}
}

func printPlan(w io.Writer, plan assets.Plan, set *assets.Set) {
	rows := make([][]string, 0, len(plan.Specs))
	for _, spec := range plan.Specs {
		dur := ""
		if a, ok := set.Get(spec.Name); ok {
			dur = a.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			displayName(spec.Name),
			spec.Path,
			dur,
			fmt.Sprintf("%+.1f", spec.GainDB),
			strconv.FormatInt(spec.FadeInMS, 10),
			strconv.FormatInt(spec.FadeOutMS, 10),
			strconv.FormatInt(spec.OffsetMS, 10),
		})
	}

	_, _ = fmt.Fprintf(w, "working format: %d Hz, %d ch\n", plan.Format.SampleRate, plan.Format.Channels)
	_, _ = fmt.Fprintln(w, renderTable(
		[]string{"Asset", "Path", "Duration", "Gain dB", "Fade In ms", "Fade Out ms", "Offset ms"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))
}
