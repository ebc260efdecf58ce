package config

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// OutputFormats lists the containers the output encoder can produce.
var OutputFormats = []string{"wav", "mp3", "ogg", "opus", "flac"}

// ValidationError lists every invalid setting found in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate checks the whole config and reports all problems together.
// It returns nil or a *ValidationError.
func Validate(c Config) error {
	var p problems

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		p.addf("log_level: unknown level %q", c.LogLevel)
	}

	validateMix(&p, c.Mix)
	validateTTS(&p, c.TTS)
	validateOutput(&p, c.Output)

	if c.FFmpeg.TimeoutSeconds < 0 {
		p.addf("ffmpeg.timeout_seconds: must be >= 0, got %d", c.FFmpeg.TimeoutSeconds)
	}
	if c.Server.Workers < 1 {
		p.addf("server.workers: must be >= 1, got %d", c.Server.Workers)
	}
	if c.Server.RequestTimeout < 1 {
		p.addf("server.request_timeout: must be >= 1, got %d", c.Server.RequestTimeout)
	}
	if c.Server.MaxScriptBytes < 1 {
		p.addf("server.max_script_bytes: must be >= 1, got %d", c.Server.MaxScriptBytes)
	}

	if s3 := c.Publish.S3; s3.Enabled {
		if s3.Bucket == "" {
			p.addf("publish.s3.bucket: required when s3 publishing is enabled")
		}
		if s3.Region == "" {
			p.addf("publish.s3.region: required when s3 publishing is enabled")
		}
	}
	if az := c.Publish.AzuraCast; az.Enabled {
		if az.Host == "" {
			p.addf("publish.azuracast.host: required when azuracast publishing is enabled")
		}
		if az.APIKey == "" {
			p.addf("publish.azuracast.api_key: required when azuracast publishing is enabled")
		}
		if az.StationID < 1 {
			p.addf("publish.azuracast.station_id: must be >= 1, got %d", az.StationID)
		}
	}

	if len(p) == 0 {
		return nil
	}

	return &ValidationError{Problems: p}
}

func validateMix(p *problems, m MixConfig) {
	if m.SampleRate < 8000 || m.SampleRate > 192000 {
		p.addf("mix.sample_rate: must be within 8000..192000, got %d", m.SampleRate)
	}
	if m.Channels < 1 || m.Channels > 2 {
		p.addf("mix.channels: must be 1 or 2, got %d", m.Channels)
	}
	if m.DecodeWorkers < 1 {
		p.addf("mix.decode_workers: must be >= 1, got %d", m.DecodeWorkers)
	}
	if m.DecodeTimeoutSeconds < 1 {
		p.addf("mix.decode_timeout_seconds: must be >= 1, got %d", m.DecodeTimeoutSeconds)
	}

	for _, name := range MarkerAssets {
		a, ok := m.Assets[name]
		if !ok || strings.TrimSpace(a.Path) == "" {
			p.addf("mix.assets.%s.path: required", name)
			continue
		}
		validateAsset(p, "mix.assets."+name, a)
	}

	var extra []string
	for name := range m.Assets {
		if !slices.Contains(MarkerAssets, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		p.addf("mix.assets.%s: unknown asset name (expected one of %s)", name, strings.Join(MarkerAssets, ", "))
	}

	if m.Bed.Enabled {
		if strings.TrimSpace(m.Bed.Path) == "" {
			p.addf("mix.bed.path: required when the bed is enabled")
		}
		validateAsset(p, "mix.bed", m.Bed.AssetConfig)
		if m.Bed.SpanMS < 0 {
			p.addf("mix.bed.span_ms: must be >= 0, got %d", m.Bed.SpanMS)
		}
	}
}

func validateAsset(p *problems, key string, a AssetConfig) {
	if a.FadeInMS < 0 {
		p.addf("%s.fade_in_ms: must be >= 0, got %d", key, a.FadeInMS)
	}
	if a.FadeOutMS < 0 {
		p.addf("%s.fade_out_ms: must be >= 0, got %d", key, a.FadeOutMS)
	}
	if a.GainDB > 24 || a.GainDB < -96 {
		p.addf("%s.gain_db: must be within -96..24, got %g", key, a.GainDB)
	}
}

func validateTTS(p *problems, t TTSConfig) {
	provider, err := NormalizeProvider(t.Provider)
	if err != nil {
		p.addf("tts.provider: %v", err)
	}
	if t.Concurrency < 1 {
		p.addf("tts.concurrency: must be >= 1, got %d", t.Concurrency)
	}
	if t.Retries < 0 || t.Retries > 10 {
		p.addf("tts.retries: must be within 0..10, got %d", t.Retries)
	}
	if t.RetryBackoffMS < 0 {
		p.addf("tts.retry_backoff_ms: must be >= 0, got %d", t.RetryBackoffMS)
	}
	if t.TimeoutSeconds < 1 {
		p.addf("tts.timeout_seconds: must be >= 1, got %d", t.TimeoutSeconds)
	}
	if t.MaxChunkChars < 0 {
		p.addf("tts.max_chunk_chars: must be >= 0, got %d", t.MaxChunkChars)
	}
	if t.Speed < 0.25 || t.Speed > 4 {
		p.addf("tts.speed: must be within 0.25..4, got %g", t.Speed)
	}

	switch provider {
	case ProviderOpenAI:
		if t.OpenAI.APIKey == "" {
			p.addf("tts.openai.api_key: required for the openai provider")
		}
		if t.OpenAI.BaseURL == "" {
			p.addf("tts.openai.base_url: required for the openai provider")
		}
	case ProviderPiper:
		if t.Piper.Endpoint == "" {
			p.addf("tts.piper.endpoint: required for the piper provider")
		}
	}
}

func validateOutput(p *problems, o OutputConfig) {
	if !slices.Contains(OutputFormats, o.Format) {
		p.addf("output.format: unsupported %q (expected lower-case %s)", o.Format, strings.Join(OutputFormats, "|"))
	}
	if o.Format == "wav" && o.BitDepth != 16 && o.BitDepth != 24 {
		p.addf("output.bit_depth: must be 16 or 24 for wav, got %d", o.BitDepth)
	}
	if o.SampleRate != 0 && (o.SampleRate < 8000 || o.SampleRate > 192000) {
		p.addf("output.sample_rate: must be 0 or within 8000..192000, got %d", o.SampleRate)
	}
	if o.Channels < 0 || o.Channels > 2 {
		p.addf("output.channels: must be 0, 1 or 2, got %d", o.Channels)
	}
	if o.Normalize && o.PeakDBFS > 0 {
		p.addf("output.peak_dbfs: must be <= 0, got %g", o.PeakDBFS)
	}
	if o.Limiter && (o.LimiterCeilingDB > 0 || math.IsNaN(o.LimiterCeilingDB) || math.IsInf(o.LimiterCeilingDB, 0)) {
		p.addf("output.limiter_ceiling_db: must be a finite value <= 0, got %g", o.LimiterCeilingDB)
	}
	if strings.TrimSpace(o.Filename) == "" {
		p.addf("output.filename: required")
	} else if strings.ContainsAny(o.Filename, `/\`) {
		p.addf("output.filename: must be a bare file name, got %q", o.Filename)
	}
	if strings.ContainsAny(o.LatestSymlink, `/\`) {
		p.addf("output.latest_symlink: must be a bare file name, got %q", o.LatestSymlink)
	}
}
