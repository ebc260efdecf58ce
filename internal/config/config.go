package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/go-news-bulletin/internal/audio"
)

// Asset names every bulletin needs, keyed by the SFX marker that triggers them.
const (
	AssetIntro = "intro"
	AssetFirst = "first"
	AssetBreak = "break"
	AssetOutro = "outro"
	AssetBed   = "bed"
)

// MarkerAssets lists the asset names referenced by script markers.
var MarkerAssets = []string{AssetIntro, AssetFirst, AssetBreak, AssetOutro}

type Config struct {
	LogLevel string        `mapstructure:"log_level" toml:"log_level"`
	Paths    PathsConfig   `mapstructure:"paths" toml:"paths"`
	Mix      MixConfig     `mapstructure:"mix" toml:"mix"`
	TTS      TTSConfig     `mapstructure:"tts" toml:"tts"`
	Output   OutputConfig  `mapstructure:"output" toml:"output"`
	FFmpeg   FFmpegConfig  `mapstructure:"ffmpeg" toml:"ffmpeg"`
	Server   ServerConfig  `mapstructure:"server" toml:"server"`
	Publish  PublishConfig `mapstructure:"publish" toml:"publish"`
}

type PathsConfig struct {
	AssetsDir     string `mapstructure:"assets_dir" toml:"assets_dir"`
	OutputDir     string `mapstructure:"output_dir" toml:"output_dir"`
	HistoryDB     string `mapstructure:"history_db" toml:"history_db"`
	LockFile      string `mapstructure:"lock_file" toml:"lock_file"`
	VoiceManifest string `mapstructure:"voice_manifest" toml:"voice_manifest"`
}

// MixConfig is the mix plan: working format, voice gain and per-asset settings.
type MixConfig struct {
	SampleRate           int                    `mapstructure:"sample_rate" toml:"sample_rate"`
	Channels             int                    `mapstructure:"channels" toml:"channels"`
	VoiceGainDB          float64                `mapstructure:"voice_gain_db" toml:"voice_gain_db"`
	Assets               map[string]AssetConfig `mapstructure:"assets" toml:"assets"`
	Bed                  BedConfig              `mapstructure:"bed" toml:"bed"`
	DecodeWorkers        int                    `mapstructure:"decode_workers" toml:"decode_workers"`
	DecodeTimeoutSeconds int                    `mapstructure:"decode_timeout_seconds" toml:"decode_timeout_seconds"`
}

type AssetConfig struct {
	Path      string  `mapstructure:"path" toml:"path"`
	GainDB    float64 `mapstructure:"gain_db" toml:"gain_db"`
	FadeInMS  int64   `mapstructure:"fade_in_ms" toml:"fade_in_ms"`
	FadeOutMS int64   `mapstructure:"fade_out_ms" toml:"fade_out_ms"`
	OffsetMS  int64   `mapstructure:"offset_ms" toml:"offset_ms"`
}

// BedConfig describes the optional background bed mixed under the whole bulletin.
type BedConfig struct {
	Enabled     bool `mapstructure:"enabled" toml:"enabled"`
	AssetConfig `mapstructure:",squash"`
	SpanMS      int64 `mapstructure:"span_ms" toml:"span_ms"`
	Loop        bool  `mapstructure:"loop" toml:"loop"`
}

type TTSConfig struct {
	Provider       string       `mapstructure:"provider" toml:"provider"`
	Voice          string       `mapstructure:"voice" toml:"voice"`
	Model          string       `mapstructure:"model" toml:"model"`
	Speed          float64      `mapstructure:"speed" toml:"speed"`
	Concurrency    int          `mapstructure:"concurrency" toml:"concurrency"`
	Retries        int          `mapstructure:"retries" toml:"retries"`
	RetryBackoffMS int          `mapstructure:"retry_backoff_ms" toml:"retry_backoff_ms"`
	TimeoutSeconds int          `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	MaxChunkChars  int          `mapstructure:"max_chunk_chars" toml:"max_chunk_chars"`
	OpenAI         OpenAIConfig `mapstructure:"openai" toml:"openai"`
	Piper          PiperConfig  `mapstructure:"piper" toml:"piper"`
	Pocket         PocketConfig `mapstructure:"pocket" toml:"pocket"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" toml:"api_key"`
	BaseURL string `mapstructure:"base_url" toml:"base_url"`
}

type PiperConfig struct {
	Endpoint string `mapstructure:"endpoint" toml:"endpoint"`
}

type PocketConfig struct {
	CLIPath    string `mapstructure:"cli_path" toml:"cli_path"`
	ConfigPath string `mapstructure:"config_path" toml:"config_path"`
	Quiet      bool   `mapstructure:"quiet" toml:"quiet"`
}

// OutputConfig selects the delivered container. Zero sample rate or channel
// count means "same as the working format".
type OutputConfig struct {
	Format     string  `mapstructure:"format" toml:"format"`
	SampleRate int     `mapstructure:"sample_rate" toml:"sample_rate"`
	Channels   int     `mapstructure:"channels" toml:"channels"`
	BitDepth   int     `mapstructure:"bit_depth" toml:"bit_depth"`
	Bitrate    string  `mapstructure:"bitrate" toml:"bitrate"`
	Normalize  bool    `mapstructure:"normalize" toml:"normalize"`
	PeakDBFS   float64 `mapstructure:"peak_dbfs" toml:"peak_dbfs"`
	// Limiter runs a peak limiter at LimiterCeilingDB over the mix before
	// the hard clip.
	Limiter          bool    `mapstructure:"limiter" toml:"limiter"`
	LimiterCeilingDB float64 `mapstructure:"limiter_ceiling_db" toml:"limiter_ceiling_db"`
	// DCBlock removes DC offset from the delivered audio.
	DCBlock       bool   `mapstructure:"dc_block" toml:"dc_block"`
	Filename      string `mapstructure:"filename" toml:"filename"`
	LatestSymlink string `mapstructure:"latest_symlink" toml:"latest_symlink"`
}

type FFmpegConfig struct {
	Path           string `mapstructure:"path" toml:"path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr" toml:"listen_addr"`
	Workers         int    `mapstructure:"workers" toml:"workers"`
	RequestTimeout  int    `mapstructure:"request_timeout" toml:"request_timeout"`
	MaxScriptBytes  int    `mapstructure:"max_script_bytes" toml:"max_script_bytes"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" toml:"shutdown_timeout"`
}

type PublishConfig struct {
	S3        S3Config        `mapstructure:"s3" toml:"s3"`
	AzuraCast AzuraCastConfig `mapstructure:"azuracast" toml:"azuracast"`
}

type S3Config struct {
	Enabled   bool   `mapstructure:"enabled" toml:"enabled"`
	Bucket    string `mapstructure:"bucket" toml:"bucket"`
	Region    string `mapstructure:"region" toml:"region"`
	Endpoint  string `mapstructure:"endpoint" toml:"endpoint"`
	AccessKey string `mapstructure:"access_key" toml:"access_key"`
	SecretKey string `mapstructure:"secret_key" toml:"secret_key"`
	Prefix    string `mapstructure:"prefix" toml:"prefix"`
	Filename  string `mapstructure:"filename" toml:"filename"`
}

type AzuraCastConfig struct {
	Enabled   bool   `mapstructure:"enabled" toml:"enabled"`
	Host      string `mapstructure:"host" toml:"host"`
	APIKey    string `mapstructure:"api_key" toml:"api_key"`
	StationID int    `mapstructure:"station_id" toml:"station_id"`
	Path      string `mapstructure:"path" toml:"path"`
	Playlist  string `mapstructure:"playlist" toml:"playlist"`
	Filename  string `mapstructure:"filename" toml:"filename"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			AssetsDir:     "assets",
			OutputDir:     "output",
			HistoryDB:     "output/history.db",
			LockFile:      "output/.bulletin.lock",
			VoiceManifest: "",
		},
		Mix: MixConfig{
			SampleRate:  44100,
			Channels:    2,
			VoiceGainDB: 0,
			Assets: map[string]AssetConfig{
				AssetIntro: {Path: "intro.wav"},
				AssetFirst: {Path: "first.wav"},
				AssetBreak: {Path: "break.wav"},
				AssetOutro: {Path: "outro.wav", OffsetMS: -500},
			},
			Bed: BedConfig{
				Enabled:     false,
				AssetConfig: AssetConfig{Path: "bed.wav", GainDB: -18, FadeInMS: 1000, FadeOutMS: 2000},
				Loop:        true,
			},
			DecodeWorkers:        4,
			DecodeTimeoutSeconds: 30,
		},
		TTS: TTSConfig{
			Provider:       ProviderOpenAI,
			Voice:          "onyx",
			Model:          "tts-1",
			Speed:          1.0,
			Concurrency:    4,
			Retries:        3,
			RetryBackoffMS: 300,
			TimeoutSeconds: 60,
			MaxChunkChars:  4000,
			OpenAI:         OpenAIConfig{BaseURL: "https://api.openai.com/v1"},
			Piper:          PiperConfig{Endpoint: "localhost:10200"},
			Pocket:         PocketConfig{Quiet: true},
		},
		Output: OutputConfig{
			Format:           "mp3",
			BitDepth:         16,
			Bitrate:          "192k",
			Normalize:        false,
			PeakDBFS:         -1,
			Limiter:          true,
			LimiterCeilingDB: -1,
			Filename:         "bulletin_%Y%%m%%d%_%H%%M%.%EXT%",
			LatestSymlink:    "latest",
		},
		FFmpeg: FFmpegConfig{
			Path:           "ffmpeg",
			TimeoutSeconds: 120,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         1,
			RequestTimeout:  300,
			MaxScriptBytes:  65536,
			ShutdownTimeout: 30,
		},
		Publish: PublishConfig{
			S3:        S3Config{Region: "us-east-1", Filename: "news_%Y%%m%%d%_%H%%M%%S%.%EXT%"},
			AzuraCast: AzuraCastConfig{Path: "/", Filename: "news.%EXT%"},
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
	fs.String("paths-assets-dir", defaults.Paths.AssetsDir, "Directory relative asset paths resolve against")
	fs.String("paths-output-dir", defaults.Paths.OutputDir, "Directory rendered bulletins are written to")
	fs.String("paths-history-db", defaults.Paths.HistoryDB, "SQLite database recording render runs")
	fs.String("paths-voice-manifest", defaults.Paths.VoiceManifest, "JSON manifest of exported pocket-tts voices")
	fs.Int("mix-sample-rate", defaults.Mix.SampleRate, "Working sample rate for the mix")
	fs.Int("mix-channels", defaults.Mix.Channels, "Working channel count for the mix")
	fs.Float64("mix-voice-gain-db", defaults.Mix.VoiceGainDB, "Gain applied to every speech clip (dB)")
	fs.String("tts-provider", defaults.TTS.Provider, "Speech provider: openai|piper|pocket")
	fs.String("tts-voice", defaults.TTS.Voice, "Voice name (provider specific)")
	fs.String("tts-model", defaults.TTS.Model, "Speech model (openai)")
	fs.Int("tts-concurrency", defaults.TTS.Concurrency, "Max concurrent speech synthesis calls")
	fs.Int("tts-retries", defaults.TTS.Retries, "Retries per speech segment after the first attempt")
	fs.String("tts-pocket-cli-path", defaults.TTS.Pocket.CLIPath, "Path to the pocket-tts executable")
	fs.String("output-format", defaults.Output.Format, "Output container: wav|mp3|ogg|opus|flac")
	fs.String("output-bitrate", defaults.Output.Bitrate, "Bitrate for lossy containers")
	fs.String("ffmpeg-path", defaults.FFmpeg.Path, "Path to the ffmpeg executable")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("BULLETIN")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("tts.openai.api_key", "BULLETIN_TTS_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind openai env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("bulletin")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.resolveSecrets()
	cfg.Output.Format = strings.ToLower(strings.TrimSpace(cfg.Output.Format))

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.assets_dir", c.Paths.AssetsDir)
	v.SetDefault("paths.output_dir", c.Paths.OutputDir)
	v.SetDefault("paths.history_db", c.Paths.HistoryDB)
	v.SetDefault("paths.lock_file", c.Paths.LockFile)
	v.SetDefault("paths.voice_manifest", c.Paths.VoiceManifest)
	v.SetDefault("mix.sample_rate", c.Mix.SampleRate)
	v.SetDefault("mix.channels", c.Mix.Channels)
	v.SetDefault("mix.voice_gain_db", c.Mix.VoiceGainDB)
	for name, a := range c.Mix.Assets {
		setAssetDefaults(v, "mix.assets."+name, a)
	}
	v.SetDefault("mix.bed.enabled", c.Mix.Bed.Enabled)
	setAssetDefaults(v, "mix.bed", c.Mix.Bed.AssetConfig)
	v.SetDefault("mix.bed.span_ms", c.Mix.Bed.SpanMS)
	v.SetDefault("mix.bed.loop", c.Mix.Bed.Loop)
	v.SetDefault("mix.decode_workers", c.Mix.DecodeWorkers)
	v.SetDefault("mix.decode_timeout_seconds", c.Mix.DecodeTimeoutSeconds)
	v.SetDefault("tts.provider", c.TTS.Provider)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.model", c.TTS.Model)
	v.SetDefault("tts.speed", c.TTS.Speed)
	v.SetDefault("tts.concurrency", c.TTS.Concurrency)
	v.SetDefault("tts.retries", c.TTS.Retries)
	v.SetDefault("tts.retry_backoff_ms", c.TTS.RetryBackoffMS)
	v.SetDefault("tts.timeout_seconds", c.TTS.TimeoutSeconds)
	v.SetDefault("tts.max_chunk_chars", c.TTS.MaxChunkChars)
	v.SetDefault("tts.openai.api_key", c.TTS.OpenAI.APIKey)
	v.SetDefault("tts.openai.base_url", c.TTS.OpenAI.BaseURL)
	v.SetDefault("tts.piper.endpoint", c.TTS.Piper.Endpoint)
	v.SetDefault("tts.pocket.cli_path", c.TTS.Pocket.CLIPath)
	v.SetDefault("tts.pocket.config_path", c.TTS.Pocket.ConfigPath)
	v.SetDefault("tts.pocket.quiet", c.TTS.Pocket.Quiet)
	v.SetDefault("output.format", c.Output.Format)
	v.SetDefault("output.sample_rate", c.Output.SampleRate)
	v.SetDefault("output.channels", c.Output.Channels)
	v.SetDefault("output.bit_depth", c.Output.BitDepth)
	v.SetDefault("output.bitrate", c.Output.Bitrate)
	v.SetDefault("output.normalize", c.Output.Normalize)
	v.SetDefault("output.peak_dbfs", c.Output.PeakDBFS)
	v.SetDefault("output.limiter", c.Output.Limiter)
	v.SetDefault("output.limiter_ceiling_db", c.Output.LimiterCeilingDB)
	v.SetDefault("output.dc_block", c.Output.DCBlock)
	v.SetDefault("output.filename", c.Output.Filename)
	v.SetDefault("output.latest_symlink", c.Output.LatestSymlink)
	v.SetDefault("ffmpeg.path", c.FFmpeg.Path)
	v.SetDefault("ffmpeg.timeout_seconds", c.FFmpeg.TimeoutSeconds)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.max_script_bytes", c.Server.MaxScriptBytes)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("publish.s3.enabled", c.Publish.S3.Enabled)
	v.SetDefault("publish.s3.bucket", c.Publish.S3.Bucket)
	v.SetDefault("publish.s3.region", c.Publish.S3.Region)
	v.SetDefault("publish.s3.endpoint", c.Publish.S3.Endpoint)
	v.SetDefault("publish.s3.access_key", c.Publish.S3.AccessKey)
	v.SetDefault("publish.s3.secret_key", c.Publish.S3.SecretKey)
	v.SetDefault("publish.s3.prefix", c.Publish.S3.Prefix)
	v.SetDefault("publish.s3.filename", c.Publish.S3.Filename)
	v.SetDefault("publish.azuracast.enabled", c.Publish.AzuraCast.Enabled)
	v.SetDefault("publish.azuracast.host", c.Publish.AzuraCast.Host)
	v.SetDefault("publish.azuracast.api_key", c.Publish.AzuraCast.APIKey)
	v.SetDefault("publish.azuracast.station_id", c.Publish.AzuraCast.StationID)
	v.SetDefault("publish.azuracast.path", c.Publish.AzuraCast.Path)
	v.SetDefault("publish.azuracast.playlist", c.Publish.AzuraCast.Playlist)
	v.SetDefault("publish.azuracast.filename", c.Publish.AzuraCast.Filename)
}

func setAssetDefaults(v *viper.Viper, prefix string, a AssetConfig) {
	v.SetDefault(prefix+".path", a.Path)
	v.SetDefault(prefix+".gain_db", a.GainDB)
	v.SetDefault(prefix+".fade_in_ms", a.FadeInMS)
	v.SetDefault(prefix+".fade_out_ms", a.FadeOutMS)
	v.SetDefault(prefix+".offset_ms", a.OffsetMS)
}

// flagKeys maps config keys to their dashed flag names. Flags are bound per
// key instead of through viper aliases so config file values for the same
// keys stay visible.
var flagKeys = map[string]string{
	"log_level":            "log-level",
	"paths.assets_dir":     "paths-assets-dir",
	"paths.output_dir":     "paths-output-dir",
	"paths.history_db":     "paths-history-db",
	"paths.voice_manifest": "paths-voice-manifest",
	"mix.sample_rate":      "mix-sample-rate",
	"mix.channels":         "mix-channels",
	"mix.voice_gain_db":    "mix-voice-gain-db",
	"tts.provider":         "tts-provider",
	"tts.voice":            "tts-voice",
	"tts.model":            "tts-model",
	"tts.concurrency":      "tts-concurrency",
	"tts.retries":          "tts-retries",
	"tts.pocket.cli_path":  "tts-pocket-cli-path",
	"output.format":        "output-format",
	"output.bitrate":       "output-bitrate",
	"ffmpeg.path":          "ffmpeg-path",
	"server.listen_addr":   "server-listen-addr",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

// resolveSecrets expands "${VAR}" references in credential fields.
func (c *Config) resolveSecrets() {
	c.TTS.OpenAI.APIKey = resolveEnvRef(c.TTS.OpenAI.APIKey)
	c.Publish.S3.AccessKey = resolveEnvRef(c.Publish.S3.AccessKey)
	c.Publish.S3.SecretKey = resolveEnvRef(c.Publish.S3.SecretKey)
	c.Publish.AzuraCast.APIKey = resolveEnvRef(c.Publish.AzuraCast.APIKey)
}

func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}

	return val
}

// WorkingFormat is the format every clip is converted to before mixing.
func (c Config) WorkingFormat() audio.Format {
	return audio.Format{SampleRate: c.Mix.SampleRate, Channels: c.Mix.Channels}
}

// OutputFormat is the delivered sample rate and channel count.
func (c Config) OutputFormat() audio.Format {
	f := c.WorkingFormat()
	if c.Output.SampleRate > 0 {
		f.SampleRate = c.Output.SampleRate
	}
	if c.Output.Channels > 0 {
		f.Channels = c.Output.Channels
	}

	return f
}

// AssetPath resolves p against the assets directory unless it is absolute.
func (c Config) AssetPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(c.Paths.AssetsDir, p)
}
