package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/config"
	"github.com/example/go-news-bulletin/internal/fault"
	"github.com/example/go-news-bulletin/internal/script"
	"github.com/example/go-news-bulletin/internal/testutil"
)

func newPipeline(t *testing.T, cfg config.Config, stub *testutil.StubSynthesizer) *Renderer {
	t.Helper()

	r, err := New(cfg, stub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRenderScriptToWAV(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	stub := &testutil.StubSynthesizer{Format: testutil.FixtureFormat, DurationMS: 1000}

	res, err := newPipeline(t, cfg, stub).Render(context.Background(), Input{Script: testutil.Script})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	testutil.AssertValidWAV(t, res.Audio, testutil.FixtureFormat, 16)
	if stub.Calls() != 2 {
		t.Errorf("tts calls = %d; want 2", stub.Calls())
	}
	if res.SpeechSegments() != 2 {
		t.Errorf("speech segments = %d; want 2", res.SpeechSegments())
	}

	ms := testutil.FixtureAssetMS
	wantMS := ms[config.AssetIntro] + ms[config.AssetFirst] + 1000 + ms[config.AssetBreak] + 1000 + ms[config.AssetOutro]
	if res.Timeline.ExtentMS() != wantMS {
		t.Errorf("extent = %dms; want %d", res.Timeline.ExtentMS(), wantMS)
	}

	decoded, err := audio.DecodeWAV(res.Audio)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if d := decoded.Frames() - res.Timeline.Extent(); d < -1 || d > 1 {
		t.Errorf("decoded %d frames; timeline extent %d", decoded.Frames(), res.Timeline.Extent())
	}
}

func TestRenderWithBed(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	cfg.Mix.Bed.Enabled = true
	cfg.Mix.Bed.OffsetMS = 0
	stub := &testutil.StubSynthesizer{Format: testutil.FixtureFormat, DurationMS: 800}

	res, err := newPipeline(t, cfg, stub).Render(context.Background(), Input{Script: testutil.Script})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	last := res.Timeline.Placements[len(res.Timeline.Placements)-1]
	if last.Name != config.AssetBed || last.StartFrame != 0 || last.EndFrame() != res.Timeline.Cursor {
		t.Errorf("bed = %s [%d, %d); want bed over [0, %d)", last.Name, last.StartFrame, last.EndFrame(), res.Timeline.Cursor)
	}
}

func TestRenderMissingAssetMakesNoTTSCalls(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	missing := filepath.Join(cfg.Paths.AssetsDir, config.AssetBreak+".wav")
	if err := os.Remove(missing); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	stub := &testutil.StubSynthesizer{Format: testutil.FixtureFormat, DurationMS: 500}

	_, err := newPipeline(t, cfg, stub).Render(context.Background(), Input{Script: testutil.Script})
	if !errors.Is(err, fault.ErrMissingAsset) {
		t.Fatalf("err = %v; want missing asset", err)
	}

	var fe *fault.Error
	if errors.As(err, &fe) && fe.Path != missing {
		t.Errorf("path = %q; want %q", fe.Path, missing)
	}
	if stub.Calls() != 0 {
		t.Errorf("tts calls = %d; want 0", stub.Calls())
	}
}

func TestRenderUndecodableAsset(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	bad := filepath.Join(cfg.Paths.AssetsDir, config.AssetIntro+".wav")
	if err := os.WriteFile(bad, []byte("not audio at all"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg.FFmpeg.Path = filepath.Join(t.TempDir(), "no-ffmpeg")
	stub := &testutil.StubSynthesizer{Format: testutil.FixtureFormat, DurationMS: 500}

	_, err := newPipeline(t, cfg, stub).Render(context.Background(), Input{Script: testutil.Script})
	if !errors.Is(err, fault.ErrUnsupportedAudio) {
		t.Fatalf("err = %v; want unsupported audio", err)
	}
	if stub.Calls() != 0 {
		t.Errorf("tts calls = %d; want 0", stub.Calls())
	}
}

func TestRenderMalformedScript(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	stub := &testutil.StubSynthesizer{Format: testutil.FixtureFormat, DurationMS: 500}

	_, err := newPipeline(t, cfg, stub).Render(context.Background(), Input{Script: "[SFX: ARTICLE START] Hello. [SFX: NEWS OUTRO]"})
	if !errors.Is(err, fault.ErrMalformedScript) {
		t.Fatalf("err = %v; want malformed script", err)
	}
	if stub.Calls() != 0 {
		t.Errorf("tts calls = %d; want 0", stub.Calls())
	}
}

func TestRenderSegmentsInput(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	stub := &testutil.StubSynthesizer{Format: testutil.FixtureFormat, DurationMS: 1000}

	segs := []script.Segment{
		script.SFX(script.NewsIntro),
		script.SFX(script.ArticleStart),
		script.Speech("Hello world"),
		script.SFX(script.NewsOutro),
	}

	res, err := newPipeline(t, cfg, stub).Render(context.Background(), Input{Segments: segs})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	speech := res.Timeline.Placements[2]
	want := testutil.FixtureAssetMS[config.AssetIntro] + testutil.FixtureAssetMS[config.AssetFirst]
	if speech.Segment != 2 || speech.StartMS() != want {
		t.Errorf("speech placed at %dms (segment %d); want %dms", speech.StartMS(), speech.Segment, want)
	}
}

func TestRenderSpeechFailure(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	cfg.TTS.Retries = 1
	cause := errors.New("upstream 503")
	stub := &testutil.StubSynthesizer{Format: testutil.FixtureFormat, FailTimes: 100, Err: cause}

	_, err := newPipeline(t, cfg, stub).Render(context.Background(), Input{Script: testutil.Script})
	if !errors.Is(err, fault.ErrSpeechSynthesis) || !errors.Is(err, cause) {
		t.Fatalf("err = %v; want speech synthesis wrapping the cause", err)
	}
}

func TestRenderRequiresInput(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	_, err := newPipeline(t, cfg, &testutil.StubSynthesizer{}).Render(context.Background(), Input{})
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v; want ErrNoInput", err)
	}
}

func TestNewRejectsBadOutput(t *testing.T) {
	cfg := testutil.BulletinConfig(t)
	cfg.Output.Format = "aiff"

	if _, err := New(cfg, &testutil.StubSynthesizer{}); !errors.Is(err, fault.ErrEncoding) {
		t.Fatalf("err = %v; want encoding fault", err)
	}
}
