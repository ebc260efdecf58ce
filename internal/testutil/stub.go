package testutil

import (
	"context"
	"sync"

	"github.com/example/go-news-bulletin/internal/audio"
	"github.com/example/go-news-bulletin/internal/tts"
)

// StubSynthesizer is an in-memory tts.Synthesizer returning WAV tones.
// Each call returns DurationMS of audio, or MSPerChar per byte of text when set.
type StubSynthesizer struct {
	Format     audio.Format
	DurationMS int64
	MSPerChar  int64
	// FailTimes makes the first FailTimes calls return Err.
	FailTimes int
	Err       error
	// Block makes calls wait for context cancellation.
	Block bool

	mu    sync.Mutex
	calls []tts.Request
}

func (s *StubSynthesizer) Name() string { return "stub" }

func (s *StubSynthesizer) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	n := len(s.calls)
	s.mu.Unlock()

	if s.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= s.FailTimes || (s.FailTimes < 0 && s.Err != nil) {
		return nil, s.Err
	}

	ms := s.DurationMS
	if s.MSPerChar > 0 {
		ms = int64(len(req.Text)) * s.MSPerChar
	}
	f := s.Format
	if f.SampleRate == 0 {
		f = audio.Format{SampleRate: 24000, Channels: 1}
	}

	return audio.EncodeWAV(Tone(f, ms, 220, 0.25), 16)
}

// Calls returns how many synthesis calls were made.
func (s *StubSynthesizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

// Requests returns a copy of every request received.
func (s *StubSynthesizer) Requests() []tts.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]tts.Request(nil), s.calls...)
}
