package fault

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing asset", MissingAsset("intro", "/a/intro.wav", io.EOF), ErrMissingAsset},
		{"unsupported audio", UnsupportedAudio("bed", "/a/bed.wav", io.EOF), ErrUnsupportedAudio},
		{"malformed script", MalformedScript("intro-first", 0, "x"), ErrMalformedScript},
		{"speech synthesis", SpeechSynthesis(3, io.EOF), ErrSpeechSynthesis},
		{"unresolved asset", UnresolvedAsset(2, "break"), ErrUnresolvedAsset},
		{"encoding", Encoding("mp3", io.EOF), ErrEncoding},
	}
	sentinels := []error{ErrMissingAsset, ErrUnsupportedAudio, ErrMalformedScript, ErrSpeechSynthesis, ErrUnresolvedAsset, ErrEncoding}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("render: %w", tt.err)
			for _, s := range sentinels {
				if got := errors.Is(wrapped, s); got != (s == tt.want) {
					t.Errorf("errors.Is(%v) = %v", s, got)
				}
			}
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := SpeechSynthesis(4, io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("cause not reachable through errors.Is")
	}
}

func TestErrorMessageCarriesContext(t *testing.T) {
	msg := MalformedScript("break-placement", 5, "ARTICLE_BREAK must sit between two speech segments").Error()
	for _, want := range []string{"malformed script", "rule break-placement", "segment 5"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}

	msg = MissingAsset("outro", "/srv/outro.wav", nil).Error()
	if strings.Contains(msg, "segment") {
		t.Errorf("message %q should not name a segment", msg)
	}
	if !strings.Contains(msg, "/srv/outro.wav") {
		t.Errorf("message %q missing path", msg)
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("x: %w", Encoding("ogg", nil))); got != KindEncoding {
		t.Errorf("KindOf = %v, want encoding", got)
	}
	if got := KindOf(io.EOF); got != 0 {
		t.Errorf("KindOf(plain) = %v, want 0", got)
	}
	if KindMalformedScript.String() != "malformed_script" {
		t.Errorf("String = %q", KindMalformedScript.String())
	}
}
