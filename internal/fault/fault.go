// Package fault defines the error taxonomy for a bulletin render. Every
// failure the pipeline reports is a *Error carrying a Kind plus whatever
// context (segment index, asset, path, rule) locates the problem.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindMissingAsset Kind = iota + 1
	KindUnsupportedAudio
	KindMalformedScript
	KindSpeechSynthesis
	KindUnresolvedAsset
	KindEncoding
)

// Sentinels for errors.Is matching by kind.
var (
	ErrMissingAsset     = errors.New("missing asset")
	ErrUnsupportedAudio = errors.New("unsupported audio")
	ErrMalformedScript  = errors.New("malformed script")
	ErrSpeechSynthesis  = errors.New("speech synthesis failed")
	ErrUnresolvedAsset  = errors.New("unresolved asset")
	ErrEncoding         = errors.New("encoding failed")
)

var kindSentinels = map[Kind]error{
	KindMissingAsset:     ErrMissingAsset,
	KindUnsupportedAudio: ErrUnsupportedAudio,
	KindMalformedScript:  ErrMalformedScript,
	KindSpeechSynthesis:  ErrSpeechSynthesis,
	KindUnresolvedAsset:  ErrUnresolvedAsset,
	KindEncoding:         ErrEncoding,
}

var kindNames = map[Kind]string{
	KindMissingAsset:     "missing_asset",
	KindUnsupportedAudio: "unsupported_audio",
	KindMalformedScript:  "malformed_script",
	KindSpeechSynthesis:  "speech_synthesis",
	KindUnresolvedAsset:  "unresolved_asset",
	KindEncoding:         "encoding",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// NoSegment marks errors not tied to a script segment.
const NoSegment = -1

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Segment int
	Asset   string
	Path    string
	Rule    string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(kindSentinels[e.Kind].Error())

	var ctx []string
	if e.Rule != "" {
		ctx = append(ctx, "rule "+e.Rule)
	}
	if e.Segment >= 0 {
		ctx = append(ctx, fmt.Sprintf("segment %d", e.Segment))
	}
	if e.Asset != "" {
		ctx = append(ctx, fmt.Sprintf("asset %q", e.Asset))
	}
	if e.Path != "" {
		ctx = append(ctx, "path "+e.Path)
	}
	if len(ctx) > 0 {
		b.WriteString(" (" + strings.Join(ctx, ", ") + ")")
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target != nil && kindSentinels[e.Kind] == target
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	return 0
}

func MissingAsset(name, path string, err error) *Error {
	return &Error{Kind: KindMissingAsset, Segment: NoSegment, Asset: name, Path: path, Err: err}
}

func UnsupportedAudio(name, path string, err error) *Error {
	return &Error{Kind: KindUnsupportedAudio, Segment: NoSegment, Asset: name, Path: path, Err: err}
}

// MalformedScript reports a violated ordering rule at segment index.
func MalformedScript(rule string, segment int, detail string) *Error {
	return &Error{Kind: KindMalformedScript, Segment: segment, Rule: rule, Detail: detail}
}

func SpeechSynthesis(segment int, err error) *Error {
	return &Error{Kind: KindSpeechSynthesis, Segment: segment, Err: err}
}

func UnresolvedAsset(segment int, name string) *Error {
	return &Error{Kind: KindUnresolvedAsset, Segment: segment, Asset: name}
}

// Encoding reports an output encoder failure for the named container.
func Encoding(container string, err error) *Error {
	return &Error{Kind: KindEncoding, Segment: NoSegment, Detail: "format " + container, Err: err}
}
