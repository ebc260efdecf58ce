package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-news-bulletin/internal/audio"
)

const (
	defaultPiperEndpoint = "localhost:10200"
	defaultPiperVoice    = "en_US-lessac-medium"
	piperDialTimeout     = 10 * time.Second
	piperIOTimeout       = 60 * time.Second

	// Upper bounds for the lengths announced in an event header.
	maxWyomingJSON    = 64 << 10
	maxWyomingPayload = 16 << 20
)

var errWyomingTooLarge = errors.New("wyoming event too large")

type PiperOptions struct {
	Endpoint string
	Voice    string
	Logger   *slog.Logger
}

// Piper speaks the Wyoming protocol to a Piper server. Each request opens its
// own connection.
//
// Every event on the wire is
//
//	<json_length> <payload_length>\n
//	<json>\n
//	<payload>
type Piper struct {
	endpoint string
	voice    string
	logger   *slog.Logger
}

func NewPiper(opts PiperOptions) (*Piper, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(opts.Endpoint, "tcp://"), "http://")
	if endpoint == "" {
		endpoint = defaultPiperEndpoint
	}
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return nil, fmt.Errorf("piper: invalid endpoint %q: %w", opts.Endpoint, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Piper{endpoint: endpoint, voice: opts.Voice, logger: logger}, nil
}

func (p *Piper) Name() string { return "piper" }

func (p *Piper) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, Permanent(ErrEmptyText)
	}

	voice := firstNonEmpty(req.Voice, p.voice, defaultPiperVoice)

	dialer := net.Dialer{Timeout: dialTimeout(ctx, piperDialTimeout)}
	conn, err := dialer.DialContext(ctx, "tcp", p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("piper: connect %s: %w", p.endpoint, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(piperIOTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Unblock reads when the caller gives up before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	err = writeEvent(conn, wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text":  req.Text,
			"voice": map[string]any{"name": voice},
		},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("piper: send synthesize: %w", err)
	}

	p.logger.Debug("piper synthesize", "chars", len(req.Text), "voice", voice, "endpoint", p.endpoint)

	return readSpeech(bufio.NewReader(conn))
}

// readSpeech consumes audio-start, audio-chunk and audio-stop events and
// returns the collected PCM as WAV.
func readSpeech(r io.Reader) ([]byte, error) {
	var (
		pcm   bytes.Buffer
		rate  = 22050
		chans = 1
		width = 2
	)

	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("piper: read event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			rate = intField(evt.Data, "rate", rate)
			chans = intField(evt.Data, "channels", chans)
			width = intField(evt.Data, "width", width)
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			return pcmToWAV(pcm.Bytes(), audio.Format{SampleRate: rate, Channels: chans}, width)
		case "error":
			msg, _ := evt.Data["text"].(string)
			if msg == "" {
				msg = "unknown error"
			}
			return nil, Permanent(fmt.Errorf("piper: %s", msg))
		}
	}
}

func intField(data map[string]any, key string, fallback int) int {
	if v, ok := data[key].(float64); ok && v > 0 {
		return int(v)
	}

	return fallback
}

// pcmToWAV converts signed 16-bit little-endian PCM into a WAV payload.
func pcmToWAV(pcm []byte, f audio.Format, width int) ([]byte, error) {
	if width != 2 {
		return nil, Permanent(fmt.Errorf("piper: unsupported sample width %d", width))
	}
	if err := f.Validate(); err != nil {
		return nil, Permanent(fmt.Errorf("piper: %w", err))
	}

	n := len(pcm) / 2
	n -= n % f.Channels
	buf := audio.Buffer{Format: f, Samples: make([]float32, n)}
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		buf.Samples[i] = float32(s) / 32768
	}

	return audio.EncodeWAV(buf, 16)
}

type wyomingEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "%d %d\n", len(body), len(payload))
	msg.Write(body)
	msg.WriteByte('\n')
	msg.Write(payload)

	_, err = w.Write(msg.Bytes())

	return err
}

func readEvent(r io.Reader) (wyomingEvent, []byte, error) {
	var evt wyomingEvent

	header, err := readLine(r)
	if err != nil {
		return evt, nil, err
	}

	fields := strings.Fields(header)
	if len(fields) != 2 {
		return evt, nil, fmt.Errorf("invalid header %q", header)
	}
	jsonLen, err := strconv.Atoi(fields[0])
	if err != nil || jsonLen < 0 {
		return evt, nil, fmt.Errorf("invalid json length %q", fields[0])
	}
	if jsonLen > maxWyomingJSON {
		return evt, nil, fmt.Errorf("%w: json length %d exceeds %d", errWyomingTooLarge, jsonLen, maxWyomingJSON)
	}
	payloadLen, err := strconv.Atoi(fields[1])
	if err != nil || payloadLen < 0 {
		return evt, nil, fmt.Errorf("invalid payload length %q", fields[1])
	}
	if payloadLen > maxWyomingPayload {
		return evt, nil, fmt.Errorf("%w: payload length %d exceeds %d", errWyomingTooLarge, payloadLen, maxWyomingPayload)
	}

	body := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, body); err != nil {
		return evt, nil, err
	}
	if err := json.Unmarshal(body[:jsonLen], &evt); err != nil {
		return evt, nil, err
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return evt, nil, err
		}
	}

	return evt, payload, nil
}

func readLine(r io.Reader) (string, error) {
	var line []byte
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			return "", err
		}
		if one[0] == '\n' {
			return string(line), nil
		}
		line = append(line, one[0])
		if len(line) > 256 {
			return "", errors.New("header line too long")
		}
	}
}
