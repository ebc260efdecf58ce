package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/example/go-news-bulletin/internal/config"
)

const (
	azuraAttempts = 5
	azuraBackoff  = 300 * time.Millisecond
)

// StatusError is a non-2xx AzuraCast response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}

	return false
}

// AzuraCastSink uploads the bulletin to a station's media library and, when a
// playlist is named, makes it the playlist's only entry.
type AzuraCastSink struct {
	cfg     config.AzuraCastConfig
	client  *http.Client
	backoff time.Duration
	logger  *slog.Logger
}

func NewAzuraCastSink(cfg config.AzuraCastConfig, logger *slog.Logger) (*AzuraCastSink, error) {
	if cfg.Host == "" || cfg.APIKey == "" || cfg.StationID < 1 {
		return nil, errors.New("azuracast: host, api key and station id are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")

	return &AzuraCastSink{
		cfg:     cfg,
		client:  &http.Client{Timeout: 2 * time.Minute},
		backoff: azuraBackoff,
		logger:  logger,
	}, nil
}

func (s *AzuraCastSink) Name() string { return "azuracast" }

func (s *AzuraCastSink) Publish(ctx context.Context, art Artifact) (string, error) {
	name := FormatName(s.cfg.Filename, art.CreatedAt, art.Container)
	filePath := name
	if dir := strings.Trim(s.cfg.Path, "/"); dir != "" {
		filePath = path.Join(dir, name)
	}

	var uploaded struct {
		ID int `json:"id"`
	}
	err := s.do(ctx, http.MethodPost, s.stationPath("/files"), map[string]any{
		"path": filePath,
		"file": base64.StdEncoding.EncodeToString(art.Data),
	}, &uploaded)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	if s.cfg.Playlist != "" {
		if err := s.replacePlaylist(ctx, uploaded.ID); err != nil {
			return filePath, err
		}
	}

	return fmt.Sprintf("azuracast:%d/%s#%d", s.cfg.StationID, filePath, uploaded.ID), nil
}

func (s *AzuraCastSink) replacePlaylist(ctx context.Context, fileID int) error {
	var playlists []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := s.do(ctx, http.MethodGet, s.stationPath("/playlists"), nil, &playlists); err != nil {
		return fmt.Errorf("list playlists: %w", err)
	}

	id := 0
	for _, p := range playlists {
		if p.Name == s.cfg.Playlist {
			id = p.ID
			break
		}
	}
	if id == 0 {
		s.logger.Warn("azuracast playlist not found", slog.String("playlist", s.cfg.Playlist))
		return nil
	}

	if err := s.do(ctx, http.MethodDelete, s.stationPath(fmt.Sprintf("/playlist/%d/empty", id)), nil, nil); err != nil {
		return fmt.Errorf("empty playlist: %w", err)
	}
	if err := s.do(ctx, http.MethodPut, s.stationPath(fmt.Sprintf("/file/%d", fileID)), map[string]any{"playlists": []int{id}}, nil); err != nil {
		return fmt.Errorf("add to playlist: %w", err)
	}

	return nil
}

func (s *AzuraCastSink) stationPath(suffix string) string {
	return fmt.Sprintf("%s/api/station/%d%s", s.cfg.Host, s.cfg.StationID, suffix)
}

// do sends one JSON request, retrying 5xx gateway-type failures with
// doubling backoff.
func (s *AzuraCastSink) do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	backoff := s.backoff
	var err error
	for attempt := 0; attempt < azuraAttempts; attempt++ {
		if attempt > 0 {
			s.logger.Warn("azuracast request failed; retrying",
				slog.String("method", method),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.Any("error", err),
			)
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err = s.once(ctx, method, url, payload, out)
		var se *StatusError
		if err == nil || !errors.As(err, &se) || !retryableStatus(se.Code) {
			return err
		}
	}

	return err
}

func (s *AzuraCastSink) once(ctx context.Context, method, url string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
