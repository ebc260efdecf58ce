package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var ErrUnknownVoice = errors.New("unknown voice id")

// Voice is one entry of the voice manifest: an ID mapped to an exported
// voice-state file for the pocket-tts provider.
type Voice struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	License string `json:"license"`
}

type voiceManifest struct {
	Voices []Voice `json:"voices"`
}

// VoiceManager reads and updates a JSON voice manifest. Relative voice paths
// resolve against the manifest's directory.
type VoiceManager struct {
	manifestPath string
	baseDir      string
	voices       []Voice
}

func NewVoiceManager(manifestPath string) (*VoiceManager, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read voice manifest: %w", err)
	}

	var manifest voiceManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode voice manifest: %w", err)
	}

	mgr := &VoiceManager{manifestPath: manifestPath, baseDir: filepath.Dir(manifestPath)}
	for _, v := range manifest.Voices {
		if err := mgr.add(v); err != nil {
			return nil, err
		}
	}

	return mgr, nil
}

// OpenVoiceManager is NewVoiceManager, except a missing manifest yields an
// empty manager that Save will create.
func OpenVoiceManager(manifestPath string) (*VoiceManager, error) {
	if _, err := os.Stat(manifestPath); errors.Is(err, os.ErrNotExist) && manifestPath != "" {
		return &VoiceManager{manifestPath: manifestPath, baseDir: filepath.Dir(manifestPath)}, nil
	}

	return NewVoiceManager(manifestPath)
}

func (m *VoiceManager) add(v Voice) error {
	if v.ID == "" {
		return errors.New("voice manifest contains empty id")
	}
	if v.Path == "" {
		return fmt.Errorf("voice %q has empty path", v.ID)
	}
	if m.index(v.ID) >= 0 {
		return fmt.Errorf("duplicate voice id %q", v.ID)
	}

	m.voices = append(m.voices, v)

	return nil
}

func (m *VoiceManager) index(id string) int {
	return slices.IndexFunc(m.voices, func(v Voice) bool { return v.ID == id })
}

func (m *VoiceManager) ListVoices() []Voice {
	return slices.Clone(m.voices)
}

// Upsert adds v or replaces the entry with the same ID.
func (m *VoiceManager) Upsert(v Voice) error {
	if i := m.index(v.ID); i >= 0 {
		if v.Path == "" {
			return fmt.Errorf("voice %q has empty path", v.ID)
		}
		m.voices[i] = v
		return nil
	}

	return m.add(v)
}

// Save writes the manifest back to disk.
func (m *VoiceManager) Save() error {
	data, err := json.MarshalIndent(voiceManifest{Voices: m.voices}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	return os.WriteFile(m.manifestPath, append(data, '\n'), 0o644)
}

func (m *VoiceManager) ResolvePath(id string) (string, error) {
	i := m.index(id)
	if i < 0 {
		return "", fmt.Errorf("%w %q", ErrUnknownVoice, id)
	}

	resolved := m.voices[i].Path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(m.baseDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("voice file for %q: %w", id, err)
	}

	return resolved, nil
}

// Resolve maps a configured voice to what the pocket-tts CLI expects: a
// manifest ID becomes its file path, anything else (built-in voice names,
// explicit paths) passes through. Safe on a nil manager.
func (m *VoiceManager) Resolve(voice string) (string, error) {
	voice = strings.TrimSpace(voice)
	if voice == "" || m == nil {
		return voice, nil
	}

	path, err := m.ResolvePath(voice)
	if errors.Is(err, ErrUnknownVoice) {
		return voice, nil
	}

	return path, err
}
