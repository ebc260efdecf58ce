package tts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "manifest.json")
	writeFile(t, path, content)

	return path
}

func TestNewVoiceManagerRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"invalid json", "{bad json"},
		{"empty id", `{"voices":[{"id":"","path":"v.bin"}]}`},
		{"empty path", `{"voices":[{"id":"v1","path":""}]}`},
		{"duplicate id", `{"voices":[{"id":"v1","path":"a.bin"},{"id":"v1","path":"b.bin"}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tc.manifest)
			if _, err := NewVoiceManager(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	t.Run("empty path argument", func(t *testing.T) {
		if _, err := NewVoiceManager(""); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := NewVoiceManager(filepath.Join(t.TempDir(), "none.json")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestVoiceManagerResolve(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "anchor.safetensors"), "state")
	path := writeManifest(t, dir, `{"voices":[
		{"id":"anchor","path":"anchor.safetensors","license":"CC0"},
		{"id":"gone","path":"gone.safetensors","license":"CC0"}
	]}`)

	vm, err := NewVoiceManager(path)
	if err != nil {
		t.Fatalf("NewVoiceManager: %v", err)
	}

	tests := []struct {
		name    string
		voice   string
		want    string
		wantErr bool
	}{
		{"manifest id resolves to file", "anchor", filepath.Join(dir, "anchor.safetensors"), false},
		{"unknown id passes through", "alba", "alba", false},
		{"blank stays blank", "  ", "", false},
		{"listed voice with missing file fails", "gone", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := vm.Resolve(tc.voice)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Resolve(%q) err = %v; wantErr %v", tc.voice, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Resolve(%q) = %q; want %q", tc.voice, got, tc.want)
			}
		})
	}

	if _, err := vm.ResolvePath("alba"); !errors.Is(err, ErrUnknownVoice) {
		t.Errorf("ResolvePath(unknown) err = %v; want ErrUnknownVoice", err)
	}
}

func TestNilVoiceManagerPassesThrough(t *testing.T) {
	var vm *VoiceManager

	got, err := vm.Resolve("alba")
	if err != nil || got != "alba" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
}

func TestVoiceManagerUpsertAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices", "manifest.json")

	vm, err := OpenVoiceManager(path)
	if err != nil {
		t.Fatalf("OpenVoiceManager: %v", err)
	}
	if err := vm.Upsert(Voice{ID: "anchor", Path: "anchor.safetensors", License: "CC0"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := vm.Upsert(Voice{ID: "anchor", Path: "anchor-v2.safetensors"}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	if err := vm.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewVoiceManager(path)
	if err != nil {
		t.Fatalf("NewVoiceManager: %v", err)
	}

	voices := reloaded.ListVoices()
	if len(voices) != 1 || voices[0].Path != "anchor-v2.safetensors" {
		t.Fatalf("voices = %+v", voices)
	}

	voices[0].ID = "mutated"
	if reloaded.ListVoices()[0].ID != "anchor" {
		t.Error("ListVoices did not return an independent copy")
	}
}
