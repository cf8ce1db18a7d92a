package storage

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/CarlEnstrom/Goodmornin/internal/audio"
)

const (
	AudioDir = "/audio"

	defaultAssetRate = 16000
	maxNameLen       = 64
)

var ErrBadExtension = errors.New("bad_ext")

// EnsureDefaultAudio writes one second of silent 16 kHz mono PCM at name
// unless a file is already there.
func EnsureDefaultAudio(fs afero.Fs, name string) (created bool, err error) {
	if ok, err := afero.Exists(fs, name); err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", name, err)
	} else if ok {
		return false, nil
	}
	if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path.Dir(name), err)
	}

	dataSize := uint32(defaultAssetRate * 2)
	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, audio.EncodeWAVHeader(defaultAssetRate, 1, dataSize)...)
	buf = append(buf, make([]byte, dataSize)...)

	if err := afero.WriteFile(fs, name, buf, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", name, err)
	}
	return true, nil
}

type FileInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// ListFiles returns the regular files directly under dir, sorted by name. A
// missing directory lists as empty.
func ListFiles(fs afero.Fs, dir string) ([]FileInfo, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if ok, _ := afero.DirExists(fs, dir); !ok {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Path: path.Join(dir, e.Name()), Size: e.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SanitizeName keeps letters, digits and "_-." and caps the length. An empty
// result becomes "file".
func SanitizeName(name string) string {
	var b strings.Builder
	for _, c := range path.Base(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
			b.WriteRune(c)
		}
	}
	out := b.String()
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	if out == "" || out == "." || out == ".." {
		out = "file"
	}
	return out
}

// UsedBytes sums the sizes of every regular file on fs.
func UsedBytes(fs afero.Fs) (int64, error) {
	var used int64
	err := afero.Walk(fs, "/", func(_ string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			used += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk filesystem: %w", err)
	}
	return used, nil
}

func allowedAudio(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".wav") || strings.HasSuffix(n, ".mp3")
}

// SaveAudio stores r under AudioDir as the sanitized form of name and
// returns the stored path. Only .wav and .mp3 are accepted.
func SaveAudio(fs afero.Fs, name string, r io.Reader) (string, error) {
	clean := SanitizeName(name)
	if !allowedAudio(clean) {
		return "", ErrBadExtension
	}
	if err := fs.MkdirAll(AudioDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", AudioDir, err)
	}
	dst := path.Join(AudioDir, clean)
	if err := afero.WriteReader(fs, dst, r); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return dst, nil
}
