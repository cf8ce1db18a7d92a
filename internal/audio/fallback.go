package audio

import (
	"context"

	"github.com/spf13/afero"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

// PlayAlarm walks the fallback chain for an alarm: its primary source, its
// fallback file, then the system default asset if present. It returns nil
// as soon as one starts, otherwise the error of the last attempt made.
func (p *Player) PlayAlarm(ctx context.Context, a model.AlarmDefinition, defaultPath string) error {
	vol := a.Volume
	if vol < 0 {
		vol = 0
	}
	if vol > 100 {
		vol = 100
	}
	volume := uint8(vol)

	var last error
	try := func(play func() error) bool {
		if err := play(); err != nil {
			last = err
			return false
		}
		return true
	}

	if a.Audio.Type == model.AudioURL {
		if a.Audio.URL != "" && try(func() error { return p.PlayURL(ctx, a.Audio.URL, volume) }) {
			return nil
		}
	} else if a.Audio.LocalPath != "" && try(func() error { return p.PlayLocal(a.Audio.LocalPath, volume) }) {
		return nil
	}

	if a.Audio.FallbackLocalPath != "" && try(func() error { return p.PlayLocal(a.Audio.FallbackLocalPath, volume) }) {
		return nil
	}

	if defaultPath != "" {
		if ok, _ := afero.Exists(p.fs, defaultPath); ok && try(func() error { return p.PlayLocal(defaultPath, volume) }) {
			return nil
		}
	}

	if last == nil {
		last = ErrNoSource
		p.lastErr = last.Error()
	}
	return last
}
