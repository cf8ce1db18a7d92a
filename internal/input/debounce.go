// Package input turns the active alarm's push button into snooze and
// dismiss commands.
package input

import (
	"time"

	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/hal"
	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

const (
	DefaultDebounce  = 50 * time.Millisecond
	DefaultLongPress = 1200 * time.Millisecond
)

// Target is the alarm engine as seen from the button.
type Target interface {
	ActiveButton() (id uint32, pin int, longPress time.Duration, ok bool)
	Snooze(id uint32, src model.Source) error
	Dismiss(id uint32, src model.Source) error
}

type Options struct {
	Debounce  time.Duration
	LongPress time.Duration
	Now       func() time.Time
}

// Button debounces one input at a time: whichever pin the active alarm is
// bound to. A short press snoozes on release; holding past the long-press
// threshold dismisses once.
type Button struct {
	gpio   hal.GPIO
	target Target
	opts   Options
	logger *zap.Logger

	alarmID uint32
	pin     int

	stable     bool // true = released
	pending    bool
	candidate  bool
	since      time.Time
	pressed    bool
	pressStart time.Time
	longFired  bool
}

func NewButton(gpio hal.GPIO, target Target, logger *zap.Logger, opts Options) *Button {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.LongPress <= 0 {
		opts.LongPress = DefaultLongPress
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := &Button{gpio: gpio, target: target, opts: opts, logger: logger}
	b.reset(0, 0)
	return b
}

func (b *Button) reset(id uint32, pin int) {
	b.alarmID = id
	b.pin = pin
	b.stable = true
	b.pending = false
	b.pressed = false
	b.longFired = false
}

// Tick samples the bound input once.
func (b *Button) Tick() {
	id, pin, longPress, ok := b.target.ActiveButton()
	if !ok {
		if b.pin != 0 {
			b.reset(0, 0)
		}
		return
	}
	if id != b.alarmID || pin != b.pin {
		b.reset(id, pin)
	}
	if longPress <= 0 {
		longPress = b.opts.LongPress
	}

	now := b.opts.Now()
	level := b.gpio.Read(pin)

	if level == b.stable {
		b.pending = false
	} else {
		if !b.pending || level != b.candidate {
			b.pending = true
			b.candidate = level
			b.since = now
		}
		if now.Sub(b.since) >= b.opts.Debounce {
			b.pending = false
			b.stable = level
			b.edge(id, now)
		}
	}

	if b.pressed && !b.longFired && now.Sub(b.pressStart) >= longPress {
		b.longFired = true
		b.command(id, "dismiss", b.target.Dismiss)
	}
}

func (b *Button) edge(id uint32, now time.Time) {
	if !b.stable {
		b.pressed = true
		b.pressStart = now
		b.longFired = false
		return
	}
	if b.pressed && !b.longFired {
		b.command(id, "snooze", b.target.Snooze)
	}
	b.pressed = false
}

func (b *Button) command(id uint32, name string, fn func(uint32, model.Source) error) {
	if err := fn(id, model.SourceGPIO); err != nil {
		b.logger.Debug("Button command rejected",
			zap.String("command", name),
			zap.Uint32("alarm_id", id),
			zap.Error(err),
		)
	}
}
