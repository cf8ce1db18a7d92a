// Package alarm owns the alarm slots and the ringing/snoozed/idle state
// machine. An Engine is not safe for concurrent use; the worker loop is its
// only caller.
package alarm

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
	"github.com/CarlEnstrom/Goodmornin/internal/schedule"
)

// MinValidEpoch is the earliest wall clock the scheduler trusts.
const MinValidEpoch = 1700000000

func TimeValid(t time.Time) bool { return t.Unix() >= MinValidEpoch }

type Player interface {
	PlayAlarm(ctx context.Context, a model.AlarmDefinition, defaultPath string) error
	Stop()
	IsPlaying() bool
}

type Notifier interface {
	Enqueue(url string, p model.Payload) bool
}

type Store interface {
	Load(ctx context.Context, slot int) (model.AlarmDefinition, error)
	Save(ctx context.Context, slot int, a model.AlarmDefinition) error
}

type Options struct {
	DeviceID         string
	Location         *time.Location
	DefaultAudioPath string
	// IDSeed mixes device identity into generated alarm ids.
	IDSeed uint32
	Now    func() time.Time
}

type Engine struct {
	slots  [model.MaxAlarms]model.AlarmDefinition
	rt     [model.MaxAlarms]model.AlarmRuntime
	active int

	opts     Options
	started  time.Time
	player   Player
	notifier Notifier
	store    Store
	logger   *zap.Logger

	lastAudioErr string
}

func NewEngine(opts Options, player Player, notifier Notifier, store Store, logger *zap.Logger) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultAudioPath == "" {
		opts.DefaultAudioPath = model.DefaultAudioPath
	}
	return &Engine{
		active:   -1,
		opts:     opts,
		started:  opts.Now(),
		player:   player,
		notifier: notifier,
		store:    store,
		logger:   logger,
	}
}

func (e *Engine) now() time.Time { return e.opts.Now().In(e.opts.Location) }

func (e *Engine) Location() *time.Location { return e.opts.Location }

func (e *Engine) DeviceID() string { return e.opts.DeviceID }

// Load reads every slot from the store and rebuilds all runtimes. Slots that
// fail to load stay empty.
func (e *Engine) Load(ctx context.Context) {
	for i := range e.slots {
		a, err := e.store.Load(ctx, i)
		if err != nil {
			e.logger.Error("Failed to load alarm slot", zap.Int("slot", i), zap.Error(err))
			a = model.AlarmDefinition{}
		}
		e.slots[i] = a
	}
	e.RecomputeAll()
}

// RecomputeAll resets every runtime. Any ringing or snoozed state is lost.
func (e *Engine) RecomputeAll() {
	now := e.now()
	for i := range e.slots {
		e.rt[i] = model.AlarmRuntime{}
		if next, ok := schedule.NextFire(e.slots[i], now, e.opts.Location); ok {
			e.rt[i].NextFire = next
		}
	}
	e.active = -1
}

func (e *Engine) recompute(i int, now time.Time) {
	e.rt[i].NextFire = time.Time{}
	if next, ok := schedule.NextFire(e.slots[i], now, e.opts.Location); ok {
		e.rt[i].NextFire = next
	}
}

func (e *Engine) persist(ctx context.Context, i int) {
	if err := e.store.Save(ctx, i, e.slots[i]); err != nil {
		e.logger.Error("Failed to persist alarm slot",
			zap.Int("slot", i),
			zap.Uint32("alarm_id", e.slots[i].ID),
			zap.Error(err),
		)
	}
}

func (e *Engine) index(id uint32) int {
	if id == 0 {
		return -1
	}
	for i := range e.slots {
		if e.slots[i].ID == id {
			return i
		}
	}
	return -1
}

// Tick fires at most one due alarm, scanning slots in index order.
func (e *Engine) Tick(ctx context.Context) {
	now := e.now()
	if !TimeValid(now) {
		return
	}
	for i := range e.slots {
		a := &e.slots[i]
		if a.Empty() {
			continue
		}
		r := &e.rt[i]
		// Disabling a ringing alarm ends the ring, so a disabled alarm is only
		// due here when it was already disabled as it fired.
		if !a.Enabled && !(i == e.active && r.Snoozed && r.FiredDisabled) {
			continue
		}
		if r.NextFire.IsZero() {
			e.recompute(i, now)
		}
		if r.NextFire.IsZero() {
			continue
		}
		if !now.Before(r.NextFire) {
			e.fire(ctx, i, model.SourceSystem, true)
			return
		}
	}
}

// Fire starts ringing the alarm immediately.
func (e *Engine) Fire(ctx context.Context, id uint32, src model.Source) error {
	i := e.index(id)
	if i < 0 {
		return ErrNotFound
	}
	e.fire(ctx, i, src, false)
	return nil
}

func (e *Engine) fire(ctx context.Context, i int, src model.Source, scheduled bool) {
	if e.active >= 0 && e.active != i {
		e.stopActive(model.SourceSystem, false)
	}

	a := &e.slots[i]
	r := &e.rt[i]
	now := e.now()

	e.active = i
	r.Ringing = true
	r.Snoozed = false
	r.SnoozeUntil = time.Time{}
	if scheduled && !r.NextFire.IsZero() {
		r.CurrentFire = r.NextFire
	} else {
		r.CurrentFire = now
	}

	a.LastFiredUnix = uint32(r.CurrentFire.Unix())
	e.persist(ctx, i)

	e.logger.Info("Alarm fired",
		zap.Uint32("alarm_id", a.ID),
		zap.String("label", a.Label),
		zap.String("source", string(src)),
		zap.Time("scheduled", r.CurrentFire),
	)

	if err := e.player.PlayAlarm(ctx, *a, e.opts.DefaultAudioPath); err != nil {
		e.lastAudioErr = err.Error()
		e.logger.Warn("Alarm audio failed",
			zap.Uint32("alarm_id", a.ID),
			zap.String("error", e.lastAudioErr),
		)
		e.emit(*a, model.EventAudioError, src, map[string]any{"error": e.lastAudioErr})
	} else {
		e.lastAudioErr = ""
	}

	e.emit(*a, model.EventFired, src, nil)

	if a.OneShot() {
		a.Enabled = false
		a.OnceDate = ""
		e.persist(ctx, i)
	}
	r.FiredDisabled = !a.Enabled

	e.recompute(i, now)
}

// Snooze silences the ringing alarm and schedules it to ring again after its
// snooze interval.
func (e *Engine) Snooze(id uint32, src model.Source) error {
	i := e.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if i != e.active {
		return ErrNotRinging
	}

	a := &e.slots[i]
	r := &e.rt[i]
	e.player.Stop()
	r.Ringing = false
	r.Snoozed = true
	r.SnoozeUntil = e.now().Add(a.EffectiveSnooze())
	r.NextFire = r.SnoozeUntil

	e.logger.Info("Alarm snoozed",
		zap.Uint32("alarm_id", a.ID),
		zap.String("source", string(src)),
		zap.Time("until", r.SnoozeUntil),
	)
	e.emit(*a, model.EventSnoozed, src, nil)
	return nil
}

// Dismiss stops the active alarm and returns it to idle.
func (e *Engine) Dismiss(id uint32, src model.Source) error {
	i := e.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if i != e.active {
		return ErrNotRinging
	}
	e.stopActive(src, true)
	return nil
}

func (e *Engine) stopActive(src model.Source, notify bool) {
	i := e.active
	if i < 0 {
		return
	}
	a := &e.slots[i]
	r := &e.rt[i]

	e.player.Stop()
	r.Ringing = false
	r.Snoozed = false
	r.SnoozeUntil = time.Time{}
	r.FiredDisabled = false
	e.active = -1

	e.logger.Info("Alarm stopped",
		zap.Uint32("alarm_id", a.ID),
		zap.String("source", string(src)),
		zap.Bool("dismissed", notify),
	)
	if notify {
		e.emit(*a, model.EventDismissed, src, nil)
	}
	e.recompute(i, e.now())
}

// Active returns the alarm currently ringing or snoozed.
func (e *Engine) Active() (model.AlarmDefinition, model.AlarmRuntime, bool) {
	if e.active < 0 {
		return model.AlarmDefinition{}, model.AlarmRuntime{}, false
	}
	return e.slots[e.active], e.rt[e.active], true
}

// Alarms lists occupied slots in index order.
func (e *Engine) Alarms() []model.AlarmView {
	out := make([]model.AlarmView, 0, model.MaxAlarms)
	for i := range e.slots {
		if e.slots[i].Empty() {
			continue
		}
		out = append(out, model.NewAlarmView(e.slots[i], e.rt[i]))
	}
	return out
}

// Definitions returns a copy of every occupied slot in slot order.
func (e *Engine) Definitions() []model.AlarmDefinition {
	out := make([]model.AlarmDefinition, 0, model.MaxAlarms)
	for i := range e.slots {
		if !e.slots[i].Empty() {
			out = append(out, e.slots[i])
		}
	}
	return out
}

func (e *Engine) Get(id uint32) (model.AlarmView, error) {
	i := e.index(id)
	if i < 0 {
		return model.AlarmView{}, ErrNotFound
	}
	return model.NewAlarmView(e.slots[i], e.rt[i]), nil
}

// Authorize checks an inbound command token against the alarm's secret.
func (e *Engine) Authorize(id uint32, token string) error {
	i := e.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if token == "" {
		return ErrMissingToken
	}
	if token != e.slots[i].InboundToken {
		return ErrBadToken
	}
	return nil
}

// TestAudio plays the alarm's sound through the fallback chain without
// changing any alarm state.
func (e *Engine) TestAudio(ctx context.Context, id uint32) error {
	i := e.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if err := e.player.PlayAlarm(ctx, e.slots[i], e.opts.DefaultAudioPath); err != nil {
		e.lastAudioErr = err.Error()
		return err
	}
	e.lastAudioErr = ""
	return nil
}

// FileInUse reports whether any alarm plays p as its primary or fallback
// local file. Paths compare after cleaning, with or without a leading slash.
func (e *Engine) FileInUse(p string) bool {
	p = cleanPath(p)
	for i := range e.slots {
		a := &e.slots[i]
		if a.Empty() {
			continue
		}
		if a.Audio.LocalPath != "" && cleanPath(a.Audio.LocalPath) == p {
			return true
		}
		if a.Audio.FallbackLocalPath != "" && cleanPath(a.Audio.FallbackLocalPath) == p {
			return true
		}
	}
	return false
}

func cleanPath(p string) string { return path.Clean("/" + p) }

type Status struct {
	DeviceID       string `json:"device_id"`
	TimeValid      bool   `json:"time_valid"`
	TsISO          string `json:"ts_iso"`
	TsUnix         int64  `json:"ts_unix"`
	ActiveAlarmID  uint32 `json:"active_alarm_id"`
	AudioPlaying   bool   `json:"audio_playing"`
	LastAudioError string `json:"last_audio_error"`
}

func (e *Engine) Status() Status {
	now := e.now()
	s := Status{
		DeviceID:       e.opts.DeviceID,
		TimeValid:      TimeValid(now),
		TsISO:          now.Format(isoLayout),
		TsUnix:         now.Unix(),
		AudioPlaying:   e.player.IsPlaying(),
		LastAudioError: e.lastAudioErr,
	}
	if e.active >= 0 {
		s.ActiveAlarmID = e.slots[e.active].ID
	}
	return s
}

func (e *Engine) LastAudioError() string { return e.lastAudioErr }
