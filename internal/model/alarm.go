package model

import "time"

const (
	MaxAlarms     = 10
	SchemaVersion = 1

	DefaultSnoozeMinutes = 5
	DefaultVolume        = 80
	DefaultAudioPath     = "/audio/default.wav"
)

type AudioKind string

const (
	AudioLocal AudioKind = "local"
	AudioURL   AudioKind = "url"
)

type AudioSource struct {
	Type              AudioKind `json:"type" yaml:"type"`
	LocalPath         string    `json:"local_path" yaml:"local_path"`
	URL               string    `json:"url" yaml:"url"`
	FallbackLocalPath string    `json:"fallback_local_path" yaml:"fallback_local_path"`
}

type Webhooks struct {
	OnSetURL     string `json:"on_set_url" yaml:"on_set_url"`
	OnFireURL    string `json:"on_fire_url" yaml:"on_fire_url"`
	OnSnoozeURL  string `json:"on_snooze_url" yaml:"on_snooze_url"`
	OnDismissURL string `json:"on_dismiss_url" yaml:"on_dismiss_url"`
}

// AlarmDefinition is the persisted record of one slot. ID 0 marks an empty slot.
type AlarmDefinition struct {
	ID      uint32 `json:"id" yaml:"id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Label   string `json:"label" yaml:"label"`

	Hour     int    `json:"hour" yaml:"hour"`
	Minute   int    `json:"minute" yaml:"minute"`
	DaysMask uint8  `json:"days_bitmask" yaml:"days_bitmask"` // bit0=Mon..bit6=Sun
	OnceDate string `json:"once_date" yaml:"once_date"`       // YYYY-MM-DD or ""

	SnoozeMinutes int `json:"snooze_minutes" yaml:"snooze_minutes"`

	GPIOPin     int `json:"gpio_pin" yaml:"gpio_pin"`
	LongPressMs int `json:"long_press_ms" yaml:"long_press_ms"` // 0 = global default

	InboundToken string `json:"inbound_webhook_token" yaml:"inbound_webhook_token"`

	Webhooks Webhooks    `json:"outbound_webhooks" yaml:"outbound_webhooks"`
	Audio    AudioSource `json:"audio_source" yaml:"audio_source"`
	Volume   int         `json:"volume" yaml:"volume"`

	// Truncated to 32 bits, matching the de-duplication comparison.
	LastFiredUnix uint32 `json:"last_fired_unix" yaml:"last_fired_unix"`
}

func (a AlarmDefinition) Empty() bool { return a.ID == 0 }

func (a AlarmDefinition) OneShot() bool { return a.OnceDate != "" }

// EffectiveSnooze applies the 5 minute default for non-positive values.
func (a AlarmDefinition) EffectiveSnooze() time.Duration {
	m := a.SnoozeMinutes
	if m <= 0 {
		m = DefaultSnoozeMinutes
	}
	return time.Duration(m) * time.Minute
}

// NewAlarm returns the definition used for freshly created alarms.
func NewAlarm(id uint32) AlarmDefinition {
	return AlarmDefinition{
		ID:            id,
		Enabled:       true,
		Label:         "Alarm",
		Hour:          7,
		Minute:        30,
		DaysMask:      0x1F,
		SnoozeMinutes: DefaultSnoozeMinutes,
		Audio: AudioSource{
			Type:      AudioLocal,
			LocalPath: DefaultAudioPath,
		},
		Volume: DefaultVolume,
	}
}

// AlarmRuntime is never persisted; it is rebuilt at boot and after every mutation.
type AlarmRuntime struct {
	NextFire    time.Time `json:"-"`
	Ringing     bool      `json:"ringing"`
	Snoozed     bool      `json:"snoozed"`
	SnoozeUntil time.Time `json:"-"`
	CurrentFire time.Time `json:"-"`
	// FiredDisabled marks a ring that began or continued with the alarm
	// disabled: a one-shot that disabled itself, or a manual fire. Only such
	// a ring may come back from snooze while the alarm is disabled.
	FiredDisabled bool `json:"-"`
}

// AlarmView is the JSON shape served by the API.
type AlarmView struct {
	AlarmDefinition
	NextFireUnix    int64 `json:"next_fire_unix"`
	Ringing         bool  `json:"ringing"`
	Snoozed         bool  `json:"snoozed"`
	SnoozeUntilUnix int64 `json:"snooze_until_unix"`
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func NewAlarmView(a AlarmDefinition, r AlarmRuntime) AlarmView {
	return AlarmView{
		AlarmDefinition: a,
		NextFireUnix:    unixOrZero(r.NextFire),
		Ringing:         r.Ringing,
		Snoozed:         r.Snoozed,
		SnoozeUntilUnix: unixOrZero(r.SnoozeUntil),
	}
}
