package alarm

import (
	"strings"
	"unicode/utf8"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

const (
	maxLabelLen     = 31
	maxSnoozeMinute = 240
)

type WebhooksPatch struct {
	OnSetURL     *string `json:"on_set_url" yaml:"on_set_url"`
	OnFireURL    *string `json:"on_fire_url" yaml:"on_fire_url"`
	OnSnoozeURL  *string `json:"on_snooze_url" yaml:"on_snooze_url"`
	OnDismissURL *string `json:"on_dismiss_url" yaml:"on_dismiss_url"`
}

type AudioPatch struct {
	Type              *string `json:"type" yaml:"type"`
	LocalPath         *string `json:"local_path" yaml:"local_path"`
	URL               *string `json:"url" yaml:"url"`
	FallbackLocalPath *string `json:"fallback_local_path" yaml:"fallback_local_path"`
}

// Patch is a partial definition update. Nil fields are left untouched.
type Patch struct {
	Label         *string        `json:"label" yaml:"label"`
	Enabled       *bool          `json:"enabled" yaml:"enabled"`
	Hour          *int           `json:"hour" yaml:"hour"`
	Minute        *int           `json:"minute" yaml:"minute"`
	DaysMask      *uint8         `json:"days_bitmask" yaml:"days_bitmask"`
	OnceDate      *string        `json:"once_date" yaml:"once_date"`
	SnoozeMinutes *int           `json:"snooze_minutes" yaml:"snooze_minutes"`
	GPIOPin       *int           `json:"gpio_pin" yaml:"gpio_pin"`
	LongPressMs   *int           `json:"long_press_ms" yaml:"long_press_ms"`
	InboundToken  *string        `json:"inbound_webhook_token" yaml:"inbound_webhook_token"`
	Webhooks      *WebhooksPatch `json:"outbound_webhooks" yaml:"outbound_webhooks"`
	Audio         *AudioPatch    `json:"audio_source" yaml:"audio_source"`
	Volume        *int           `json:"volume" yaml:"volume"`
}

func setStr(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// truncateLabel caps s at maxLabelLen bytes without splitting a rune.
func truncateLabel(s string) string {
	if len(s) <= maxLabelLen {
		return s
	}
	n := maxLabelLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Apply returns a with the patch applied and validated. a is not modified
// when an error is returned.
func (p Patch) Apply(a model.AlarmDefinition) (model.AlarmDefinition, error) {
	if p.Label != nil {
		a.Label = truncateLabel(*p.Label)
	}
	if p.Enabled != nil {
		a.Enabled = *p.Enabled
	}
	setInt(&a.Hour, p.Hour)
	setInt(&a.Minute, p.Minute)
	if p.DaysMask != nil {
		a.DaysMask = *p.DaysMask & 0x7F
	}
	if p.OnceDate != nil {
		if d := *p.OnceDate; d != "" && len(d) != 10 {
			return a, &ValidationError{Field: "once_date", Code: CodeOnceDateInvalid}
		}
		a.OnceDate = *p.OnceDate
	}
	setInt(&a.SnoozeMinutes, p.SnoozeMinutes)
	setInt(&a.GPIOPin, p.GPIOPin)
	setInt(&a.LongPressMs, p.LongPressMs)
	setStr(&a.InboundToken, p.InboundToken)
	setInt(&a.Volume, p.Volume)

	if w := p.Webhooks; w != nil {
		setStr(&a.Webhooks.OnSetURL, w.OnSetURL)
		setStr(&a.Webhooks.OnFireURL, w.OnFireURL)
		setStr(&a.Webhooks.OnSnoozeURL, w.OnSnoozeURL)
		setStr(&a.Webhooks.OnDismissURL, w.OnDismissURL)
	}
	if s := p.Audio; s != nil {
		if s.Type != nil {
			a.Audio.Type = model.AudioLocal
			if strings.EqualFold(*s.Type, string(model.AudioURL)) {
				a.Audio.Type = model.AudioURL
			}
		}
		setStr(&a.Audio.LocalPath, s.LocalPath)
		setStr(&a.Audio.URL, s.URL)
		setStr(&a.Audio.FallbackLocalPath, s.FallbackLocalPath)
	}

	if err := Validate(&a); err != nil {
		return a, err
	}
	return a, nil
}

// Validate checks ranges and clamps volume into 0-100.
func Validate(a *model.AlarmDefinition) error {
	if a.Hour < 0 || a.Hour > 23 {
		return &ValidationError{Field: "hour", Code: CodeTimeInvalid}
	}
	if a.Minute < 0 || a.Minute > 59 {
		return &ValidationError{Field: "minute", Code: CodeTimeInvalid}
	}
	if a.SnoozeMinutes < 0 || a.SnoozeMinutes > maxSnoozeMinute {
		return &ValidationError{Field: "snooze_minutes", Code: CodeSnoozeInvalid}
	}
	if a.OnceDate != "" && len(a.OnceDate) != 10 {
		return &ValidationError{Field: "once_date", Code: CodeOnceDateInvalid}
	}
	if a.Volume > 100 {
		a.Volume = 100
	}
	if a.Volume < 0 {
		a.Volume = 0
	}
	return nil
}

// PatchFrom builds a patch that sets every field of a. Used by imports.
func PatchFrom(a model.AlarmDefinition) Patch {
	typ := string(a.Audio.Type)
	return Patch{
		Label:         &a.Label,
		Enabled:       &a.Enabled,
		Hour:          &a.Hour,
		Minute:        &a.Minute,
		DaysMask:      &a.DaysMask,
		OnceDate:      &a.OnceDate,
		SnoozeMinutes: &a.SnoozeMinutes,
		GPIOPin:       &a.GPIOPin,
		LongPressMs:   &a.LongPressMs,
		InboundToken:  &a.InboundToken,
		Webhooks: &WebhooksPatch{
			OnSetURL:     &a.Webhooks.OnSetURL,
			OnFireURL:    &a.Webhooks.OnFireURL,
			OnSnoozeURL:  &a.Webhooks.OnSnoozeURL,
			OnDismissURL: &a.Webhooks.OnDismissURL,
		},
		Audio: &AudioPatch{
			Type:              &typ,
			LocalPath:         &a.Audio.LocalPath,
			URL:               &a.Audio.URL,
			FallbackLocalPath: &a.Audio.FallbackLocalPath,
		},
		Volume: &a.Volume,
	}
}
