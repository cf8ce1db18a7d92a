package model

type Event string

const (
	EventSet        Event = "set"
	EventFired      Event = "fired"
	EventSnoozed    Event = "snoozed"
	EventDismissed  Event = "dismissed"
	EventEnabled    Event = "enabled"
	EventDisabled   Event = "disabled"
	EventAudioError Event = "audio_error"
)

type Source string

const (
	SourceSystem  Source = "system"
	SourceWebGUI  Source = "webgui"
	SourceGPIO    Source = "gpio"
	SourceWebhook Source = "webhook"
)

// Payload is the JSON body posted to outbound endpoints.
type Payload struct {
	DeviceID     string         `json:"device_id"`
	AlarmID      uint32         `json:"alarm_id"`
	Event        Event          `json:"event"`
	Source       Source         `json:"source"`
	TsISO        string         `json:"ts_iso"`
	TsUnix       int64          `json:"ts_unix"`
	NextFireISO  string         `json:"next_fire_iso"`
	AlarmEnabled bool           `json:"alarm_enabled"`
	Detail       map[string]any `json:"detail"`
}

// Endpoint picks the outbound URL for an event; audio_error shares the fire endpoint.
func (w Webhooks) Endpoint(ev Event) string {
	switch ev {
	case EventFired, EventAudioError:
		return w.OnFireURL
	case EventSnoozed:
		return w.OnSnoozeURL
	case EventDismissed:
		return w.OnDismissURL
	default:
		return w.OnSetURL
	}
}
