package alarm

import (
	"time"

	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

// isoLayout is local time with a colon-separated UTC offset.
const isoLayout = "2006-01-02T15:04:05-07:00"

// BuildPayload snapshots the event for an alarm. The result shares no memory
// with engine state.
func (e *Engine) BuildPayload(a model.AlarmDefinition, ev model.Event, src model.Source, detail map[string]any) model.Payload {
	now := e.now()
	p := model.Payload{
		DeviceID:     e.opts.DeviceID,
		AlarmID:      a.ID,
		Event:        ev,
		Source:       src,
		TsISO:        now.Format(isoLayout),
		TsUnix:       now.Unix(),
		AlarmEnabled: a.Enabled,
		Detail:       make(map[string]any, len(detail)),
	}
	for k, v := range detail {
		p.Detail[k] = v
	}
	if i := e.index(a.ID); i >= 0 {
		if next := e.rt[i].NextFire; !next.IsZero() {
			p.NextFireISO = next.In(e.opts.Location).Format(isoLayout)
		}
	}
	return p
}

// emit queues a notification when the alarm has an endpoint for ev.
func (e *Engine) emit(a model.AlarmDefinition, ev model.Event, src model.Source, detail map[string]any) {
	url := a.Webhooks.Endpoint(ev)
	if url == "" {
		return
	}
	if !e.notifier.Enqueue(url, e.BuildPayload(a, ev, src, detail)) {
		e.logger.Warn("Notification queue full, event dropped",
			zap.Uint32("alarm_id", a.ID),
			zap.String("event", string(ev)),
		)
	}
}

// ActiveButton returns the input bound to the active alarm. longPress is
// zero when the alarm uses the global default.
func (e *Engine) ActiveButton() (id uint32, pin int, longPress time.Duration, ok bool) {
	if e.active < 0 {
		return 0, 0, 0, false
	}
	a := &e.slots[e.active]
	if a.GPIOPin <= 0 {
		return a.ID, 0, 0, false
	}
	return a.ID, a.GPIOPin, time.Duration(a.LongPressMs) * time.Millisecond, true
}
