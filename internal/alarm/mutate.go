package alarm

import (
	"context"

	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

const idMixer = 2654435761

// newID derives an odd id from uptime and device identity, stepping past
// ids already in use.
func (e *Engine) newID() uint32 {
	ms := uint32(e.opts.Now().Sub(e.started).Milliseconds())
	id := (ms ^ (e.opts.IDSeed * idMixer)) | 1
	for e.index(id) >= 0 {
		id += 2
	}
	return id
}

func (e *Engine) freeSlot() int {
	for i := range e.slots {
		if e.slots[i].Empty() {
			return i
		}
	}
	return -1
}

// Create stores a new alarm in the first free slot, starting from the
// creation defaults.
func (e *Engine) Create(ctx context.Context, p Patch, src model.Source) (model.AlarmDefinition, error) {
	i := e.freeSlot()
	if i < 0 {
		return model.AlarmDefinition{}, ErrNoFreeSlot
	}
	a, err := p.Apply(model.NewAlarm(e.newID()))
	if err != nil {
		return model.AlarmDefinition{}, err
	}

	e.slots[i] = a
	e.rt[i] = model.AlarmRuntime{}
	e.recompute(i, e.now())
	e.persist(ctx, i)

	e.logger.Info("Alarm created", zap.Uint32("alarm_id", a.ID), zap.Int("slot", i))
	e.emit(a, model.EventSet, src, nil)
	return a, nil
}

// Update applies p to an existing alarm. Editing the active alarm silences
// it and drops any pending snooze.
func (e *Engine) Update(ctx context.Context, id uint32, p Patch, src model.Source) (model.AlarmDefinition, error) {
	i := e.index(id)
	if i < 0 {
		return model.AlarmDefinition{}, ErrNotFound
	}
	a, err := p.Apply(e.slots[i])
	if err != nil {
		return model.AlarmDefinition{}, err
	}

	if i == e.active {
		e.stopActive(model.SourceSystem, false)
	}
	e.slots[i] = a
	e.persist(ctx, i)
	e.recompute(i, e.now())

	e.logger.Info("Alarm updated", zap.Uint32("alarm_id", id))
	e.emit(a, model.EventSet, src, nil)
	return a, nil
}

// Delete clears the slot. Deleting the active alarm silences it first.
func (e *Engine) Delete(ctx context.Context, id uint32) error {
	i := e.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if i == e.active {
		e.stopActive(model.SourceSystem, false)
	}
	e.slots[i] = model.AlarmDefinition{}
	e.rt[i] = model.AlarmRuntime{}
	e.persist(ctx, i)

	e.logger.Info("Alarm deleted", zap.Uint32("alarm_id", id), zap.Int("slot", i))
	return nil
}

func (e *Engine) SetEnabled(ctx context.Context, id uint32, enabled bool, src model.Source) error {
	i := e.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if i == e.active {
		e.stopActive(model.SourceSystem, false)
	}
	a := &e.slots[i]
	a.Enabled = enabled
	e.persist(ctx, i)
	e.recompute(i, e.now())

	ev := model.EventDisabled
	if enabled {
		ev = model.EventEnabled
	}
	e.logger.Info("Alarm toggled", zap.Uint32("alarm_id", id), zap.Bool("enabled", enabled))
	e.emit(*a, ev, src, nil)
	return nil
}

// Replace discards every slot and stores defs in order. Definitions without
// an id get a fresh one; invalid definitions are skipped.
func (e *Engine) Replace(ctx context.Context, defs []model.AlarmDefinition) int {
	e.stopActive(model.SourceSystem, false)
	for i := range e.slots {
		e.slots[i] = model.AlarmDefinition{}
	}

	n := 0
	for _, in := range defs {
		if n >= model.MaxAlarms {
			break
		}
		id := in.ID
		if id == 0 || e.index(id) >= 0 {
			id = e.newID()
		}
		base := model.AlarmDefinition{ID: id, LastFiredUnix: in.LastFiredUnix}
		a, err := PatchFrom(in).Apply(base)
		if err != nil {
			e.logger.Warn("Skipping invalid imported alarm", zap.Uint32("alarm_id", in.ID), zap.Error(err))
			continue
		}
		e.slots[n] = a
		n++
	}
	for i := range e.slots {
		e.persist(ctx, i)
	}
	e.RecomputeAll()

	e.logger.Info("Alarms replaced", zap.Int("count", n))
	return n
}

// EnsureOne seeds a disabled weekday alarm when every slot is empty.
func (e *Engine) EnsureOne(ctx context.Context) {
	for i := range e.slots {
		if !e.slots[i].Empty() {
			return
		}
	}
	a := model.NewAlarm(e.newID())
	a.Enabled = false
	a.Label = "Vardagar"
	e.slots[0] = a
	e.persist(ctx, 0)
	e.recompute(0, e.now())
	e.logger.Info("Seeded default alarm", zap.Uint32("alarm_id", a.ID))
}
