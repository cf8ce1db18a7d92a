package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

type slotRecord struct {
	Version int                   `json:"version"`
	Alarm   model.AlarmDefinition `json:"alarm"`
}

func SlotKey(i int) string { return fmt.Sprintf("al%d", i) }

// SlotStore encodes one alarm definition per slot key.
type SlotStore struct {
	kv     KV
	logger *zap.Logger
}

func NewSlotStore(kv KV, logger *zap.Logger) *SlotStore {
	return &SlotStore{kv: kv, logger: logger}
}

// Load returns the slot's definition. A never-written slot is empty. A
// record from another schema version is reset, keeping only its id.
func (s *SlotStore) Load(ctx context.Context, slot int) (model.AlarmDefinition, error) {
	raw, err := s.kv.Get(ctx, SlotKey(slot))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AlarmDefinition{}, nil
		}
		return model.AlarmDefinition{}, fmt.Errorf("failed to read slot %d: %w", slot, err)
	}

	var rec slotRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("Discarding unreadable alarm slot", zap.Int("slot", slot), zap.Error(err))
		return model.AlarmDefinition{}, nil
	}
	if rec.Version != model.SchemaVersion {
		s.logger.Info("Resetting alarm slot from old schema",
			zap.Int("slot", slot),
			zap.Int("version", rec.Version),
			zap.Uint32("alarm_id", rec.Alarm.ID),
		)
		return model.AlarmDefinition{ID: rec.Alarm.ID}, nil
	}
	return rec.Alarm, nil
}

func (s *SlotStore) Save(ctx context.Context, slot int, a model.AlarmDefinition) error {
	raw, err := json.Marshal(slotRecord{Version: model.SchemaVersion, Alarm: a})
	if err != nil {
		return fmt.Errorf("failed to marshal slot %d: %w", slot, err)
	}
	if err := s.kv.Set(ctx, SlotKey(slot), raw); err != nil {
		return fmt.Errorf("failed to write slot %d: %w", slot, err)
	}
	return nil
}

// LoadAll returns the occupied slots in index order.
func (s *SlotStore) LoadAll(ctx context.Context) ([]model.AlarmDefinition, error) {
	var out []model.AlarmDefinition
	for i := 0; i < model.MaxAlarms; i++ {
		a, err := s.Load(ctx, i)
		if err != nil {
			return nil, err
		}
		if !a.Empty() {
			out = append(out, a)
		}
	}
	return out, nil
}
