package storage

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

var ErrBackupVersion = errors.New("unsupported backup version")

// Backup is the document written by export and read by import. The HTTP
// API serves it as JSON; the CLI writes YAML.
type Backup struct {
	DeviceID string                  `json:"device_id" yaml:"device_id"`
	Version  int                     `json:"version" yaml:"version"`
	Alarms   []model.AlarmDefinition `json:"alarms" yaml:"alarms"`
}

func NewBackup(deviceID string, alarms []model.AlarmDefinition) Backup {
	if alarms == nil {
		alarms = []model.AlarmDefinition{}
	}
	return Backup{DeviceID: deviceID, Version: model.SchemaVersion, Alarms: alarms}
}

// CheckVersion accepts the current schema and unversioned documents, which
// older firmware exported without a version field.
func (b *Backup) CheckVersion() error {
	if b.Version != 0 && b.Version != model.SchemaVersion {
		return fmt.Errorf("%w: %d, expected %d", ErrBackupVersion, b.Version, model.SchemaVersion)
	}
	return nil
}

func WriteBackup(w io.Writer, deviceID string, alarms []model.AlarmDefinition) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewBackup(deviceID, alarms)); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return enc.Close()
}

// ReadBackup decodes a YAML or JSON backup.
func ReadBackup(r io.Reader) (*Backup, error) {
	var b Backup
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	if len(b.Alarms) > model.MaxAlarms {
		b.Alarms = b.Alarms[:model.MaxAlarms]
	}
	return &b, nil
}
