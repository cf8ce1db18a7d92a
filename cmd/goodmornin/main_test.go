package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarlEnstrom/Goodmornin/internal/model"
	"github.com/CarlEnstrom/Goodmornin/internal/storage"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestImportExportNext(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
device:
  id: test-clock
storage:
  backend: file
  file_path: `+filepath.Join(dir, "alarms.json")+`
fs:
  root: `+filepath.Join(dir, "fs")+`
log:
  level: error
`), 0o644))

	morning := model.NewAlarm(101)
	morning.Label = "Morgon"
	weekend := model.NewAlarm(202)
	weekend.Label = "Helg"
	weekend.DaysMask = 0x60
	weekend.Enabled = false
	bad := model.NewAlarm(303)
	bad.Hour = 30

	var backup bytes.Buffer
	require.NoError(t, storage.WriteBackup(&backup, "other", []model.AlarmDefinition{morning, weekend, bad}))
	backupPath := filepath.Join(dir, "in.yaml")
	require.NoError(t, os.WriteFile(backupPath, backup.Bytes(), 0o644))

	out := run(t, "--config", cfgPath, "import", backupPath)
	assert.Contains(t, out, "imported 2 of 3 alarms")

	out = run(t, "--config", cfgPath, "export")
	b, err := storage.ReadBackup(bytes.NewBufferString(out))
	require.NoError(t, err)
	assert.Equal(t, "test-clock", b.DeviceID)
	require.Len(t, b.Alarms, 2)
	assert.Equal(t, "Morgon", b.Alarms[0].Label)
	assert.Equal(t, "Helg", b.Alarms[1].Label)

	out = run(t, "--config", cfgPath, "next")
	assert.Regexp(t, `101\s+Morgon\s+true\s+\w{3} \d{4}-\d{2}-\d{2} 07:30`, out)
	assert.Regexp(t, `202\s+Helg\s+false\s+-`, out, "disabled alarms have no next fire")
}
