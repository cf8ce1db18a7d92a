package web

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/alarm"
	"github.com/CarlEnstrom/Goodmornin/internal/storage"
)

const maxImportBytes = 64 << 10

// handleExport returns every stored alarm, inbound tokens included, as a
// backup document. ?format=yaml selects the CLI's YAML form.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var b storage.Backup
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		b = storage.NewBackup(e.DeviceID(), e.Definitions())
	}) {
		return
	}

	if r.URL.Query().Get("format") != "yaml" {
		writeJSON(w, http.StatusOK, b)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	if err := storage.WriteBackup(w, b.DeviceID, b.Alarms); err != nil {
		s.logger.Error("Failed to write backup", zap.Error(err))
	}
}

// handleImport replaces all alarms with the ones in a JSON or YAML backup.
// Invalid alarms are skipped; the response counts the ones kept.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	b, err := storage.ReadBackup(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if err := b.CheckVersion(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_version")
		return
	}

	var n int
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		n = e.Replace(ctx, b.Alarms)
	}) {
		return
	}
	s.logger.Info("Imported alarms",
		zap.Int("imported", n),
		zap.Int("offered", len(b.Alarms)),
		zap.String("from_device", b.DeviceID),
	)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "imported": n})
}
