package web

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/alarm"
	"github.com/CarlEnstrom/Goodmornin/internal/storage"
)

const maxUploadBytes = 8 << 20

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := storage.ListFiles(s.fs, storage.AudioDir)
	if err != nil {
		s.logger.Error("Failed to list files", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list_failed")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "upload_failed")
		return
	}
	defer f.Close()

	dst, err := storage.SaveAudio(s.fs, hdr.Filename, f)
	if errors.Is(err, storage.ErrBadExtension) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("Failed to store upload", zap.String("name", hdr.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload_failed")
		return
	}
	s.logger.Info("Stored audio file", zap.String("path", dst))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": dst})
}

type spaceResponse struct {
	Total int64 `json:"total"`
	Used  int64 `json:"used"`
	Free  int64 `json:"free"`
}

func (s *Server) handleSpace(w http.ResponseWriter, r *http.Request) {
	used, err := storage.UsedBytes(s.fs)
	if err != nil {
		s.logger.Error("Failed to measure filesystem", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "space_failed")
		return
	}
	total := s.opts.FSCapacity
	if total < used {
		total = used
	}
	writeJSON(w, http.StatusOK, spaceResponse{Total: total, Used: used, Free: total - used})
}

// handleDeleteFile removes a file under /audio unless an alarm still plays
// it.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	p := path.Clean(r.URL.Query().Get("path"))
	if !strings.HasPrefix(p, storage.AudioDir+"/") {
		writeError(w, http.StatusBadRequest, "bad_path")
		return
	}

	var inUse bool
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		inUse = e.FileInUse(p)
	}) {
		return
	}
	if inUse {
		writeError(w, http.StatusConflict, "file_in_use")
		return
	}

	if ok, _ := afero.Exists(s.fs, p); !ok {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err := s.fs.Remove(p); err != nil {
		s.logger.Error("Failed to remove file", zap.String("path", p), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "remove_failed")
		return
	}
	writeOK(w)
}
