package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/CarlEnstrom/Goodmornin/internal/alarm"
	"github.com/CarlEnstrom/Goodmornin/internal/model"
)

// redact hides the inbound secret from read endpoints.
func redact(v model.AlarmView) model.AlarmView {
	v.InboundToken = ""
	return v
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var views []model.AlarmView
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		views = e.Alarms()
	}) {
		return
	}
	for i := range views {
		views[i] = redact(views[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var view model.AlarmView
	var err error
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		view, err = e.Get(id)
	}) {
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redact(view))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var p alarm.Patch
	if !decodeBody(w, r, &p) {
		return
	}
	var view model.AlarmView
	var err error
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		var a model.AlarmDefinition
		if a, err = e.Create(ctx, p, model.SourceWebGUI); err == nil {
			view, err = e.Get(a.ID)
		}
	}) {
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p alarm.Patch
	if !decodeBody(w, r, &p) {
		return
	}
	var view model.AlarmView
	var err error
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		if _, err = e.Update(ctx, id, p, model.SourceWebGUI); err == nil {
			view, err = e.Get(id)
		}
	}) {
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var err error
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		err = e.Delete(ctx, id)
	}) {
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeOK(w)
}

// command runs one of the actions shared by the admin API and the inbound
// webhook.
func command(ctx context.Context, e *alarm.Engine, id uint32, action string, src model.Source) (handled bool, err error) {
	switch action {
	case "enable":
		return true, e.SetEnabled(ctx, id, true, src)
	case "disable":
		return true, e.SetEnabled(ctx, id, false, src)
	case "fire":
		return true, e.Fire(ctx, id, src)
	case "snooze":
		return true, e.Snooze(id, src)
	case "dismiss":
		return true, e.Dismiss(id, src)
	}
	return false, nil
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	action := strings.ToLower(r.PathValue("action"))

	var handled bool
	var err error
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		if action == "test_audio" {
			handled = true
			err = e.TestAudio(ctx, id)
			return
		}
		handled, err = command(ctx, e, id, action, model.SourceWebGUI)
	}) {
		return
	}

	switch {
	case !handled:
		writeError(w, http.StatusBadRequest, "bad_action")
	case action == "test_audio" && err != nil && !errors.Is(err, alarm.ErrNotFound):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		writeEngineError(w, err)
	default:
		writeOK(w)
	}
}

type webhookRequest struct {
	Action string `json:"action"`
	alarm.Patch
}

// handleWebhook authenticates with the alarm's own token and then applies
// the requested action with source "webhook".
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	token := r.URL.Query().Get("token")

	var err error
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		err = e.Authorize(id, token)
	}) {
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// Bodyless calls may name the action in the query.
	req := webhookRequest{Action: r.URL.Query().Get("action")}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	action := strings.ToLower(req.Action)

	var handled bool
	if !s.run(w, r, func(ctx context.Context, e *alarm.Engine) {
		if action == "set" {
			handled = true
			_, err = e.Update(ctx, id, req.Patch, model.SourceWebhook)
			return
		}
		handled, err = command(ctx, e, id, action, model.SourceWebhook)
	}) {
		return
	}

	switch {
	case !handled:
		writeError(w, http.StatusBadRequest, "bad_action")
	case err != nil:
		writeEngineError(w, err)
	default:
		writeOK(w)
	}
}
