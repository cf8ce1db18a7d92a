package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/alarm"
	"github.com/CarlEnstrom/Goodmornin/internal/model"
	"github.com/CarlEnstrom/Goodmornin/internal/notify"
	"github.com/CarlEnstrom/Goodmornin/internal/storage"
	"github.com/CarlEnstrom/Goodmornin/internal/worker"
)

type fakePlayer struct {
	err     error
	played  []uint32
	playing bool
}

func (p *fakePlayer) PlayAlarm(ctx context.Context, a model.AlarmDefinition, defaultPath string) error {
	p.played = append(p.played, a.ID)
	p.playing = p.err == nil
	return p.err
}
func (p *fakePlayer) Stop()           { p.playing = false }
func (p *fakePlayer) IsPlaying() bool { return p.playing }

type fakeDeliveries struct {
	events []model.Event
	last   notify.Result
}

func (d *fakeDeliveries) Enqueue(url string, p model.Payload) bool {
	d.events = append(d.events, p.Event)
	return true
}
func (d *fakeDeliveries) LastResult() notify.Result { return d.last }
func (d *fakeDeliveries) Len() int                  { return len(d.events) }

type testEnv struct {
	srv        *Server
	fs         afero.Fs
	player     *fakePlayer
	deliveries *fakeDeliveries
	worker     *worker.Worker
	restarts   int
	stop       context.CancelFunc
}

func newTestEnv(t *testing.T, adminToken string) *testEnv {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)
	// Monday 2025-06-09 07:00 Stockholm.
	now := time.Date(2025, 6, 9, 5, 0, 0, 0, time.UTC)

	env := &testEnv{
		fs:         afero.NewMemMapFs(),
		player:     &fakePlayer{},
		deliveries: &fakeDeliveries{last: notify.Result{HTTPStatus: 204, TsUnix: 1749445200}},
	}
	store := storage.NewSlotStore(storage.NewFileKV(env.fs, "/kv.json"), zap.NewNop())
	engine := alarm.NewEngine(alarm.Options{
		DeviceID: "dev-1",
		Location: loc,
		Now:      func() time.Time { return now },
	}, env.player, env.deliveries, store, zap.NewNop())
	engine.Load(context.Background())

	env.worker = worker.New(engine, nil, nil, nil, time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	env.stop = cancel
	stopped := make(chan struct{})
	go func() {
		env.worker.Start(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	env.srv = NewServer(env.worker, env.fs, env.deliveries, zap.NewNop(), Options{
		AdminToken: adminToken,
		FSCapacity: 1 << 20,
		Restart:    func() { env.restarts++ },
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) raw(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) create(t *testing.T, body map[string]any) model.AlarmView {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/alarms", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v model.AlarmView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "dev-1", got["device_id"])
	assert.Equal(t, true, got["time_valid"])
	assert.Equal(t, "2025-06-09T07:00:00+02:00", got["ts_iso"])
	assert.Equal(t, float64(0), got["active_alarm_id"])
	assert.Equal(t, map[string]any{"http_status": float64(204), "error": "", "ts_unix": float64(1749445200)}, got["last_webhook"])
}

func TestAlarmCRUD(t *testing.T) {
	env := newTestEnv(t, "")

	created := env.create(t, map[string]any{"label": "Morgon", "hour": 6, "minute": 45, "inbound_webhook_token": "s3cret"})
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Morgon", created.Label)
	assert.Equal(t, "s3cret", created.InboundToken)
	assert.NotZero(t, created.NextFireUnix)

	rec := env.do(t, http.MethodGet, "/api/alarms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.AlarmView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Empty(t, list[0].InboundToken, "list hides inbound tokens")

	path := fmt.Sprintf("/api/alarms/%d", created.ID)

	rec = env.do(t, http.MethodPut, path, map[string]any{"hour": 25})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, alarm.CodeTimeInvalid, errorCode(t, rec))

	rec = env.do(t, http.MethodPut, path, map[string]any{"hour": 8, "snooze_minutes": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated model.AlarmView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 8, updated.Hour)
	assert.Equal(t, 45, updated.Minute)
	assert.Equal(t, 10, updated.SnoozeMinutes)

	rec = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestAlarmCRUD_BadInput(t *testing.T) {
	env := newTestEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/alarms", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_json", errorCode(t, rec))

	rec = env.do(t, http.MethodGet, "/api/alarms/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_id", errorCode(t, rec))

	for i := 0; i < model.MaxAlarms; i++ {
		env.create(t, map[string]any{})
	}
	rec = env.do(t, http.MethodPost, "/api/alarms", map[string]any{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "max_alarms", errorCode(t, rec))
}

func TestAdminToken(t *testing.T) {
	env := newTestEnv(t, "admin")

	rec := env.do(t, http.MethodPost, "/api/alarms", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/alarms", map[string]any{}, "X-Admin-Token", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/alarms", map[string]any{}, "X-Admin-Token", "admin")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/alarms?admin_token=admin", map[string]any{})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/system/restart?token=admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/alarms", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "reads are public")
}

func TestActions(t *testing.T) {
	env := newTestEnv(t, "")
	a := env.create(t, map[string]any{"outbound_webhooks": map[string]string{
		"on_set_url":     "http://hooks/set",
		"on_fire_url":    "http://hooks/fire",
		"on_snooze_url":  "http://hooks/snooze",
		"on_dismiss_url": "http://hooks/dismiss",
	}})
	base := fmt.Sprintf("/api/alarms/%d/", a.ID)

	rec := env.do(t, http.MethodPost, base+"snooze", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_ringing", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, base+"fire", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/status", nil)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, float64(a.ID), st["active_alarm_id"])
	assert.Equal(t, true, st["audio_playing"])

	rec = env.do(t, http.MethodPost, base+"snooze", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, base+"dismiss", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, base+"dismiss", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, base+"disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/alarms/%d", a.ID), nil)
	var v model.AlarmView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.False(t, v.Enabled)
	assert.Zero(t, v.NextFireUnix)

	rec = env.do(t, http.MethodPost, base+"enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base+"explode", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_action", errorCode(t, rec))

	assert.Equal(t, []model.Event{
		model.EventSet,
		model.EventFired,
		model.EventSnoozed,
		model.EventDismissed,
		model.EventDisabled,
		model.EventEnabled,
	}, env.deliveries.events)
}

func TestActions_TestAudio(t *testing.T) {
	env := newTestEnv(t, "")
	a := env.create(t, map[string]any{})
	path := fmt.Sprintf("/api/alarms/%d/test_audio", a.ID)

	rec := env.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.player.err = errors.New("file_missing")
	rec = env.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "file_missing", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/alarms/99/test_audio", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook(t *testing.T) {
	env := newTestEnv(t, "")
	a := env.create(t, map[string]any{"inbound_webhook_token": "tok"})
	path := fmt.Sprintf("/wh/alarm/%d", a.ID)

	rec := env.do(t, http.MethodPost, path, map[string]any{"action": "fire"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_token", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, path+"?token=nope", map[string]any{"action": "fire"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "bad_token", errorCode(t, rec))

	rec = env.do(t, http.MethodPost, "/wh/alarm/12345?token=tok", map[string]any{"action": "fire"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, path+"?token=tok", map[string]any{"action": "SET", "hour": 9, "minute": 15})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/alarms/%d", a.ID), nil)
	var v model.AlarmView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, 9, v.Hour)
	assert.Equal(t, 15, v.Minute)

	rec = env.do(t, http.MethodPost, path+"?token=tok", map[string]any{"action": "set", "snooze_minutes": 500})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, alarm.CodeSnoozeInvalid, errorCode(t, rec))

	rec = env.do(t, http.MethodPost, path+"?token=tok&action=fire", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, path+"?token=tok", map[string]any{"action": "dismiss"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, path+"?token=tok", map[string]any{"action": "dismiss"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, path+"?token=tok", map[string]any{"action": "reboot"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_action", errorCode(t, rec))
}

func TestFiles(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := storage.EnsureDefaultAudio(env.fs, model.DefaultAudioPath)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(env.fs, "/audio/spare.wav", []byte("x"), 0o644))
	env.create(t, map[string]any{})

	rec := env.do(t, http.MethodGet, "/api/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var files []storage.FileInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 2)
	assert.Equal(t, "default.wav", files[0].Name)

	rec = env.do(t, http.MethodDelete, "/api/files?path=/audio/default.wav", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "file_in_use", errorCode(t, rec))

	rec = env.do(t, http.MethodDelete, "/api/files?path=/audio/../kv.json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/files?path=/audio/none.wav", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/files?path=/audio/spare.wav", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ok, _ := afero.Exists(env.fs, "/audio/spare.wav")
	assert.False(t, ok)
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, "")

	upload := func(name, content string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		fw.Write([]byte(content))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		env.srv.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("wake me.wav", "RIFF")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	raw, err := afero.ReadFile(env.fs, "/audio/wakeme.wav")
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(raw))

	rec = upload("evil.sh", "#!")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_ext", errorCode(t, rec))
}

func TestFilesSpace(t *testing.T) {
	env := newTestEnv(t, "secret")
	require.NoError(t, afero.WriteFile(env.fs, "/audio/a.wav", make([]byte, 1000), 0o644))
	require.NoError(t, afero.WriteFile(env.fs, "/other/b.bin", make([]byte, 24), 0o644))

	rec := env.do(t, http.MethodGet, "/api/files/space", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/space", nil, "X-Admin-Token", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	var space spaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &space))
	assert.Equal(t, int64(1<<20), space.Total)
	assert.GreaterOrEqual(t, space.Used, int64(1024))
	assert.Equal(t, space.Total-space.Used, space.Free)
}

func TestConfigExportImport(t *testing.T) {
	env := newTestEnv(t, "secret")
	admin := []string{"X-Admin-Token", "secret"}
	a := env.create(t, map[string]any{"label": "Jobb", "hour": 6, "inbound_webhook_token": "tok"})

	rec := env.do(t, http.MethodGet, "/api/config/export", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/config/export", nil, admin...)
	require.Equal(t, http.StatusOK, rec.Code)
	var b storage.Backup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, "dev-1", b.DeviceID)
	assert.Equal(t, model.SchemaVersion, b.Version)
	require.Len(t, b.Alarms, 1)
	assert.Equal(t, "tok", b.Alarms[0].InboundToken, "export keeps inbound tokens")

	rec = env.do(t, http.MethodGet, "/api/config/export?format=yaml", nil, admin...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "label: Jobb")

	b.Alarms[0].Label = "Helg"
	second := model.NewAlarm(0)
	second.Hour = 9
	b.Alarms = append(b.Alarms, second)
	rec = env.do(t, http.MethodPost, "/api/config/import", b, admin...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true,"imported":2}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/alarms", nil)
	var list []model.AlarmView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, "Helg", list[0].Label)
	assert.NotZero(t, list[1].ID)
	assert.Equal(t, 9, list[1].Hour)
}

func TestConfigImport_Formats(t *testing.T) {
	env := newTestEnv(t, "")

	// Documents without a version field are accepted.
	rec := env.raw(t, http.MethodPost, "/api/config/import",
		`{"device_id":"old","alarms":[{"id":7,"enabled":true,"hour":5,"minute":45,"days_bitmask":31}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true,"imported":1}`, rec.Body.String())

	yamlDoc := fmt.Sprintf("device_id: dev-1\nversion: %d\nalarms:\n  - id: 8\n    hour: 6\n    days_bitmask: 96\n", model.SchemaVersion)
	rec = env.raw(t, http.MethodPost, "/api/config/import", yamlDoc, "Content-Type", "application/yaml")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodGet, "/api/alarms/8", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/alarms/7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "import replaces every alarm")

	rec = env.raw(t, http.MethodPost, "/api/config/import", `{"version":99,"alarms":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_version", errorCode(t, rec))

	rec = env.raw(t, http.MethodPost, "/api/config/import", `{"alarms": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_json", errorCode(t, rec))
	rec = env.do(t, http.MethodGet, "/api/alarms/8", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "failed import leaves alarms untouched")
}

func TestUpload_OldPathGone(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/api/files", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRestart(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/system/restart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.restarts)
}

func TestEngineUnavailable(t *testing.T) {
	env := newTestEnv(t, "")
	env.stop()
	require.Eventually(t, func() bool {
		return env.do(t, http.MethodGet, "/api/status", nil).Code == http.StatusServiceUnavailable
	}, time.Second, time.Millisecond)
}
