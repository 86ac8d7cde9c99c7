// Package api implements the HTTP control surface: capture control,
// playback, labels, favorites, clipboard copy, audio file serving and the
// settings endpoints used by the web UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/yok-tottii/echocap/internal/audio"
	"github.com/yok-tottii/echocap/internal/clipboard"
	"github.com/yok-tottii/echocap/internal/config"
	"github.com/yok-tottii/echocap/internal/hotkey"
	"github.com/yok-tottii/echocap/internal/playback"
	"github.com/yok-tottii/echocap/internal/preflight"
	"github.com/yok-tottii/echocap/internal/recording"
	"github.com/yok-tottii/echocap/internal/store"
)

// Listener starts and stops the capture loop
type Listener interface {
	Start(ctx context.Context) error
	Stop() error
	Listening() bool
	Recording() bool
}

// Player plays an audio file of a list on the output device
type Player interface {
	PlayRecord(ctx context.Context, list, path string) error
}

// Copier writes text to the clipboard
type Copier interface {
	Copy(text string) error
}

// Deps are the collaborators of a Handler. Nil hooks disable the
// endpoints that need them.
type Deps struct {
	Store      *store.Store
	Listener   Listener
	Player     Player
	Clipboard  Copier
	Config     *config.Config
	ConfigPath string

	// BaseContext outlives requests; the capture loop is started from it
	BaseContext context.Context

	ListDevices     func() ([]audio.Device, error)
	Preflight       func(ctx context.Context) preflight.Report
	OnHotkeyChanged func(hotkey.Binding) error
	OnConfigChanged func(*config.Config)
}

// Handler manages API endpoints
type Handler struct {
	store      *store.Store
	listener   Listener
	player     Player
	clipboard  Copier
	config     *config.Config
	configPath string
	base       context.Context

	listDevices     func() ([]audio.Device, error)
	preflight       func(ctx context.Context) preflight.Report
	onHotkeyChanged func(hotkey.Binding) error
	onConfigChanged func(*config.Config)
}

// New creates a new API handler
func New(d Deps) *Handler {
	base := d.BaseContext
	if base == nil {
		base = context.Background()
	}
	path := d.ConfigPath
	if path == "" {
		path = config.GetConfigPath()
	}
	return &Handler{
		store:           d.Store,
		listener:        d.Listener,
		player:          d.Player,
		clipboard:       d.Clipboard,
		config:          d.Config,
		configPath:      path,
		base:            base,
		listDevices:     d.ListDevices,
		preflight:       d.Preflight,
		onHotkeyChanged: d.OnHotkeyChanged,
		onConfigChanged: d.OnConfigChanged,
	}
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("POST /listen/start", h.handleListenStart)
	mux.HandleFunc("POST /listen/stop", h.handleListenStop)
	mux.HandleFunc("POST /play/{ts}", h.handlePlay(store.Recordings))
	mux.HandleFunc("POST /play_favorite/{ts}", h.handlePlay(store.Favorites))
	mux.HandleFunc("POST /update_name/{list}/{ts}", h.handleUpdateName)
	mux.HandleFunc("POST /favorite/{ts}", h.handleFavorite)
	mux.HandleFunc("POST /copy/{list}/{ts}", h.handleCopy)
	mux.HandleFunc("GET /recordings/{file}", h.handleFile(store.Recordings))
	mux.HandleFunc("GET /favorites/{file}", h.handleFile(store.Favorites))

	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/hotkey/validate", h.handleHotkeyValidate)
	mux.HandleFunc("/api/hotkey/register", h.handleHotkeyRegister)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/preflight", h.handlePreflight)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "err", err)
	}
}

// respond writes the {status, timestamp} envelope of the record endpoints.
// timestamp is the id of the record acted on.
func respond(w http.ResponseWriter, status string, ts int64, extra map[string]any) {
	body := map[string]any{
		"status":    status,
		"timestamp": ts,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func success(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func fail(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{
		"status":  "error",
		"message": message,
	})
}

// errorCode maps domain errors onto HTTP status codes
func errorCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnknownList):
		return http.StatusBadRequest
	case errors.Is(err, playback.ErrNoDevice), errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, clipboard.ErrEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseTimestamp(r *http.Request) (int64, error) {
	raw := r.PathValue("ts")
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts <= 0 {
		return 0, fmt.Errorf("invalid timestamp %q", raw)
	}
	return ts, nil
}

// validFileName rejects anything that could leave the collection directory
func validFileName(name string) bool {
	if name == "" || strings.Contains(name, "..") {
		return false
	}
	if strings.HasPrefix(name, "/") || strings.ContainsAny(name, `/\`) {
		return false
	}
	return true
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	listening, recording := false, false
	if h.listener != nil {
		listening = h.listener.Listening()
		recording = h.listener.Recording()
	}
	writeJSON(w, http.StatusOK, h.store.Status(listening, recording))
}

func (h *Handler) handleListenStart(w http.ResponseWriter, r *http.Request) {
	if h.listener == nil {
		fail(w, http.StatusServiceUnavailable, "capture is not available")
		return
	}
	err := h.listener.Start(h.base)
	if err != nil && !errors.Is(err, recording.ErrAlreadyListening) {
		slog.Error("failed to start listening", "err", err)
		fail(w, errorCode(err), err.Error())
		return
	}
	success(w)
}

func (h *Handler) handleListenStop(w http.ResponseWriter, r *http.Request) {
	if h.listener == nil {
		fail(w, http.StatusServiceUnavailable, "capture is not available")
		return
	}
	err := h.listener.Stop()
	if err != nil && !errors.Is(err, recording.ErrNotListening) {
		slog.Error("failed to stop listening", "err", err)
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	success(w)
}

// handlePlay plays the WAV file of a record in list
func (h *Handler) handlePlay(list store.ListType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := parseTimestamp(r)
		if err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		c, err := h.store.Collection(list)
		if err != nil {
			fail(w, errorCode(err), err.Error())
			return
		}
		rec, ok := c.Get(ts)
		if !ok || rec.WavFilename == "" {
			fail(w, http.StatusNotFound, "Recording not found")
			return
		}
		if h.player == nil {
			fail(w, http.StatusServiceUnavailable, "playback is not available")
			return
		}
		if err := h.player.PlayRecord(r.Context(), string(list), c.Path(rec.WavFilename)); err != nil {
			fail(w, errorCode(err), err.Error())
			return
		}
		respond(w, "playing", ts, nil)
	}
}

func (h *Handler) handleUpdateName(w http.ResponseWriter, r *http.Request) {
	list, err := store.ParseListType(r.PathValue("list"))
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	ts, err := parseTimestamp(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	name := store.NormalizeName(r.FormValue("name"))
	if name == "" {
		fail(w, http.StatusBadRequest, "Name cannot be empty")
		return
	}
	if err := h.store.UpdateName(list, ts, name); err != nil {
		fail(w, errorCode(err), err.Error())
		return
	}
	respond(w, "success", ts, map[string]any{"name": name})
}

func (h *Handler) handleFavorite(w http.ResponseWriter, r *http.Request) {
	ts, err := parseTimestamp(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.PromoteToFavorite(ts); err != nil {
		fail(w, errorCode(err), err.Error())
		return
	}
	respond(w, "success", ts, nil)
}

func (h *Handler) handleCopy(w http.ResponseWriter, r *http.Request) {
	list, err := store.ParseListType(r.PathValue("list"))
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	ts, err := parseTimestamp(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.store.Collection(list)
	if err != nil {
		fail(w, errorCode(err), err.Error())
		return
	}
	rec, ok := c.Get(ts)
	if !ok {
		fail(w, http.StatusNotFound, "Recording not found")
		return
	}
	if h.clipboard == nil {
		fail(w, http.StatusServiceUnavailable, "clipboard is not available")
		return
	}
	if err := h.clipboard.Copy(rec.Text); err != nil {
		fail(w, errorCode(err), err.Error())
		return
	}
	respond(w, "success", ts, nil)
}

// handleFile serves a WAV or MP3 file from the directory of list
func (h *Handler) handleFile(list store.ListType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("file")
		if !validFileName(name) {
			fail(w, http.StatusBadRequest, "Invalid file name")
			return
		}
		if _, _, ok := store.ParseAudioName(name); !ok {
			fail(w, http.StatusNotFound, "File not found")
			return
		}
		c, err := h.store.Collection(list)
		if err != nil {
			fail(w, errorCode(err), err.Error())
			return
		}
		http.ServeFile(w, r, c.Path(name))
	}
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getSettings returns the current configuration without the API key
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	out := h.config.Clone()
	out.Transcriber.OpenAIAPIKey = ""
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.config.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}
	slog.Info("settings updated", "path", h.configPath)

	if h.onConfigChanged != nil {
		h.onConfigChanged(h.config)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func decodeBinding(r *http.Request) (hotkey.Binding, error) {
	var b hotkey.Binding
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		return b, err
	}
	return b.Normalize()
}

// handleHotkeyValidate handles POST /api/hotkey/validate
func (h *Handler) handleHotkeyValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, err := decodeBinding(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":     false,
			"error":     err.Error(),
			"conflicts": []string{},
		})
		return
	}

	conflicts := []string{}
	for _, c := range hotkey.CheckConflicts(b) {
		conflicts = append(conflicts, c.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":     true,
		"binding":   b.String(),
		"conflicts": conflicts,
	})
}

// handleHotkeyRegister stores a new binding and re-registers it
func (h *Handler) handleHotkeyRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, err := decodeBinding(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	update := map[string]any{"hotkey": map[string]any{
		"ctrl": b.Ctrl, "shift": b.Shift, "alt": b.Alt, "key": b.Key,
	}}
	if err := h.config.Update(update); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	if h.onHotkeyChanged != nil {
		if err := h.onHotkeyChanged(b); err != nil {
			slog.Error("failed to re-register hotkey", "binding", b.String(), "err", err)
			http.Error(w, fmt.Sprintf("Failed to register hotkey: %v", err), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"binding": b.String(),
	})
}

// handleDevices lists the audio devices and marks the ones the
// configuration resolves to
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.listDevices == nil {
		http.Error(w, "Device listing is not available", http.StatusServiceUnavailable)
		return
	}

	devices, err := h.listDevices()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list devices: %v", err), http.StatusInternalServerError)
		return
	}

	cfg := h.config.Clone()
	resp := map[string]any{"devices": devices}
	if dev, err := playback.FindOutput(devices, cfg.Playback.DeviceName); err == nil {
		resp["playback"] = dev.Name
	}
	if dev, err := audio.FindLoopback(devices, defaultOutputName(devices), cfg.Capture.DeviceMatch); err == nil {
		resp["capture"] = dev.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func defaultOutputName(devices []audio.Device) string {
	for _, d := range devices {
		if d.IsDefault && d.Outputs > 0 {
			return d.Name
		}
	}
	return ""
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.preflight == nil {
		http.Error(w, "Preflight is not available", http.StatusServiceUnavailable)
		return
	}
	report := h.preflight(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     report.OK(),
		"checks": report.Checks,
	})
}
