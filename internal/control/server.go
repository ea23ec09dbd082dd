// Package control exposes the popup and options surfaces over HTTP.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"offer-filter/internal"
	"offer-filter/internal/filter/engine"
	"offer-filter/internal/settings"
)

const msgSetEnabled = "SET_ENABLED"

// Engine is the part of the filter engine the endpoint talks to.
type Engine interface {
	Status() engine.Status
	Reapply()
}

type Server struct {
	store  settings.Store
	engine Engine
}

func NewServer(store settings.Store, e Engine) *Server {
	return &Server{store: store, engine: e}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/message", s.handleMessage)
	r.Get("/badge", s.handleBadge)
	r.Get("/settings", s.handleGetSettings)
	r.Patch("/settings", s.handlePatchSettings)
	r.Post("/reapply", s.handleReapply)
	r.Get("/status", s.handleStatus)
	return r
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	internal.Log.WithField("addr", addr).Info("Control endpoint listening")

	select {
	case err := <-errc:
		return fmt.Errorf("control endpoint: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil || !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "malformed message")
		return
	}

	msg := gjson.ParseBytes(body)
	if msg.Get("type").String() != msgSetEnabled {
		writeError(w, http.StatusBadRequest, "unknown message type")
		return
	}
	enabled := msg.Get("enabled")
	if enabled.Type != gjson.True && enabled.Type != gjson.False {
		writeError(w, http.StatusBadRequest, "enabled must be a boolean")
		return
	}

	if err := s.store.Set(r.Context(), settings.Values{settings.KeyEnabled: enabled.Bool()}); err != nil {
		internal.Log.WithError(err).Warn("Failed to store enabled flag")
		writeError(w, http.StatusInternalServerError, "could not store setting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleBadge never fails: a store problem shows as an empty badge.
func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	values, err := s.store.Get(r.Context(), settings.KeyEnabled)
	if err != nil {
		internal.Log.WithError(err).Debug("Badge read failed")
		return
	}
	text := "OFF"
	if settings.Defaults().Overlay(values).Enabled {
		text = "ON"
	}
	io.WriteString(w, text)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := settings.Load(r.Context(), s.store)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil || !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "malformed settings")
		return
	}
	patch := gjson.ParseBytes(body)
	if !patch.IsObject() {
		writeError(w, http.StatusBadRequest, "settings must be an object")
		return
	}

	values := settings.Values{}
	var patchErr error
	patch.ForEach(func(key, value gjson.Result) bool {
		n, err := settings.Normalize(key.String(), value.Value())
		if err != nil {
			patchErr = fmt.Errorf("%s: %w", key.String(), err)
			return false
		}
		values[key.String()] = n
		return true
	})
	if patchErr != nil {
		writeError(w, http.StatusBadRequest, patchErr.Error())
		return
	}

	if len(values) > 0 {
		if err := s.store.Set(r.Context(), values); err != nil {
			writeError(w, http.StatusInternalServerError, "could not store settings")
			return
		}
	}
	s.handleGetSettings(w, r)
}

func (s *Server) handleReapply(w http.ResponseWriter, r *http.Request) {
	s.engine.Reapply()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		internal.Log.WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
