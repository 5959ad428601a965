package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/chanbot/internal/backup"
	"github.com/alfredjeanlab/chanbot/internal/lifecycle"
	"github.com/alfredjeanlab/chanbot/internal/model"
)

// adminActor is recorded as the actor of changes made through the admin API
// when the request names none.
const adminActor = "admin"

// handleListChannels handles GET /v1/channels.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ChannelFilter{Search: q.Get("search")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	channels, total, err := s.store.ListChannels(r.Context(), filter)
	if err != nil {
		s.log(r.Context()).Error("list channels", "err", err)
		writeError(w, errorStatus(err), "failed to list channels")
		return
	}

	// Ensure channels is never null in JSON output.
	if channels == nil {
		channels = []*model.Channel{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"total":    total,
	})
}

// handleGetChannel handles GET /v1/channels/{id}.
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := s.store.GetChannel(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), "failed to get channel")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type extendInput struct {
	Days  int    `json:"days"`
	Actor string `json:"actor,omitempty"`
}

// handleExtendChannel handles POST /v1/channels/{id}/extend.
func (s *Server) handleExtendChannel(w http.ResponseWriter, r *http.Request) {
	var in extendInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.Days <= 0 {
		writeError(w, http.StatusBadRequest, "days must be a positive integer")
		return
	}
	if in.Days > model.MaxExpireDays {
		writeError(w, http.StatusBadRequest, "days is too large")
		return
	}
	if in.Actor == "" {
		in.Actor = adminActor
	}

	c, err := s.manager.Extend(r.Context(), r.PathValue("id"), in.Days, in.Actor)
	if err != nil {
		s.writeManagerError(w, r, "extend channel", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type expiryInput struct {
	// ExpiresAt is an absolute epoch second.
	ExpiresAt int64 `json:"expires_at,omitempty"`
	// Date is a YYYY-MM-DD day, taken as 00:00 UTC. Used when ExpiresAt is 0.
	Date  string `json:"date,omitempty"`
	Actor string `json:"actor,omitempty"`
}

// handleSetExpiry handles PUT /v1/channels/{id}/expiry.
func (s *Server) handleSetExpiry(w http.ResponseWriter, r *http.Request) {
	var in expiryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ts, err := s.resolveExpiry(in)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if in.Actor == "" {
		in.Actor = adminActor
	}

	c, err := s.manager.SetExpiry(r.Context(), r.PathValue("id"), ts, in.Actor)
	if err != nil {
		s.writeManagerError(w, r, "set expiry", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) resolveExpiry(in expiryInput) (int64, error) {
	now := s.manager.Now()
	switch {
	case in.ExpiresAt > 0:
		if in.ExpiresAt <= now {
			return 0, inputError("expires_at must be in the future")
		}
		return in.ExpiresAt, nil
	case in.Date != "":
		ts, err := lifecycle.ParseExpiryDate(in.Date, time.Unix(now, 0))
		if err != nil {
			return 0, inputError(err.Error())
		}
		return ts, nil
	}
	return 0, inputError("expires_at or date is required")
}

// handleDeleteChannel handles DELETE /v1/channels/{id}. With ?archive=true
// the remote channel is archived as well; otherwise only the record is
// dropped.
func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	c, err := s.store.GetChannel(ctx, id)
	if err != nil {
		writeError(w, errorStatus(err), "failed to get channel")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	archive, _ := strconv.ParseBool(r.URL.Query().Get("archive"))
	if archive {
		err = s.manager.Archive(ctx, id, adminActor)
	} else {
		err = s.manager.Forget(ctx, id, "removed by admin")
	}
	if err != nil {
		s.writeManagerError(w, r, "delete channel", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSweep handles POST /v1/sweep.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Sweep(r.Context())
	if err != nil {
		s.log(r.Context()).Error("sweep", "err", err)
		writeError(w, errorStatus(err), "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExport handles GET /v1/export.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := backup.ExportJSONL(r.Context(), s.store, &buf); err != nil {
		s.log(r.Context()).Error("export", "err", err)
		writeError(w, errorStatus(err), "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleImport handles POST /v1/import.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	inserted, skipped, err := backup.Restore(r.Context(), s.store, r.Body)
	if err != nil {
		s.log(r.Context()).Error("import", "inserted", inserted, "err", err)
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"inserted": inserted,
		"skipped":  skipped,
	})
}

func (s *Server) writeManagerError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log(r.Context()).Error(op, "channel", r.PathValue("id"), "err", err)
	}
	if errors.Is(err, lifecycle.ErrNotManaged) {
		writeError(w, status, "channel not found")
		return
	}
	writeError(w, status, op+" failed")
}
