package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mockgate/mockgate/internal/storage"
	"github.com/mockgate/mockgate/pkg/requestlog"
	"github.com/mockgate/mockgate/pkg/service"
)

// errorResponse is the management API's error body.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var create service.Create
	if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	svc, err := s.store.Create(&create)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.log.Info("mock service created", "id", svc.ID, "name", svc.Name, "path", svc.Path)
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 1000)
	writeJSON(w, http.StatusOK, s.store.List(skip, limit))
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Mock service not found")
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var update service.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	svc, err := s.store.Update(id, &update)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Mock service not found")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.log.Info("mock service updated", "id", svc.ID, "name", svc.Name)
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "Mock service not found")
		return
	}
	s.log.Info("mock service deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Mock service deleted"})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	query := requestlog.Query{
		Skip:  queryInt(r, "skip", 0),
		Limit: queryInt(r, "limit", 100),
		Expr:  r.URL.Query().Get("expr"),
	}
	if raw := r.URL.Query().Get("service_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid service_id")
			return
		}
		query.ServiceID = &id
	}

	entries, err := s.reader.Get(query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLogFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reader.FilesInfo())
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	baseURL := scheme + "://" + r.Host
	writeJSON(w, http.StatusOK, map[string]string{
		"base_url":      baseURL,
		"mock_base_url": baseURL,
		"api_base_url":  baseURL + "/api",
		"version":       Version,
		"environment":   envOrDefault("ENVIRONMENT", "development"),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	uptime := time.Since(s.startTime).Seconds()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(uptime),
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid service id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
