package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ssargent/btreedb/internal/batch"
	"github.com/ssargent/btreedb/internal/engine"
)

// Server holds the API server state.
type Server struct {
	engine  Engine
	config  ServerConfig
	metrics *Metrics
}

// NewServer creates a new API server.
func NewServer(eng Engine, config ServerConfig, metrics *Metrics) *Server {
	return &Server{engine: eng, config: config, metrics: metrics}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func wantsSync(r *http.Request) bool {
	return r.URL.Query().Get("sync") == "true"
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := urlKey(r)
	if err != nil {
		s.metrics.RecordDBOperation("put", false, time.Since(start))
		sendError(w, "invalid key encoding", http.StatusBadRequest)
		return
	}

	value, err := io.ReadAll(r.Body)
	if err != nil {
		s.metrics.RecordDBOperation("put", false, time.Since(start))
		sendError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := s.engine.Put([]byte(key), value, wantsSync(r)); err != nil {
		s.metrics.RecordDBOperation("put", false, time.Since(start))
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.metrics.RecordDBOperation("put", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "stored"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := urlKey(r)
	if err != nil {
		s.metrics.RecordDBOperation("get", false, time.Since(start))
		sendError(w, "invalid key encoding", http.StatusBadRequest)
		return
	}

	value, err := s.engine.Get([]byte(key))
	if errors.Is(err, engine.ErrNotFound) {
		s.metrics.RecordDBOperation("get", false, time.Since(start))
		sendError(w, "key not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.metrics.RecordDBOperation("get", false, time.Since(start))
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.metrics.RecordDBOperation("get", true, time.Since(start))
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(value)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := urlKey(r)
	if err != nil {
		s.metrics.RecordDBOperation("delete", false, time.Since(start))
		sendError(w, "invalid key encoding", http.StatusBadRequest)
		return
	}

	if err := s.engine.Delete([]byte(key), wantsSync(r)); err != nil {
		s.metrics.RecordDBOperation("delete", false, time.Since(start))
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.metrics.RecordDBOperation("delete", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "deleted"})
}

// handleWrite applies a group of Put/Delete ops as a single batch
// under one sequence number.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.RecordDBOperation("write", false, time.Since(start))
		sendError(w, "invalid JSON request", http.StatusBadRequest)
		return
	}

	b := batch.New()
	for _, op := range req.Ops {
		switch op.Type {
		case "put":
			b.Put([]byte(op.Key), []byte(op.Value))
		case "delete":
			b.Delete([]byte(op.Key))
		default:
			s.metrics.RecordDBOperation("write", false, time.Since(start))
			sendError(w, "op type must be put or delete", http.StatusBadRequest)
			return
		}
	}

	if err := s.engine.Write(b, req.Sync); err != nil {
		s.metrics.RecordDBOperation("write", false, time.Since(start))
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.metrics.RecordDBOperation("write", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "applied", "count": strconv.Itoa(b.Count())})
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := s.engine.ManualCheckpoint(); err != nil {
		s.metrics.RecordDBOperation("checkpoint", false, time.Since(start))
		sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.metrics.RecordDBOperation("checkpoint", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "checkpoint complete"})
}

func urlKey(r *http.Request) (string, error) {
	return url.QueryUnescape(chi.URLParam(r, "key"))
}
