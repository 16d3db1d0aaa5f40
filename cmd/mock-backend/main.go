// Command mock-backend runs a minimal in-memory document database that
// sits behind dbgate for local testing. It trusts the X-Dbgate-* headers
// set by dbgate and records which user wrote each document.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Forwarded identity headers, mirrored from pkg/transport/http.
const (
	headerUser     = "X-Dbgate-User"
	headerAuthType = "X-Dbgate-Auth-Type"
	headerDatabase = "X-Dbgate-Database"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	db := newDocStore()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /databases/{db}/docs", db.handleList)
	mux.HandleFunc("GET /databases/{db}/docs/{id}", db.handleGet)
	mux.HandleFunc("PUT /databases/{db}/docs/{id}", db.handlePut)
	mux.HandleFunc("GET /whoami", handleWhoAmI)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

type document struct {
	ID         string          `json:"id"`
	Body       json.RawMessage `json:"body"`
	ModifiedBy string          `json:"modifiedBy,omitempty"`
}

type docStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]document // database -> id -> doc
}

func newDocStore() *docStore {
	return &docStore{docs: make(map[string]map[string]document)}
}

func (s *docStore) handleList(w http.ResponseWriter, r *http.Request) {
	db := r.PathValue("db")

	s.mu.RLock()
	ids := make([]string, 0, len(s.docs[db]))
	for id := range s.docs[db] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string]any{"database": db, "ids": ids})
}

func (s *docStore) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	doc, ok := s.docs[r.PathValue("db")][r.PathValue("id")]
	s.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"Error": "document not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *docStore) handlePut(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"Error": "invalid JSON body"})
		return
	}

	db := r.PathValue("db")
	doc := document{
		ID:         r.PathValue("id"),
		Body:       body,
		ModifiedBy: r.Header.Get(headerUser),
	}

	s.mu.Lock()
	if s.docs[db] == nil {
		s.docs[db] = make(map[string]document)
	}
	s.docs[db][doc.ID] = doc
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, doc)
}

func handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"user":     r.Header.Get(headerUser),
		"authType": r.Header.Get(headerAuthType),
		"database": r.Header.Get(headerDatabase),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
