package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/keeperhq/datanode/internal/data"
	"github.com/keeperhq/datanode/internal/domain"
)

type addSchemaRequest struct {
	Name   string          `json:"name"`
	Keys   []string        `json:"keys"`
	Schema json.RawMessage `json:"schema"`
}

func (s *Server) handleAddSchema(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	var req addSchemaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.schemas.AddSchema(r.Context(), accountID, req.Name, req.Keys, req.Schema)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	schemas, err := s.schemas.ListSchemas(r.Context(), accountID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (s *Server) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.schemas.DeleteSchema(r.Context(), accountID, id); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var spec data.IndexSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	if err := s.data.CreateIndex(r.Context(), accountID, id, spec); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDropIndex(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.data.DropIndex(r.Context(), accountID, id, r.PathValue("name")); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addQueryRequest struct {
	Name      string                         `json:"name"`
	Schema    uuid.UUID                      `json:"schema"`
	Variables map[string]domain.VariableSpec `json:"variables"`
	Pipeline  []map[string]any               `json:"pipeline"`
}

func (s *Server) handleAddQuery(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	var req addQueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.queries.AddQuery(r.Context(), accountID, req.Name, req.Schema, req.Variables, toPipeline(req.Pipeline))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	queries, err := s.queries.ListQueries(r.Context(), accountID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, queries)
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.queries.DeleteQuery(r.Context(), accountID, id); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type executeQueryRequest struct {
	ID        uuid.UUID      `json:"id"`
	Variables map[string]any `json:"variables"`
}

func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	var req executeQueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	results, err := s.queries.ExecuteQuery(r.Context(), accountID, req.ID, req.Variables)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": results})
}

type uploadRequest struct {
	Schema uuid.UUID        `json:"schema"`
	Data   []map[string]any `json:"data"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	var req uploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.data.Upload(r.Context(), accountID, req.Schema, req.Data)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type filterRequest struct {
	Schema uuid.UUID      `json:"schema"`
	Filter map[string]any `json:"filter"`
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	var req filterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	docs, err := s.data.Read(r.Context(), accountID, req.Schema, req.Filter)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": docs})
}

type updateRequest struct {
	Schema uuid.UUID      `json:"schema"`
	Filter map[string]any `json:"filter"`
	Update map[string]any `json:"update"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.data.Update(r.Context(), accountID, req.Schema, req.Filter, req.Update)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	var req filterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deleted, err := s.data.Delete(r.Context(), accountID, req.Schema, req.Filter)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

type flushRequest struct {
	Schema uuid.UUID `json:"schema"`
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	var req flushRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deleted, err := s.data.Flush(r.Context(), accountID, req.Schema)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	accountID, ok := caller(w, r)
	if !ok {
		return
	}
	schemaID, err := uuid.Parse(r.URL.Query().Get("schema"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid schema id: %v", err)})
		return
	}
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return
		}
	}
	docs, err := s.data.Tail(r.Context(), accountID, schemaID, limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": docs})
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(key))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid %s: %v", key, err)})
		return uuid.Nil, false
	}
	return id, true
}

func toPipeline(stages []map[string]any) []bson.M {
	out := make([]bson.M, len(stages))
	for i, stage := range stages {
		out[i] = bson.M(stage)
	}
	return out
}
