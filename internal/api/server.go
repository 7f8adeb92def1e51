package api

import (
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/keeperhq/datanode/internal/config"
	"github.com/keeperhq/datanode/internal/service"
)

// Identity headers populated by the upstream auth layer. The core trusts
// them beyond the ownership checks.
const (
	headerAccountID   = "X-Account-Id"
	headerAccountType = "X-Account-Type"
)

// Server wires the service layer to a thin JSON HTTP surface.
type Server struct {
	schemas *service.SchemaService
	queries *service.QueryService
	data    *service.DataService
	build   config.BuildInfo
	log     *zap.Logger
}

// NewServer creates the HTTP server facade.
func NewServer(
	schemas *service.SchemaService,
	queries *service.QueryService,
	data *service.DataService,
	build config.BuildInfo,
	log *zap.Logger,
) *Server {
	return &Server{schemas: schemas, queries: queries, data: data, build: build, log: log}
}

// Handler builds the route table with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/v1/schemas", s.handleAddSchema)
	mux.HandleFunc("GET /api/v1/schemas", s.handleListSchemas)
	mux.HandleFunc("DELETE /api/v1/schemas/{id}", s.handleDeleteSchema)
	mux.HandleFunc("POST /api/v1/schemas/{id}/indexes", s.handleCreateIndex)
	mux.HandleFunc("DELETE /api/v1/schemas/{id}/indexes/{name}", s.handleDropIndex)

	mux.HandleFunc("POST /api/v1/queries", s.handleAddQuery)
	mux.HandleFunc("GET /api/v1/queries", s.handleListQueries)
	mux.HandleFunc("DELETE /api/v1/queries/{id}", s.handleDeleteQuery)
	mux.HandleFunc("POST /api/v1/queries/execute", s.handleExecuteQuery)

	mux.HandleFunc("POST /api/v1/data/create", s.handleUpload)
	mux.HandleFunc("POST /api/v1/data/read", s.handleRead)
	mux.HandleFunc("POST /api/v1/data/update", s.handleUpdate)
	mux.HandleFunc("POST /api/v1/data/delete", s.handleDelete)
	mux.HandleFunc("POST /api/v1/data/flush", s.handleFlush)
	mux.HandleFunc("GET /api/v1/data/tail", s.handleTail)

	corsHandler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	return LoggingMiddleware(s.log, corsHandler.Handler(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.build.Version,
		"commit":  s.build.Commit,
		"started": s.build.StartedAt,
	})
}

// caller extracts the authenticated principal. Requests without identity
// headers are rejected before any service work.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := r.Header.Get(headerAccountID)
	if accountID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing account identity"})
		return "", false
	}
	return accountID, true
}
