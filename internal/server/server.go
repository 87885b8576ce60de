package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feedopt/feedopt/internal/utils"
	"github.com/feedopt/feedopt/pkg/catalog"
	"github.com/feedopt/feedopt/pkg/formulation"
	"github.com/feedopt/feedopt/pkg/gateway"
)

// Gateway is the part of gateway.Client the server needs.
type Gateway interface {
	FetchCatalog(ctx context.Context) (formulation.Vocabulary, error)
	SubmitOptimization(ctx context.Context, req formulation.Request) (gateway.Optimization, error)
	SubmitConsultation(ctx context.Context, d formulation.Draft) (formulation.Consultation, error)
	ImportCatalog(ctx context.Context, filename string, r io.Reader, session string) (string, error)
	ExportCatalog(ctx context.Context, session string) (gateway.Download, error)
}

// ResultStore holds the single last-optimization slot.
type ResultStore interface {
	SaveLastResult(ctx context.Context, raw []byte) error
	LastResult(ctx context.Context) ([]byte, bool, error)
}

type Server struct {
	Gateway   Gateway
	Results   ResultStore
	Materials *catalog.Store
	Username  string
	Password  string

	// DefaultCostCeiling is used when an optimize call omits cost_ceiling.
	DefaultCostCeiling float64

	mu    sync.Mutex
	views map[string]*view
}

func New(gw Gateway, results ResultStore, materials *catalog.Store, user, pass string) *Server {
	return &Server{
		Gateway:            gw,
		Results:            results,
		Materials:          materials,
		Username:           user,
		Password:           pass,
		DefaultCostCeiling: 9999,
		views:              make(map[string]*view),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/catalog", s.basicAuth(s.handleCatalog))
	mux.HandleFunc("POST /api/catalog/import", s.basicAuth(s.handleCatalogImport))
	mux.HandleFunc("GET /api/catalog/export", s.basicAuth(s.handleCatalogExport))

	mux.HandleFunc("POST /api/views", s.basicAuth(s.handleCreateView))
	mux.HandleFunc("DELETE /api/views/{id}", s.basicAuth(s.handleDeleteView))
	mux.HandleFunc("GET /api/views/{id}/constraints", s.basicAuth(s.withView(s.handleListConstraints)))
	mux.HandleFunc("POST /api/views/{id}/constraints", s.basicAuth(s.withView(s.handleAddConstraint)))
	mux.HandleFunc("PATCH /api/views/{id}/constraints/{cid}", s.basicAuth(s.withView(s.handleUpdateConstraint)))
	mux.HandleFunc("DELETE /api/views/{id}/constraints/{cid}", s.basicAuth(s.withView(s.handleRemoveConstraint)))
	mux.HandleFunc("POST /api/views/{id}/optimize", s.basicAuth(s.withView(s.handleOptimize)))
	mux.HandleFunc("GET /api/views/{id}/draft", s.basicAuth(s.withView(s.handleDraft)))
	mux.HandleFunc("PUT /api/views/{id}/draft/{material}", s.basicAuth(s.withView(s.handleSetDraft)))
	mux.HandleFunc("POST /api/views/{id}/consult", s.basicAuth(s.withView(s.handleConsult)))

	mux.HandleFunc("GET /api/results/latest", s.basicAuth(s.handleLatestResult))
	mux.HandleFunc("GET /api/results/latest/export", s.basicAuth(s.handleExportLatest))

	mux.HandleFunc("GET /api/materials", s.basicAuth(s.handleListMaterials))
	mux.HandleFunc("POST /api/materials", s.basicAuth(s.handleAddMaterial))
	mux.HandleFunc("DELETE /api/materials/{name}", s.basicAuth(s.handleRemoveMaterial))

	mux.Handle("GET /metrics", s.basicAuthMiddleware(promhttp.Handler()))
	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return s.basicAuthMiddleware(next).ServeHTTP
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Log.WithError(err).Debug("write response")
	}
}

// gatewayError reports a failed call to the optimization service.
func gatewayError(w http.ResponseWriter, err error) {
	utils.Log.WithError(err).Warn("optimization service call failed")
	http.Error(w, gateway.StatusMessage(err), http.StatusBadGateway)
}

// refreshMaterials picks up materials other processes wrote to the shared
// database. On failure the last loaded list is kept.
func (s *Server) refreshMaterials(ctx context.Context) {
	if s.Materials == nil {
		return
	}
	if err := s.Materials.Load(ctx); err != nil {
		utils.Log.WithError(err).Warn("could not reload local materials")
	}
}
