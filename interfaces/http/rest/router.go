package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/application/services"
	"codetrail/infrastructure/config"
	"codetrail/interfaces/http/rest/handlers"
	"codetrail/interfaces/http/rest/middleware"
	"codetrail/pkg/common"
	pkgerrors "codetrail/pkg/errors"
	"codetrail/pkg/observability"
)

// Router creates and configures the HTTP router
type Router struct {
	nodes     *services.NodeManager
	clipboard *services.ClipboardManager
	order     *services.NodeOrderManager
	graphs    ports.GraphProvider
	metrics   *observability.Collector
	cfg       *config.Config
	logger    *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	nodes *services.NodeManager,
	clipboard *services.ClipboardManager,
	order *services.NodeOrderManager,
	graphs ports.GraphProvider,
	metrics *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		nodes:     nodes,
		clipboard: clipboard,
		order:     order,
		graphs:    graphs,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	errorHandler := pkgerrors.NewErrorHandler(rt.logger, rt.cfg.IsDevelopment())
	router.Use(errorHandler.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.cfg.EnableMetrics {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:*", "vscode-webview://*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	if rt.cfg.EnableMetrics {
		router.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		// Node endpoints
		r.Route("/nodes", func(r chi.Router) {
			nodeHandler := handlers.NewNodeHandler(rt.nodes, rt.metrics, rt.logger)
			orderHandler := handlers.NewOrderHandler(rt.order, rt.metrics, rt.logger)

			r.Post("/", nodeHandler.CreateNode)
			r.Post("/sibling", nodeHandler.CreateSiblingNode)
			r.Get("/search", nodeHandler.FindNodes)

			r.Get("/current", nodeHandler.GetCurrentNode)
			r.Put("/current", nodeHandler.SetCurrentNode)
			r.Delete("/current", nodeHandler.ClearCurrentNode)

			r.Get("/{nodeID}", nodeHandler.GetNode)
			r.Patch("/{nodeID}", nodeHandler.UpdateNode)
			r.Delete("/{nodeID}", nodeHandler.DeleteNode)
			r.Post("/{nodeID}/children", nodeHandler.CreateChildNode)
			r.Post("/{nodeID}/parent", nodeHandler.CreateParentNode)
			r.Post("/{nodeID}/validate-location", nodeHandler.ValidateLocation)
			r.Post("/{nodeID}/relocate", nodeHandler.RelocateNode)

			// Sibling ordering
			r.Get("/{nodeID}/order", orderHandler.Position)
			r.Put("/{nodeID}/order", orderHandler.MoveToPosition)
			r.Post("/{nodeID}/order/up", orderHandler.MoveUp)
			r.Post("/{nodeID}/order/down", orderHandler.MoveDown)
		})

		// Clipboard endpoints
		r.Route("/clipboard", func(r chi.Router) {
			clipboardHandler := handlers.NewClipboardHandler(rt.clipboard, rt.metrics, rt.logger)
			r.Get("/", clipboardHandler.Info)
			r.Delete("/", clipboardHandler.Clear)
			r.Post("/copy", clipboardHandler.Copy)
			r.Post("/cut", clipboardHandler.Cut)
			r.Post("/paste", clipboardHandler.Paste)
		})

		// Graph endpoints
		r.Route("/graphs", func(r chi.Router) {
			graphHandler := handlers.NewGraphHandler(rt.graphs, rt.logger)
			r.Get("/", graphHandler.ListGraphs)
			r.Post("/", graphHandler.CreateGraph)
			r.Get("/current", graphHandler.GetCurrentGraph)
			r.Put("/current", graphHandler.SwitchCurrentGraph)
			r.Get("/{graphID}", graphHandler.GetGraph)
			r.Delete("/{graphID}", graphHandler.DeleteGraph)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
