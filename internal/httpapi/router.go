package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router is a thin wrapper over http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterReceiverRoutes serves the status endpoint on /healthz and upgrades
// every other path to a WebSocket.
func (r *Router) RegisterReceiverRoutes(ingest http.Handler, status *StatusHandler) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, Fail("method not allowed"))
			return
		}
		status.Health(w, req)
	})
	r.HandleHandler("/", ingest)
}
