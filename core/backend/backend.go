// Package backend wires the record store, the query engine and the access
// layer into a REST service. All services answer JSON; errors come back as
// {"code","message"} objects from the shared taxonomy.
package backend

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/yoanarobeva/book-reads-app-server/core"
	"github.com/yoanarobeva/book-reads-app-server/core/access"
	"github.com/yoanarobeva/book-reads-app-server/core/logger"
	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

// DefaultSecret signs tokens when the builder does not bring its own. It is
// intentionally public knowledge.
const DefaultSecret = "This is not a production server"

// DefaultIdentity is the account property used to identify users when the
// builder does not specify one.
const DefaultIdentity = "email"

// Backend is the assembled REST service.
type Backend struct {
	storage   *storage.Store
	protected *storage.Store
	access    *access.Manager
	router    *mux.Router
	settings  *settings
}

// settings holds the runtime toggles of the /util service.
type settings struct {
	Throttle bool `json:"throttle"`
}

// Builder is a builder helper for the Backend.
type Builder struct {
	// Storage holds the client-facing collections. This is mandatory.
	Storage *storage.Store
	// Protected holds accounts and sessions, never exposed through /data
	// or /jsonstore. This is mandatory.
	Protected *storage.Store
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Identity is the account property used for login, "email" when empty.
	Identity string
	// Secret signs access tokens and password hashes. Optional.
	Secret string
	// Throttle enables the artificial response delay at startup. It can be
	// toggled at runtime through the /util service.
	Throttle bool
}

// New realizes the actual backend. It adds all service routes to the router.
func New(bb *Builder) *Backend {
	if bb.Storage == nil {
		panic("Storage is missing")
	}
	if bb.Protected == nil {
		panic("Protected is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}
	identity := bb.Identity
	if identity == "" {
		identity = DefaultIdentity
	}
	secret := bb.Secret
	if secret == "" {
		secret = DefaultSecret
	}

	b := &Backend{
		storage:   bb.Storage,
		protected: bb.Protected,
		access:    access.NewManager(bb.Protected, identity, []byte(secret)),
		router:    bb.Router,
		settings:  &settings{Throttle: bb.Throttle},
	}

	logger.AddRequestID(b.router)
	b.router.Use(corsMiddleware)
	b.router.Use(recoveryMiddleware)
	b.router.Use(b.throttleMiddleware)
	b.router.Use(b.access.Middleware)
	b.handleRoutes(b.router)
	return b
}

// Access returns the access manager, mainly for tests and embedding hosts.
func (b *Backend) Access() *access.Manager {
	return b.access
}

func (b *Backend) handleRoutes(router *mux.Router) {
	logger.Default().Debugln("backend: HandleRoutes")

	router.PathPrefix("/data").HandlerFunc(b.dataService)
	b.handleUsersRoutes(router)
	router.PathPrefix("/jsonstore").HandlerFunc(b.jsonstoreService)
	b.handleUtilRoutes(router)

	// catch-all keeps unknown services inside the middleware chain
	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := serviceName(r.URL.Path)
		core.WriteError(w, core.RequestError(`Service "`+name+`" is not supported`))
	})
}

// corsMiddleware opens the service up for browser clients. Preflight
// requests are answered without entering any service.
func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+access.AuthorizationHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// recoveryMiddleware converts panics into a generic server error, so
// internals never leak to the client.
func recoveryMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromContext(r.Context()).Errorf("recovered from panic: %v", rec)
				core.WriteError(w, &core.Error{Status: http.StatusInternalServerError, Message: "Server Error"})
			}
		}()
		h.ServeHTTP(w, r)
	})
}

// throttleMiddleware delays every response by half a second to a second
// while throttling is enabled, to simulate network latency for frontend
// development.
func (b *Backend) throttleMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.settings.Throttle {
			time.Sleep(time.Duration(500+rand.Intn(500)) * time.Millisecond)
		}
		h.ServeHTTP(w, r)
	})
}

// writeJSON serializes a success response. A nil body answers 204.
func writeJSON(w http.ResponseWriter, body interface{}) {
	if body == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		core.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}

// readBody decodes the request body as a JSON object.
func readBody(r *http.Request) (storage.Record, error) {
	var body storage.Record
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, core.RequestError(err.Error())
	}
	return body, nil
}
