package backend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yoanarobeva/book-reads-app-server/core"
	"github.com/yoanarobeva/book-reads-app-server/core/access"
	"github.com/yoanarobeva/book-reads-app-server/core/logger"
)

// handleUsersRoutes adds the account routes. Register and login answer with
// the user record carrying a fresh access token; logout answers 204.
func (b *Backend) handleUsersRoutes(router *mux.Router) {
	router.HandleFunc("/users/register", func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			core.WriteError(w, err)
			return
		}
		result, err := b.access.Register(body)
		if err != nil {
			core.WriteError(w, err)
			return
		}
		logger.FromContext(r.Context()).Infof("registered %v", result[b.access.Identity()])
		writeJSON(w, result)
	}).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			core.WriteError(w, err)
			return
		}
		result, err := b.access.Login(body)
		if err != nil {
			core.WriteError(w, err)
			return
		}
		writeJSON(w, result)
	}).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/users/logout", func(w http.ResponseWriter, r *http.Request) {
		caller := access.CallerFromContext(r.Context())
		if err := b.access.Logout(caller); err != nil {
			core.WriteError(w, err)
			return
		}
		writeJSON(w, nil)
	}).Methods(http.MethodGet, http.MethodOptions)
}
