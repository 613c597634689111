package backend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yoanarobeva/book-reads-app-server/core"
	"github.com/yoanarobeva/book-reads-app-server/core/logger"
)

// handleUtilRoutes adds the runtime settings service. POST /util applies
// the flags in the body; GET /util/{setting} reads one back.
func (b *Backend) handleUtilRoutes(router *mux.Router) {
	router.HandleFunc("/util", func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			core.WriteError(w, err)
			return
		}
		if throttle, ok := body["throttle"].(bool); ok {
			b.settings.Throttle = throttle
			logger.FromContext(r.Context()).Infof("throttle set to %v", throttle)
		}
		writeJSON(w, b.settings)
	}).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/util/{setting}", func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["setting"] {
		case "throttle":
			writeJSON(w, b.settings.Throttle)
		default:
			writeJSON(w, nil)
		}
	}).Methods(http.MethodGet, http.MethodOptions)
}
