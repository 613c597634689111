package backend

import (
	"net/http"

	"github.com/yoanarobeva/book-reads-app-server/core"
	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

// jsonstoreService is the unauthenticated playground store: plain CRUD on
// the general store with no ownership checks and no query modifiers.
func (b *Backend) jsonstoreService(w http.ResponseWriter, r *http.Request) {
	tokens := pathTokens(r.URL.Path, "/jsonstore")
	collection := ""
	if len(tokens) > 0 {
		collection = tokens[0]
		tokens = tokens[1:]
	}
	if collection == "" || len(tokens) > 1 {
		core.WriteError(w, core.RequestError(""))
		return
	}

	var result interface{}
	var err error
	switch r.Method {
	case http.MethodGet:
		if len(tokens) == 1 {
			result, err = b.storage.Get(collection, tokens[0])
		} else {
			result, err = b.storage.GetAll(collection)
		}
	case http.MethodPost:
		if len(tokens) > 0 {
			err = core.RequestError("Use PUT to update records")
			break
		}
		var body storage.Record
		if body, err = readBody(r); err == nil {
			result = b.storage.Add(collection, body)
		}
	case http.MethodPut:
		if len(tokens) != 1 {
			err = core.RequestError("Missing entry ID")
			break
		}
		var body storage.Record
		if body, err = readBody(r); err == nil {
			result, err = b.storage.Set(collection, tokens[0], body)
		}
	case http.MethodDelete:
		if len(tokens) != 1 {
			err = core.RequestError("Missing entry ID")
			break
		}
		result, err = b.storage.Delete(collection, tokens[0])
	default:
		err = core.RequestError("")
	}
	if err != nil {
		core.WriteError(w, err)
		return
	}
	writeJSON(w, result)
}
