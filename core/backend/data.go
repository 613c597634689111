package backend

import (
	"net/http"
	"strings"

	"github.com/yoanarobeva/book-reads-app-server/core"
	"github.com/yoanarobeva/book-reads-app-server/core/access"
	"github.com/yoanarobeva/book-reads-app-server/core/logger"
	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

// pathTokens splits the request path below the service prefix into its
// segments.
func pathTokens(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// serviceName extracts the first path segment.
func serviceName(path string) string {
	tokens := pathTokens(path, "/")
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

// dataService is the ownership-gated resource service. It serves arbitrary
// collections from the general store: reads are open, writes require a
// caller and mutation requires ownership.
func (b *Backend) dataService(w http.ResponseWriter, r *http.Request) {
	tokens := pathTokens(r.URL.Path, "/data")
	collection := ""
	if len(tokens) > 0 {
		collection = tokens[0]
		tokens = tokens[1:]
	}
	if len(tokens) > 1 {
		core.WriteError(w, core.RequestError(""))
		return
	}

	var result interface{}
	var err error
	switch r.Method {
	case http.MethodGet:
		result, err = b.dataGet(r, collection, tokens)
	case http.MethodPost:
		result, err = b.dataPost(r, collection, tokens)
	case http.MethodPut:
		result, err = b.dataPut(r, collection, tokens)
	case http.MethodDelete:
		result, err = b.dataDelete(r, collection, tokens)
	default:
		err = core.RequestError("")
	}
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Infof("data: %s %s rejected", r.Method, r.URL.Path)
		core.WriteError(w, err)
		return
	}
	writeJSON(w, result)
}

func (b *Backend) dataGet(r *http.Request, collection string, tokens []string) (interface{}, error) {
	if collection == "" {
		return b.storage.Collections(), nil
	}
	params := r.URL.Query()

	var data interface{}
	// an empty where is treated as absent, like the other modifiers
	if params.Get("where") != "" {
		match, err := compileWhere(params.Get("where"))
		if err != nil {
			return nil, core.AsError(err)
		}
		records, err := b.storage.GetAll(collection)
		if err != nil {
			return nil, core.AsError(err)
		}
		filtered := []storage.Record{}
		for _, record := range records {
			ok, err := match(record)
			if err != nil {
				return nil, core.AsError(err)
			}
			if ok {
				filtered = append(filtered, record)
			}
		}
		data = filtered
	} else if len(tokens) == 1 {
		record, err := b.storage.Get(collection, tokens[0])
		if err != nil {
			return nil, core.AsError(err)
		}
		data = record
	} else {
		records, err := b.storage.GetAll(collection)
		if err != nil {
			return nil, core.AsError(err)
		}
		data = records
	}

	result, err := applyQuery(data, params, b.resolveRelated)
	if err != nil {
		return nil, core.AsError(err)
	}
	return result, nil
}

// resolveRelated serves load specifiers. User records come from the
// protected store with the password hash removed; everything else from the
// general store.
func (b *Backend) resolveRelated(collection, id string) (storage.Record, error) {
	source := b.storage
	if collection == "users" {
		source = b.protected
	}
	related, err := source.Get(collection, id)
	if err != nil {
		return nil, err
	}
	delete(related, "hashedPassword")
	return related, nil
}

func (b *Backend) dataPost(r *http.Request, collection string, tokens []string) (interface{}, error) {
	if len(tokens) > 0 {
		return nil, core.RequestError("Use PUT to update records")
	}
	caller := access.CallerFromContext(r.Context())
	if caller == nil {
		return nil, core.AuthorizationError("")
	}
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	body[storage.FieldOwnerID] = caller[storage.FieldID]
	return b.storage.Add(collection, body), nil
}

func (b *Backend) dataPut(r *http.Request, collection string, tokens []string) (interface{}, error) {
	existing, body, err := b.dataMutation(r, collection, tokens)
	if err != nil {
		return nil, err
	}
	id, _ := existing[storage.FieldID].(string)
	updated, err := b.storage.Set(collection, id, body)
	if err != nil {
		return nil, core.RequestError("")
	}
	return updated, nil
}

func (b *Backend) dataDelete(r *http.Request, collection string, tokens []string) (interface{}, error) {
	existing, _, err := b.dataMutation(r, collection, tokens)
	if err != nil {
		return nil, err
	}
	id, _ := existing[storage.FieldID].(string)
	deleted, err := b.storage.Delete(collection, id)
	if err != nil {
		return nil, core.RequestError("")
	}
	return deleted, nil
}

// dataMutation does the shared validation for PUT and DELETE: exactly one
// ID, an authenticated caller, an existing record and ownership.
func (b *Backend) dataMutation(r *http.Request, collection string, tokens []string) (storage.Record, storage.Record, error) {
	if len(tokens) != 1 {
		return nil, nil, core.RequestError("Missing entry ID")
	}
	caller := access.CallerFromContext(r.Context())
	if caller == nil {
		return nil, nil, core.AuthorizationError("")
	}
	var body storage.Record
	if r.Method == http.MethodPut {
		var err error
		body, err = readBody(r)
		if err != nil {
			return nil, nil, err
		}
	}
	existing, err := b.storage.Get(collection, tokens[0])
	if err != nil {
		return nil, nil, core.NotFoundError("")
	}
	if caller[storage.FieldID] != existing[storage.FieldOwnerID] {
		return nil, nil, core.CredentialError("")
	}
	return existing, body, nil
}
