// Package seed loads initial store contents from JSON files. Every file in
// a seed directory holds one collection, keyed by record ID; the file name
// without the .json extension is the collection name.
package seed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

// collectionSchema validates the overall shape of a seed file: an object of
// objects. Record fields themselves are free-form.
const collectionSchema = `{
	"type": "object",
	"additionalProperties": { "type": "object" }
}`

var schema = gojsonschema.NewStringLoader(collectionSchema)

// LoadDir reads every .json file in dir into a seed mapping suitable for
// storage.NewFromSeed. A missing directory yields an empty mapping.
func LoadDir(dir string) (map[string]map[string]storage.Record, error) {
	result := map[string]map[string]storage.Record{}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		collection, records, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		result[collection] = records
	}
	return result, nil
}

// LoadFile reads a single collection file and returns the collection name
// and its records.
func LoadFile(path string) (string, map[string]storage.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	collection := strings.TrimSuffix(filepath.Base(path), ".json")

	validation, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return "", nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	if !validation.Valid() {
		return "", nil, fmt.Errorf("seed file %s: %s", path, validation.Errors()[0].String())
	}

	var records map[string]storage.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return "", nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return collection, records, nil
}
