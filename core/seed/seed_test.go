package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "books.json", `{
		"b1": {"title": "Wings of Fire", "pages": 320},
		"b2": {"title": "The Silent Sea"}
	}`)

	collection, records, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "books", collection)
	assert.Len(t, records, 2)
	assert.Equal(t, "Wings of Fire", records["b1"]["title"])
}

func TestLoadFileRejectsWrongShape(t *testing.T) {
	dir := t.TempDir()

	_, _, err := LoadFile(writeFile(t, dir, "books.json", `[{"title": "x"}]`))
	assert.Error(t, err, "a top-level array is not a collection")

	_, _, err = LoadFile(writeFile(t, dir, "flat.json", `{"b1": "just a string"}`))
	assert.Error(t, err, "records must be objects")

	_, _, err = LoadFile(writeFile(t, dir, "broken.json", `{"b1": {`))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "books.json", `{"b1": {"title": "A"}}`)
	writeFile(t, dir, "authors.json", `{"a1": {"name": "X"}}`)
	writeFile(t, dir, "readme.txt", `not a seed file`)

	seed, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, seed, 2)

	store := storage.NewFromSeed(seed)
	assert.ElementsMatch(t, []string{"authors", "books"}, store.Collections())
}

func TestLoadDirMissing(t *testing.T) {
	seed, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, seed)
}
