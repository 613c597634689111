package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddGeneratesUniqueIDs(t *testing.T) {
	store := New()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		record := store.Add("books", Record{"title": "Wings"})
		id, ok := record[FieldID].(string)
		if !ok || id == "" {
			t.Fatal("no id on added record")
		}
		if seen[id] {
			t.Fatal("duplicate id:", id)
		}
		seen[id] = true
	}
}

func TestAddStripsReservedFields(t *testing.T) {
	store := New()
	record := store.Add("books", Record{
		"title":        "Wings",
		FieldID:        "forged",
		FieldCreatedOn: 42,
		FieldUpdatedOn: 42,
	})
	assert.NotEqual(t, "forged", record[FieldID])
	assert.NotEqual(t, 42, record[FieldCreatedOn])
	assert.NotContains(t, record, FieldUpdatedOn)
	assert.Greater(t, record[FieldCreatedOn].(int64), int64(0))
}

func TestAddKeepsCallerSuppliedOwner(t *testing.T) {
	store := New()
	record := store.Add("books", Record{"title": "Wings", FieldOwnerID: "user-1"})
	assert.Equal(t, "user-1", record[FieldOwnerID])
}

func TestReadsReturnCopies(t *testing.T) {
	store := New()
	added := store.Add("books", Record{
		"title": "Wings",
		"meta":  map[string]interface{}{"pages": 120.0},
	})
	id := added[FieldID].(string)

	first, err := store.Get("books", id)
	if err != nil {
		t.Fatal(err)
	}
	first["title"] = "mutated"
	first["meta"].(map[string]interface{})["pages"] = 1.0

	second, err := store.Get("books", id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Wings", second["title"])
	assert.Equal(t, 120.0, second["meta"].(map[string]interface{})["pages"])
}

func TestSetMergesAndStampsUpdate(t *testing.T) {
	store := New()
	added := store.Add("books", Record{"title": "Wings", "author": "A"})
	id := added[FieldID].(string)

	updated, err := store.Set("books", id, Record{"title": "Wings II", FieldOwnerID: "forged"})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Wings II", updated["title"])
	assert.Equal(t, "A", updated["author"], "fields not present in the update must survive")
	assert.NotEqual(t, "forged", updated[FieldOwnerID])
	assert.Contains(t, updated, FieldUpdatedOn)
	assert.Equal(t, added[FieldCreatedOn], updated[FieldCreatedOn])
}

func TestDeleteRemovesRecord(t *testing.T) {
	store := New()
	added := store.Add("books", Record{"title": "Wings"})
	id := added[FieldID].(string)

	marker, err := store.Delete("books", id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Contains(t, marker, FieldDeletedOn)

	_, err = store.Get("books", id)
	assert.Error(t, err)

	_, err = store.Delete("books", id)
	assert.Error(t, err)
}

func TestMissingCollectionAndEntry(t *testing.T) {
	store := New()
	_, err := store.GetAll("nope")
	assert.ErrorContains(t, err, "does not exist")

	store.Add("books", Record{"title": "Wings"})
	_, err = store.Get("books", "nope")
	assert.ErrorContains(t, err, "does not exist")
}

func TestQueryMatchesCaseInsensitive(t *testing.T) {
	store := New()
	store.Add("users", Record{"email": "Peter@abv.bg", "age": 30.0})
	store.Add("users", Record{"email": "john@abv.bg", "age": 30.0})

	result, err := store.Query("users", Record{"email": "peter@abv.bg"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 {
		t.Fatal("expected exactly one match, got", len(result))
	}
	assert.Equal(t, "Peter@abv.bg", result[0]["email"])

	result, err = store.Query("users", Record{"age": 30})
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, result, 2, "numeric match must not depend on the number type")
}

func TestCollectionsAndInsertionOrder(t *testing.T) {
	seed := map[string]map[string]Record{
		"books": {
			"1": {"title": "A"},
			"2": {"title": "B"},
		},
		"authors": {
			"1": {"name": "X"},
		},
	}
	store := NewFromSeed(seed)
	assert.ElementsMatch(t, []string{"authors", "books"}, store.Collections())

	records, err := store.GetAll("books")
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, records, 2)

	added := store.Add("books", Record{"title": "C"})
	records, _ = store.GetAll("books")
	assert.Equal(t, added[FieldID], records[len(records)-1][FieldID], "new records append at the end")
}
