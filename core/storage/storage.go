/*
Package storage implements the in-memory record store.

A Store holds named collections of JSON-like records keyed by opaque string
IDs. Collections keep insertion order. Every record handed out by the store is
a deep copy of the stored state, so callers can never mutate the store through
a returned value. All state is process-lifetime; nothing is ever persisted.
*/
package storage

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is a single stored JSON-like object.
type Record map[string]interface{}

// Reserved bookkeeping fields. Clients may not set these directly; they are
// stripped from every incoming write.
const (
	FieldID        = "_id"
	FieldOwnerID   = "_ownerId"
	FieldCreatedOn = "_createdOn"
	FieldUpdatedOn = "_updatedOn"
	FieldDeletedOn = "_deletedOn"
)

var reservedFields = []string{FieldID, FieldCreatedOn, FieldUpdatedOn, FieldOwnerID}

type collection struct {
	records map[string]Record
	order   []string
}

// Store is a named set of insertion-ordered collections. It is safe for
// concurrent use; each operation is atomic, but there is no cross-operation
// transaction.
type Store struct {
	mutex       sync.Mutex
	collections map[string]*collection
	order       []string
}

// New creates an empty store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// NewFromSeed creates a store populated with seed data. Seed collections and
// records are inserted in sorted key order so that startup is deterministic.
func NewFromSeed(seed map[string]map[string]Record) *Store {
	s := New()
	names := make([]string, 0, len(seed))
	for name := range seed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := s.createCollection(name)
		ids := make([]string, 0, len(seed[name]))
		for id := range seed[name] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			c.records[id] = deepCopy(seed[name][id]).(Record)
			c.order = append(c.order, id)
		}
	}
	return s
}

func (s *Store) createCollection(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{records: make(map[string]Record)}
		s.collections[name] = c
		s.order = append(s.order, name)
	}
	return c
}

// Collections returns the names of all collections in insertion order.
func (s *Store) Collections() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// GetAll returns copies of all records in the collection, each tagged with
// its record ID, in insertion order.
func (s *Store) GetAll(name string) ([]Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection does not exist: %s", name)
	}
	result := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, tagged(c.records[id], id))
	}
	return result, nil
}

// Get returns a copy of a single record tagged with its record ID.
func (s *Store) Get(name, id string) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection does not exist: %s", name)
	}
	record, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("entry does not exist: %s", id)
	}
	return tagged(record, id), nil
}

// Add stores a new record under a freshly generated unique ID and stamps the
// creation time. Reserved fields in data are stripped, with one exception:
// a caller-supplied owner ID is kept (the resource service uses this to stamp
// ownership). The collection is created if it does not exist yet.
func (s *Store) Add(name string, data Record) Record {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	record := Record{}
	if owner, ok := data[FieldOwnerID]; ok {
		record[FieldOwnerID] = owner
	}
	assignClean(record, data)
	record[FieldCreatedOn] = now()

	c := s.createCollection(name)
	id := uuid.NewString()
	for _, exists := c.records[id]; exists; _, exists = c.records[id] {
		id = uuid.NewString()
	}
	c.records[id] = record
	c.order = append(c.order, id)
	return tagged(record, id)
}

// Set shallow-merges cleaned data onto the existing record, stamps the update
// time, and returns the updated copy. Fields not present in data are
// preserved; reserved fields, including the owner, cannot be changed.
func (s *Store) Set(name, id string, data Record) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection does not exist: %s", name)
	}
	existing, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("entry does not exist: %s", id)
	}
	record := deepCopy(existing).(Record)
	assignClean(record, data)
	record[FieldUpdatedOn] = now()
	c.records[id] = record
	return tagged(record, id), nil
}

// Delete removes the record and returns a deletion marker with the server
// time of deletion.
func (s *Store) Delete(name, id string) (Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection does not exist: %s", name)
	}
	if _, ok := c.records[id]; !ok {
		return nil, fmt.Errorf("entry does not exist: %s", id)
	}
	delete(c.records, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return Record{FieldDeletedOn: now()}, nil
}

// Query returns copies of every record where, for each field present in
// match, the record's value equals the query value. String comparison is
// case-insensitive; all other types use strict equality. Records are returned
// in insertion order.
func (s *Store) Query(name string, match Record) ([]Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection does not exist: %s", name)
	}
	var result []Record
	for _, id := range c.order {
		record := c.records[id]
		matches := true
		for field, want := range match {
			if !equalValues(record[field], want) {
				matches = false
				break
			}
		}
		if matches {
			result = append(result, tagged(record, id))
		}
	}
	return result, nil
}

func equalValues(have, want interface{}) bool {
	if haveStr, ok := have.(string); ok {
		if wantStr, ok := want.(string); ok {
			return strings.EqualFold(haveStr, wantStr)
		}
	}
	haveNum, haveOK := AsNumber(have)
	wantNum, wantOK := AsNumber(want)
	if haveOK && wantOK {
		return haveNum == wantNum
	}
	return reflect.DeepEqual(have, want)
}

// AsNumber reports a value as float64 if it is any JSON-compatible number.
func AsNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// assignClean copies all non-reserved fields of data into target, deep
// copying every value.
func assignClean(target, data Record) {
	for field, value := range data {
		if isReserved(field) {
			continue
		}
		target[field] = deepCopy(value)
	}
}

func isReserved(field string) bool {
	for _, reserved := range reservedFields {
		if field == reserved {
			return true
		}
	}
	return false
}

// tagged returns a deep copy of the record with its ID attached.
func tagged(record Record, id string) Record {
	result := deepCopy(record).(Record)
	result[FieldID] = id
	return result
}

func deepCopy(value interface{}) interface{} {
	switch v := value.(type) {
	case Record:
		result := make(Record, len(v))
		for field, fieldValue := range v {
			result[field] = deepCopy(fieldValue)
		}
		return result
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for field, fieldValue := range v {
			result[field] = deepCopy(fieldValue)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, element := range v {
			result[i] = deepCopy(element)
		}
		return result
	default:
		return value
	}
}

// now returns the server timestamp stamped into records, milliseconds since
// the epoch.
func now() int64 {
	return time.Now().UnixMilli()
}
