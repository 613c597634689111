package backend

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/yoanarobeva/book-reads-app-server/core/storage"
)

// errWhereSyntax is raised for anything that goes wrong while compiling a
// where expression. The details are deliberately not surfaced.
var errWhereSyntax = fmt.Errorf("Could not parse WHERE clause, check your syntax.")

// operators ordered longest first, so that "<=" wins over "<" when both
// match. The textual operators keep their surrounding spaces.
var clausePattern = regexp.MustCompile(`(?i)^(.+?)(<=|<|>=|>|=| like | in )(.+)$`)

var (
	andPattern = regexp.MustCompile(`(?i) and `)
	orPattern  = regexp.MustCompile(`(?i) or `)
	inPattern  = regexp.MustCompile(`\((.+?)\)`)
)

// predicate evaluates a compiled where clause against a single record.
// Evaluation can fail, e.g. when "like" meets a non-string field.
type predicate func(storage.Record) (bool, error)

// compileWhere turns a where expression into a predicate. Clauses are
// joined either by "and" or by "or"; a query mixing both does not compile.
func compileWhere(expr string) (predicate, error) {
	clauses := []string{strings.TrimSpace(expr)}
	disjunctive := false
	hasAnd := andPattern.MatchString(expr)
	hasOr := orPattern.MatchString(expr)
	switch {
	case hasAnd && hasOr:
		return nil, errWhereSyntax
	case hasAnd:
		clauses = andPattern.Split(expr, -1)
	case hasOr:
		clauses = orPattern.Split(expr, -1)
		disjunctive = true
	}

	checkers := make([]predicate, 0, len(clauses))
	for _, clause := range clauses {
		checker, err := compileClause(clause)
		if err != nil {
			return nil, errWhereSyntax
		}
		checkers = append(checkers, checker)
	}

	return func(record storage.Record) (bool, error) {
		for _, checker := range checkers {
			ok, err := checker(record)
			if err != nil {
				return false, err
			}
			if disjunctive && ok {
				return true, nil
			}
			if !disjunctive && !ok {
				return false, nil
			}
		}
		return !disjunctive, nil
	}, nil
}

func compileClause(clause string) (predicate, error) {
	parts := clausePattern.FindStringSubmatch(clause)
	if parts == nil {
		return nil, errWhereSyntax
	}
	prop := strings.TrimSpace(parts[1])
	operator := strings.ToLower(strings.TrimSpace(parts[2]))
	value := strings.TrimSpace(parts[3])

	switch operator {
	case "<=", "<", ">=", ">":
		literal, err := parseLiteral(value)
		if err != nil {
			return nil, err
		}
		return func(record storage.Record) (bool, error) {
			order, ok := orderLoose(record[prop], literal)
			if !ok {
				return false, nil
			}
			switch operator {
			case "<=":
				return order <= 0, nil
			case "<":
				return order < 0, nil
			case ">=":
				return order >= 0, nil
			default:
				return order > 0, nil
			}
		}, nil
	case "=":
		literal, err := parseLiteral(value)
		if err != nil {
			return nil, err
		}
		return func(record storage.Record) (bool, error) {
			return looseEqual(record[prop], literal), nil
		}, nil
	case "like":
		literal, err := parseLiteral(value)
		if err != nil {
			return nil, err
		}
		needle, ok := literal.(string)
		if !ok {
			return nil, errWhereSyntax
		}
		needle = strings.ToLower(needle)
		return func(record storage.Record) (bool, error) {
			haystack, ok := record[prop].(string)
			if !ok {
				return false, fmt.Errorf("cannot match %q against a non-string value", prop)
			}
			return strings.Contains(strings.ToLower(haystack), needle), nil
		}, nil
	case "in":
		group := inPattern.FindStringSubmatch(value)
		if group == nil {
			return nil, errWhereSyntax
		}
		var list []interface{}
		if err := json.Unmarshal([]byte("["+group[1]+"]"), &list); err != nil {
			return nil, errWhereSyntax
		}
		return func(record storage.Record) (bool, error) {
			for _, member := range list {
				if looseEqual(record[prop], member) {
					return true, nil
				}
			}
			return false, nil
		}, nil
	}
	return nil, errWhereSyntax
}

// parseLiteral decodes the right-hand side of a clause as a JSON value, so
// strings must be double-quoted and numbers are plain.
func parseLiteral(value string) (interface{}, error) {
	var literal interface{}
	if err := json.Unmarshal([]byte(value), &literal); err != nil {
		return nil, errWhereSyntax
	}
	return literal, nil
}

// looseEqual compares with numeric coercion, so a record holding the
// integer 3 matches the literal 3.0 and vice versa.
func looseEqual(have, want interface{}) bool {
	if a, ok := storage.AsNumber(have); ok {
		if b, ok := storage.AsNumber(want); ok {
			return a == b
		}
	}
	return reflect.DeepEqual(have, want)
}

// orderLoose orders a record value against a clause literal. Two strings
// compare by collation; otherwise both sides are coerced to numbers, so
// age>30 matches a record holding the string "31". A pair with no defined
// order does not match, it never fails the query.
func orderLoose(have, want interface{}) (int, bool) {
	if a, ok := have.(string); ok {
		if b, ok := want.(string); ok {
			return collator().CompareString(a, b), true
		}
	}
	a, aok := toNumber(have)
	b, bok := toNumber(want)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}

func toNumber(value interface{}) (float64, bool) {
	if n, ok := storage.AsNumber(value); ok {
		return n, true
	}
	if s, ok := value.(string); ok {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// compareValues orders two values: numerically when both are numbers,
// by collation when both are strings. Anything else is not orderable.
func compareValues(have, want interface{}) (int, error) {
	if a, ok := storage.AsNumber(have); ok {
		if b, ok := storage.AsNumber(want); ok {
			switch {
			case a < b:
				return -1, nil
			case a > b:
				return 1, nil
			}
			return 0, nil
		}
	}
	if a, ok := have.(string); ok {
		if b, ok := want.(string); ok {
			return collator().CompareString(a, b), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", have, want)
}

var sortCollator = collate.New(language.Und)

func collator() *collate.Collator {
	return sortCollator
}

// relatedResolver fetches a record referenced by a load specifier. The
// caller decides which store serves which collection.
type relatedResolver func(collection, id string) (storage.Record, error)

// applyQuery runs the modifier pipeline over the result of a fetch. The
// working set is either a record list or, for a fetch by ID, a single
// record; the list-only modifiers fail on a single record. count replaces
// the result with a plain integer.
func applyQuery(data interface{}, params url.Values, resolve relatedResolver) (interface{}, error) {
	// a modifier with an empty value counts as absent
	has := func(name string) bool { return params.Get(name) != "" }

	if has("distinct") {
		records, err := recordList(data, "distinct")
		if err != nil {
			return nil, err
		}
		data = applyDistinct(records, params.Get("distinct"))
	}

	if has("count") {
		records, err := recordList(data, "count")
		if err != nil {
			return nil, err
		}
		return len(records), nil
	}

	if has("sortBy") {
		records, err := recordList(data, "sortBy")
		if err != nil {
			return nil, err
		}
		if err := applySort(records, params.Get("sortBy")); err != nil {
			return nil, err
		}
		data = records
	}

	if has("offset") {
		records, err := recordList(data, "offset")
		if err != nil {
			return nil, err
		}
		offset, _ := strconv.Atoi(strings.TrimSpace(params.Get("offset")))
		// a negative offset counts from the end
		if offset < 0 {
			offset += len(records)
		}
		if offset < 0 {
			offset = 0
		}
		if offset > len(records) {
			offset = len(records)
		}
		data = records[offset:]
	}

	if has("pageSize") {
		records, err := recordList(data, "pageSize")
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(params.Get("pageSize")))
		if err != nil || size == 0 {
			size = 10
		}
		if size < 0 {
			size += len(records)
		}
		if size < 0 {
			size = 0
		}
		if size > len(records) {
			size = len(records)
		}
		data = records[:size]
	}

	if has("select") {
		data = transformEach(data, selector(params.Get("select")))
	}

	if has("load") {
		loaded, err := applyLoad(data, params.Get("load"), resolve)
		if err != nil {
			return nil, err
		}
		data = loaded
	}

	return data, nil
}

func recordList(data interface{}, modifier string) ([]storage.Record, error) {
	records, ok := data.([]storage.Record)
	if !ok {
		return nil, fmt.Errorf("%s requires a record list", modifier)
	}
	return records, nil
}

// applyDistinct keeps the first record for every unique combination of the
// given fields' values.
func applyDistinct(records []storage.Record, expr string) []storage.Record {
	props := splitList(expr)
	seen := map[string]bool{}
	result := make([]storage.Record, 0, len(records))
	for _, record := range records {
		values := make([]string, len(props))
		for i, prop := range props {
			values[i] = fmt.Sprintf("%v", record[prop])
		}
		key := strings.Join(values, "::")
		if !seen[key] {
			seen[key] = true
			result = append(result, record)
		}
	}
	return result
}

// applySort sorts in place on "field [desc]" specifiers. The specifiers are
// processed in reverse declaration order with a stable sort, so the first
// declared field dominates.
func applySort(records []storage.Record, expr string) error {
	type sortProp struct {
		prop string
		desc bool
	}
	props := []sortProp{}
	for _, field := range splitList(expr) {
		tokens := strings.Fields(field)
		if len(tokens) == 0 {
			continue
		}
		props = append(props, sortProp{prop: tokens[0], desc: len(tokens) > 1})
	}

	var sortErr error
	for i := len(props) - 1; i >= 0; i-- {
		prop, desc := props[i].prop, props[i].desc
		sort.SliceStable(records, func(a, b int) bool {
			order, err := compareValues(records[a][prop], records[b][prop])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if desc {
				return order > 0
			}
			return order < 0
		})
		if sortErr != nil {
			return sortErr
		}
	}
	return nil
}

// selector builds the projection for a select specifier. Only the listed
// fields survive, in a freshly constructed record.
func selector(expr string) func(storage.Record) (storage.Record, error) {
	props := splitList(expr)
	return func(record storage.Record) (storage.Record, error) {
		result := storage.Record{}
		for _, prop := range props {
			if value, ok := record[prop]; ok {
				result[prop] = value
			}
		}
		return result, nil
	}
}

// applyLoad resolves "alias=idField:collection" specifiers, embedding the
// referenced record under the alias. A missing related record fails the
// whole request.
func applyLoad(data interface{}, expr string, resolve relatedResolver) (interface{}, error) {
	for _, prop := range splitList(expr) {
		alias, relation, ok := strings.Cut(prop, "=")
		if !ok {
			return nil, fmt.Errorf("invalid load specifier %q", prop)
		}
		idSource, collection, ok := strings.Cut(relation, ":")
		if !ok {
			return nil, fmt.Errorf("invalid load specifier %q", prop)
		}
		loaded, err := transformEachErr(data, func(record storage.Record) (storage.Record, error) {
			seekID, _ := record[idSource].(string)
			related, err := resolve(collection, seekID)
			if err != nil {
				return nil, err
			}
			record[alias] = related
			return record, nil
		})
		if err != nil {
			return nil, err
		}
		data = loaded
	}
	return data, nil
}

// transformEach maps an infallible transformation over a record list or a
// single record.
func transformEach(data interface{}, transform func(storage.Record) (storage.Record, error)) interface{} {
	result, _ := transformEachErr(data, transform)
	return result
}

func transformEachErr(data interface{}, transform func(storage.Record) (storage.Record, error)) (interface{}, error) {
	switch v := data.(type) {
	case []storage.Record:
		result := make([]storage.Record, len(v))
		for i, record := range v {
			transformed, err := transform(record)
			if err != nil {
				return nil, err
			}
			result[i] = transformed
		}
		return result, nil
	case storage.Record:
		return transform(v)
	}
	return nil, fmt.Errorf("cannot transform %T", data)
}

func splitList(expr string) []string {
	result := []string{}
	for _, item := range strings.Split(expr, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
