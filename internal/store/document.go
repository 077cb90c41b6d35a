package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type MutationKind string

const (
	MutationSet    MutationKind = "set"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Mutation is one buffered batch write, already encoded to plain JSON values.
type Mutation struct {
	Kind       MutationKind
	Collection string
	ID         string
	Data       map[string]interface{}
	Fields     map[string]interface{}
	Err        error
}

// BatchBuffer collects mutations for backends whose commit replays them.
type BatchBuffer struct {
	mutations []Mutation
}

func (b *BatchBuffer) Set(collection, id string, data interface{}) {
	doc, err := EncodeDocument(id, data)
	b.mutations = append(b.mutations, Mutation{Kind: MutationSet, Collection: collection, ID: id, Data: doc, Err: err})
}

func (b *BatchBuffer) Update(collection, id string, fields map[string]interface{}) {
	encoded, err := EncodeFields(fields)
	b.mutations = append(b.mutations, Mutation{Kind: MutationUpdate, Collection: collection, ID: id, Fields: encoded, Err: err})
}

func (b *BatchBuffer) Delete(collection, id string) {
	b.mutations = append(b.mutations, Mutation{Kind: MutationDelete, Collection: collection, ID: id})
}

func (b *BatchBuffer) Len() int {
	return len(b.mutations)
}

// Mutations returns the buffered writes, or the first encoding error.
func (b *BatchBuffer) Mutations() ([]Mutation, error) {
	for _, m := range b.mutations {
		if m.Err != nil {
			return nil, fmt.Errorf("failed to encode %s/%s: %w", m.Collection, m.ID, m.Err)
		}
	}
	return b.mutations, nil
}

// EncodeDocument converts data into a JSON object and stamps the document ID.
func EncodeDocument(id string, data interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("document must encode to a JSON object: %w", err)
	}
	doc[IDField] = id
	return doc, nil
}

// EncodeFields converts update values into plain JSON values.
func EncodeFields(fields map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for path, v := range fields {
		if path == "" || path == IDField {
			return nil, fmt.Errorf("invalid update path %q", path)
		}
		encoded, err := EncodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", path, err)
		}
		out[path] = encoded
	}
	return out, nil
}

// EncodeValue round-trips v through JSON so it compares equal to stored data.
func EncodeValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyUpdate writes dotted-path fields into doc, creating intermediate objects.
func ApplyUpdate(doc map[string]interface{}, fields map[string]interface{}) {
	for path, v := range fields {
		parts := strings.Split(path, ".")
		cur := doc
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = v
	}
}

// Lookup returns the value at a dotted path.
func Lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Matches reports whether doc satisfies every filter.
func Matches(doc map[string]interface{}, filters []Filter) (bool, error) {
	for _, f := range filters {
		got, ok := Lookup(doc, f.Field)
		if !ok {
			return false, nil
		}
		want, err := EncodeValue(f.Value)
		if err != nil {
			return false, fmt.Errorf("filter %s: %w", f.Field, err)
		}

		switch f.Op {
		case OpEqual:
			if !reflect.DeepEqual(got, want) {
				return false, nil
			}
		case OpIn:
			values, isList := want.([]interface{})
			if !isList {
				return false, fmt.Errorf("filter %s: %q requires a slice value", f.Field, f.Op)
			}
			found := false
			for _, v := range values {
				if reflect.DeepEqual(got, v) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return true, nil
}
