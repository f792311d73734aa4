package dispatch

import (
	"github.com/kishek/graph-store/entity"
	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/relationship"
)

// The request bodies dispatch receives have already been JSON-decoded by
// the transport into interface{} values (map[string]interface{} for
// objects, []interface{} for arrays). These helpers pull typed fields out
// of that generic shape without reflection, matching spec §9's "nested
// sum types, not reflection" guidance at the request-decoding boundary.

func asMap(req interface{}) (map[string]interface{}, error) {
	m, ok := req.(map[string]interface{})
	if !ok {
		return nil, errs.New(errs.BadRequest, "expected an object request body")
	}
	return m, nil
}

func asSlice(req interface{}) ([]interface{}, error) {
	s, ok := req.([]interface{})
	if !ok {
		return nil, errs.New(errs.BadRequest, "expected an array request body")
	}
	return s, nil
}

func stringField(body map[string]interface{}, name string) (string, error) {
	v, ok := body[name]
	if !ok {
		return "", errs.New(errs.BadRequest, "missing required field %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.New(errs.BadRequest, "field %q must be a string", name)
	}
	return s, nil
}

func optionalStringField(body map[string]interface{}, name string) (string, bool) {
	v, ok := body[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func optionalStringPtr(body map[string]interface{}, name string) *string {
	if s, ok := optionalStringField(body, name); ok {
		return &s
	}
	return nil
}

func optionalIntPtr(body map[string]interface{}, name string) (*int, error) {
	v, ok := body[name]
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := v.(float64)
	if !ok {
		return nil, errs.New(errs.BadRequest, "field %q must be a number", name)
	}
	i := int(n)
	return &i, nil
}

func valueField(body map[string]interface{}, name string) (entity.Value, error) {
	v, ok := body[name]
	if !ok {
		return entity.Value{}, errs.New(errs.BadRequest, "missing required field %q", name)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return entity.Value{}, errs.New(errs.BadRequest, "field %q must be an object", name)
	}
	return entity.Value(m), nil
}

func stringSliceField(body map[string]interface{}, name string) ([]string, error) {
	v, ok := body[name]
	if !ok {
		return nil, errs.New(errs.BadRequest, "missing required field %q", name)
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, errs.New(errs.BadRequest, "field %q must be an array", name)
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, errs.New(errs.BadRequest, "field %q must be an array of strings", name)
		}
		out[i] = s
	}
	return out, nil
}

// entriesField decodes a map<key, payload> body field into an ordered
// []entity.KeyValue. JSON object key order is not preserved through
// encoding/json's map decoding, so callers that need deterministic
// ordering across process boundaries should prefer a client that submits
// entries pre-ordered; the response always echoes back in the order this
// function iterates.
func entriesField(body map[string]interface{}, name string) ([]entity.KeyValue, error) {
	v, ok := body[name]
	if !ok {
		return nil, errs.New(errs.BadRequest, "missing required field %q", name)
	}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil, errs.New(errs.BadRequest, "field %q must be an object", name)
	}
	out := make([]entity.KeyValue, 0, len(raw))
	for k, val := range raw {
		m, ok := val.(map[string]interface{})
		if !ok {
			return nil, errs.New(errs.BadRequest, "entry %q must be an object", k)
		}
		out = append(out, entity.KeyValue{Key: k, Value: entity.Value(m)})
	}
	return out, nil
}

func listRequestField(body map[string]interface{}) (entity.ListRequest, error) {
	req := entity.ListRequest{
		Key:    optionalStringPtr(body, "key"),
		Index:  optionalStringPtr(body, "index"),
		Before: optionalStringPtr(body, "before"),
		After:  optionalStringPtr(body, "after"),
	}

	first, err := optionalIntPtr(body, "first")
	if err != nil {
		return entity.ListRequest{}, err
	}
	req.First = first

	last, err := optionalIntPtr(body, "last")
	if err != nil {
		return entity.ListRequest{}, err
	}
	req.Last = last

	if raw, ok := body["query"]; ok && raw != nil {
		items, ok := raw.([]interface{})
		if !ok {
			return entity.ListRequest{}, errs.New(errs.BadRequest, "field \"query\" must be an array")
		}
		for _, item := range items {
			m, ok := item.(map[string]interface{})
			if !ok {
				return entity.ListRequest{}, errs.New(errs.BadRequest, "each query predicate must be an object")
			}
			property, err := stringField(m, "property")
			if err != nil {
				return entity.ListRequest{}, err
			}
			min, ok := m["min"].(float64)
			if !ok {
				return entity.ListRequest{}, errs.New(errs.BadRequest, "predicate %q missing numeric min", property)
			}
			max, ok := m["max"].(float64)
			if !ok {
				return entity.ListRequest{}, errs.New(errs.BadRequest, "predicate %q missing numeric max", property)
			}
			req.Query = append(req.Query, entity.RangePredicate{Property: property, Min: min, Max: max})
		}
	}

	return req, nil
}

func edgeField(body map[string]interface{}) (relationship.Edge, error) {
	nodeA, err := stringField(body, "nodeA")
	if err != nil {
		return relationship.Edge{}, err
	}
	nodeB, err := stringField(body, "nodeB")
	if err != nil {
		return relationship.Edge{}, err
	}
	aToB, err := stringField(body, "nodeAToBRelationshipName")
	if err != nil {
		return relationship.Edge{}, err
	}
	bToA, err := stringField(body, "nodeBToARelationshipName")
	if err != nil {
		return relationship.Edge{}, err
	}
	return relationship.Edge{NodeA: nodeA, NodeB: nodeB, NodeAToBName: aToB, NodeBToAName: bToA}, nil
}

func edgeSliceField(req interface{}) ([]relationship.Edge, error) {
	items, err := asSlice(req)
	if err != nil {
		return nil, err
	}
	out := make([]relationship.Edge, len(items))
	for i, item := range items {
		body, err := asMap(item)
		if err != nil {
			return nil, err
		}
		edge, err := edgeField(body)
		if err != nil {
			return nil, err
		}
		out[i] = edge
	}
	return out, nil
}

func removeEdgeField(body map[string]interface{}) (relationship.Edge, error) {
	nodeA, err := stringField(body, "nodeA")
	if err != nil {
		return relationship.Edge{}, err
	}
	nodeB, err := stringField(body, "nodeB")
	if err != nil {
		return relationship.Edge{}, err
	}
	aToB, err := stringField(body, "aToB")
	if err != nil {
		return relationship.Edge{}, err
	}
	bToA, err := stringField(body, "bToA")
	if err != nil {
		return relationship.Edge{}, err
	}
	return relationship.Edge{NodeA: nodeA, NodeB: nodeB, NodeAToBName: aToB, NodeBToAName: bToA}, nil
}

func removeEdgeSliceField(req interface{}) ([]relationship.Edge, error) {
	items, err := asSlice(req)
	if err != nil {
		return nil, err
	}
	out := make([]relationship.Edge, len(items))
	for i, item := range items {
		body, err := asMap(item)
		if err != nil {
			return nil, err
		}
		edge, err := removeEdgeField(body)
		if err != nil {
			return nil, err
		}
		out[i] = edge
	}
	return out, nil
}

func nodeSliceField(req interface{}) ([]string, error) {
	items, err := asSlice(req)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		body, err := asMap(item)
		if err != nil {
			return nil, err
		}
		node, err := stringField(body, "node")
		if err != nil {
			return nil, err
		}
		out[i] = node
	}
	return out, nil
}

func pageField(body map[string]interface{}) (relationship.Page, error) {
	first, err := optionalIntPtr(body, "first")
	if err != nil {
		return relationship.Page{}, err
	}
	last, err := optionalIntPtr(body, "last")
	if err != nil {
		return relationship.Page{}, err
	}
	return relationship.Page{
		First:  first,
		Last:   last,
		Before: optionalStringPtr(body, "before"),
		After:  optionalStringPtr(body, "after"),
	}, nil
}

func listRequestsField(body map[string]interface{}) ([]relationship.ListRequest, error) {
	raw, ok := body["requests"]
	if !ok {
		return nil, errs.New(errs.BadRequest, "missing required field \"requests\"")
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errs.New(errs.BadRequest, "field \"requests\" must be an array")
	}
	out := make([]relationship.ListRequest, len(items))
	for i, item := range items {
		m, err := asMap(item)
		if err != nil {
			return nil, err
		}
		node, err := stringField(m, "node")
		if err != nil {
			return nil, err
		}
		name, err := stringField(m, "name")
		if err != nil {
			return nil, err
		}
		page, err := pageField(m)
		if err != nil {
			return nil, err
		}
		out[i] = relationship.ListRequest{Node: node, Name: name, Page: page}
	}
	return out, nil
}
