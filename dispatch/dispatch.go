// Package dispatch implements the Request Router: a tagged discriminated
// union envelope mapped to the correct engine operation by a nested
// switch, not reflection (spec §9 "tagged dispatch").
package dispatch

import (
	"context"
	"time"

	"github.com/kishek/graph-store/entity"
	"github.com/kishek/graph-store/errs"
	"github.com/kishek/graph-store/graphstore"
	"github.com/kishek/graph-store/index"
	"github.com/kishek/graph-store/relationship"
)

// Envelope is the `{type, operation, request, tag?}` dispatch envelope
// every operation arrives in.
type Envelope struct {
	Type      string      `json:"type"`
	Operation string      `json:"operation"`
	Request   interface{} `json:"request"`
	Tag       string      `json:"tag,omitempty"`
}

// Dispatch routes env to the matching (type, operation) handler against
// store, returning UnknownOperation if no such pair is registered.
func Dispatch(ctx context.Context, store *graphstore.Store, env Envelope) (interface{}, error) {
	switch env.Type {
	case "index":
		return dispatchIndex(ctx, store.Index, env.Operation, env.Request)
	case "query":
		return dispatchQuery(ctx, store.Entity, env.Operation, env.Request)
	case "relationship":
		return dispatchRelationship(ctx, store.Relationship, env.Operation, env.Request)
	case "store":
		return dispatchStore(ctx, store, env.Operation, env.Request)
	case "diagnostic":
		return dispatchDiagnostic(env.Operation, env.Request)
	default:
		return nil, errs.New(errs.UnknownOperation, "unknown envelope type %q", env.Type)
	}
}

func unknownOp(kind, operation string) error {
	return errs.New(errs.UnknownOperation, "unknown %s operation %q", kind, operation)
}

func dispatchIndex(ctx context.Context, idx *index.Engine, operation string, req interface{}) (interface{}, error) {
	switch operation {
	case "create":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		property, err := stringField(body, "property")
		if err != nil {
			return nil, err
		}
		return idx.CreateIndex(ctx, property)
	case "read":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		id, err := stringField(body, "id")
		if err != nil {
			return nil, err
		}
		return idx.ReadIndex(ctx, id)
	case "update":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		id, err := stringField(body, "id")
		if err != nil {
			return nil, err
		}
		property, err := stringField(body, "property")
		if err != nil {
			return nil, err
		}
		return idx.UpdateIndex(ctx, id, property)
	case "remove":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		id, err := stringField(body, "id")
		if err != nil {
			return nil, err
		}
		success, err := idx.RemoveIndex(ctx, id)
		if err != nil {
			return nil, err
		}
		return successResponse{Success: success}, nil
	case "list":
		return idx.ListIndexes(), nil
	default:
		return nil, unknownOp("index", operation)
	}
}

func dispatchQuery(ctx context.Context, ent *entity.Engine, operation string, req interface{}) (interface{}, error) {
	switch operation {
	case "create":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		key, err := stringField(body, "key")
		if err != nil {
			return nil, err
		}
		value, err := valueField(body, "value")
		if err != nil {
			return nil, err
		}
		return ent.CreateQuery(ctx, key, value)
	case "batchCreate":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		entries, err := entriesField(body, "entries")
		if err != nil {
			return nil, err
		}
		return ent.BatchCreate(ctx, entries)
	case "read":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		key, err := stringField(body, "key")
		if err != nil {
			return nil, err
		}
		idxName, _ := optionalStringField(body, "index")
		return ent.ReadQuery(ctx, key, idxName)
	case "batchRead":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		keys, err := stringSliceField(body, "keys")
		if err != nil {
			return nil, err
		}
		idxName, _ := optionalStringField(body, "index")
		return ent.BatchRead(ctx, keys, idxName)
	case "update":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		key, err := stringField(body, "key")
		if err != nil {
			return nil, err
		}
		value, err := valueField(body, "value")
		if err != nil {
			return nil, err
		}
		return ent.UpdateQuery(ctx, key, value)
	case "batchUpdate":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		entries, err := entriesField(body, "entries")
		if err != nil {
			return nil, err
		}
		return ent.BatchUpdate(ctx, entries)
	case "batchUpsert":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		entries, err := entriesField(body, "entries")
		if err != nil {
			return nil, err
		}
		return ent.BatchUpsert(ctx, entries)
	case "remove":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		key, err := stringField(body, "key")
		if err != nil {
			return nil, err
		}
		success, err := ent.RemoveQuery(ctx, key)
		if err != nil {
			return nil, err
		}
		return successResponse{Success: success}, nil
	case "batchRemove":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		keys, err := stringSliceField(body, "keys")
		if err != nil {
			return nil, err
		}
		success, err := ent.BatchRemove(ctx, keys)
		if err != nil {
			return nil, err
		}
		return successResponse{Success: success}, nil
	case "list":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		listReq, err := listRequestField(body)
		if err != nil {
			return nil, err
		}
		return ent.ListQuery(ctx, listReq)
	case "purge":
		success, err := ent.PurgeAllQuery(ctx)
		if err != nil {
			return nil, err
		}
		return success, nil
	default:
		return nil, unknownOp("query", operation)
	}
}

func dispatchRelationship(ctx context.Context, rel *relationship.Engine, operation string, req interface{}) (interface{}, error) {
	switch operation {
	case "create":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		edge, err := edgeField(body)
		if err != nil {
			return nil, err
		}
		if err := rel.CreateEdge(ctx, edge); err != nil {
			return nil, err
		}
		return successResponse{Success: true}, nil
	case "batchCreate":
		edges, err := edgeSliceField(req)
		if err != nil {
			return nil, err
		}
		if err := rel.BatchCreateEdges(ctx, edges); err != nil {
			return nil, err
		}
		return successResponse{Success: true}, nil
	case "read":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		nodeA, err := stringField(body, "nodeA")
		if err != nil {
			return nil, err
		}
		nodeB, err := stringField(body, "nodeB")
		if err != nil {
			return nil, err
		}
		name, err := stringField(body, "name")
		if err != nil {
			return nil, err
		}
		exists, err := rel.HasRelationship(ctx, nodeA, nodeB, name)
		if err != nil {
			return nil, err
		}
		return existsResponse{Exists: exists}, nil
	case "remove":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		edge, err := removeEdgeField(body)
		if err != nil {
			return nil, err
		}
		return successResponse{Success: rel.RemoveEdge(ctx, edge)}, nil
	case "batchRemove":
		edges, err := removeEdgeSliceField(req)
		if err != nil {
			return nil, err
		}
		success := true
		for _, edge := range edges {
			if !rel.RemoveEdge(ctx, edge) {
				success = false
			}
		}
		return successResponse{Success: success}, nil
	case "removeNode":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		node, err := stringField(body, "node")
		if err != nil {
			return nil, err
		}
		return successResponse{Success: rel.RemoveNode(ctx, node)}, nil
	case "batchRemoveNode":
		nodes, err := nodeSliceField(req)
		if err != nil {
			return nil, err
		}
		return successResponse{Success: rel.BatchRemoveNode(ctx, nodes)}, nil
	case "list":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		node, err := stringField(body, "node")
		if err != nil {
			return nil, err
		}
		name, err := stringField(body, "name")
		if err != nil {
			return nil, err
		}
		page, err := pageField(body)
		if err != nil {
			return nil, err
		}
		result, err := rel.ListRelationship(ctx, node, name, page)
		if err != nil {
			return nil, err
		}
		return listResponse{Relationships: result.Items, HasBefore: result.HasBefore, HasAfter: result.HasAfter}, nil
	case "batchList":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		requests, err := listRequestsField(body)
		if err != nil {
			return nil, err
		}
		results, err := rel.BatchList(ctx, requests)
		if err != nil {
			return nil, err
		}
		out := make([]listResponse, len(results))
		for i, r := range results {
			out[i] = listResponse{Relationships: r.Items, HasBefore: r.HasBefore, HasAfter: r.HasAfter}
		}
		return out, nil
	case "purge":
		n, err := rel.PurgeRelationships(ctx)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, unknownOp("relationship", operation)
	}
}

func dispatchStore(ctx context.Context, store *graphstore.Store, operation string, req interface{}) (interface{}, error) {
	switch operation {
	case "backup":
		name, err := store.Backup.Backup(ctx, time.Now().UnixMilli(), "")
		if err != nil {
			return nil, err
		}
		return name, nil
	case "restore":
		body, err := asMap(req)
		if err != nil {
			return nil, err
		}
		backupID, err := stringField(body, "backupId")
		if err != nil {
			return nil, err
		}
		count, err := store.Backup.Restore(ctx, backupID, time.Now().UnixMilli())
		if err != nil {
			return nil, err
		}
		return countResponse{Count: count}, nil
	default:
		return nil, unknownOp("store", operation)
	}
}

// dispatchDiagnostic implements the single supplemental diagnostic
// operation: "echo" mirrors req back unchanged, so a caller can exercise a
// full round trip without touching the KV backend.
func dispatchDiagnostic(operation string, req interface{}) (interface{}, error) {
	switch operation {
	case "echo":
		return req, nil
	default:
		return nil, unknownOp("diagnostic", operation)
	}
}

type successResponse struct {
	Success bool `json:"success"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type listResponse struct {
	Relationships []string `json:"relationships"`
	HasBefore     bool     `json:"hasBefore"`
	HasAfter      bool     `json:"hasAfter"`
}

type countResponse struct {
	Count int `json:"count"`
}
