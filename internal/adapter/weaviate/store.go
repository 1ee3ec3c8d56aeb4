package weaviate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/race"
	"github.com/kdani7777/Soothsayer/internal/retrieval"
	"github.com/kdani7777/Soothsayer/internal/vector"
)

const DefaultClass = "RaceChunk"

// Store keeps race records in one Weaviate class.
type Store struct {
	client *weaviate.Client
	schema *vector.WeaviateClientAdapter
	class  string
}

func NewStore(client *weaviate.Client, class string) *Store {
	if class == "" {
		class = DefaultClass
	}
	return &Store{client: client, schema: vector.NewWeaviateClientAdapter(client), class: class}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, s.schema, s.class)
}

// Upsert writes records in a single batch request. Objects with an existing
// id are replaced.
func (s *Store) Upsert(ctx context.Context, records []ingest.Record) error {
	if len(records) == 0 {
		return nil
	}

	objects := make([]*models.Object, len(records))
	for i, rec := range records {
		objects[i] = &models.Object{
			Class:      s.class,
			ID:         strfmt.UUID(rec.ID),
			Properties: rec.Metadata.Properties(),
			Vector:     models.C11yVector(rec.Vector),
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return err
	}

	var failed []string
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil {
			continue
		}
		for _, e := range obj.Result.Errors.Error {
			failed = append(failed, fmt.Sprintf("%s: %s", obj.ID, e.Message))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("weaviate batch: %d object errors: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// Search returns the k records nearest to vec. Every filter is an exact
// match on a property and all filters must hold.
func (s *Store) Search(ctx context.Context, vec []float32, k int, where map[string]string) ([]retrieval.Candidate, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: race.KeyText},
		{Name: "source"},
		{Name: race.KeyCity},
		{Name: race.KeyState},
		{Name: race.KeyMonth},
		{Name: race.KeyYear},
		{Name: race.KeyDistances},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(fields...)
	if w := buildWhere(where); w != nil {
		query = query.WithWhere(w)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	results := []retrieval.Candidate{}
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return results, nil
	}
	hits, ok := data[s.class].([]interface{})
	if !ok {
		return results, nil
	}

	for _, h := range hits {
		props, ok := h.(map[string]interface{})
		if !ok {
			continue
		}
		results = append(results, toCandidate(props))
	}
	return results, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	groups, ok := agg[s.class].([]interface{})
	if !ok || len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}

// DeleteIndex drops the named class and everything stored in it.
func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	if name == "" {
		name = s.class
	}
	return s.schema.DeleteClass(ctx, name)
}

func buildWhere(where map[string]string) *filters.WhereBuilder {
	if len(where) == 0 {
		return nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	operands := make([]*filters.WhereBuilder, 0, len(keys))
	for _, k := range keys {
		op := filters.Equal
		if k == race.KeyDistances {
			op = filters.ContainsAny
		}
		operands = append(operands, filters.Where().
			WithPath([]string{k}).
			WithOperator(op).
			WithValueText(where[k]))
	}

	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

func toCandidate(props map[string]interface{}) retrieval.Candidate {
	c := retrieval.Candidate{Metadata: make(map[string]any)}

	for k, v := range props {
		switch k {
		case race.KeyText:
			c.Text, _ = v.(string)
		case "_additional":
			additional, _ := v.(map[string]interface{})
			if id, ok := additional["id"].(string); ok {
				c.Metadata["id"] = id
			}
			c.Score = score(additional["distance"])
		case race.KeyDistances:
			c.Metadata[k] = stringList(v)
		default:
			if v != nil {
				c.Metadata[k] = v
			}
		}
	}
	return c
}

// score converts a cosine distance into a similarity where higher is better.
// Some server versions encode additional fields as strings.
func score(v interface{}) float32 {
	switch d := v.(type) {
	case float64:
		return float32(1 - d)
	case string:
		f, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return 0
		}
		return float32(1 - f)
	}
	return 0
}

func stringList(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
