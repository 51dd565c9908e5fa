package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const contentProperty = "content"

// WeaviateIndex stores vectors in a Weaviate class with externally supplied
// vectors and cosine distance. Metadata keys map to filterable text properties
// declared when the index is created.
type WeaviateIndex struct {
	client    *weaviate.Client
	class     string
	metaProps []string
}

// NewWeaviateIndex connects to rawURL and ensures the class exists.
func NewWeaviateIndex(ctx context.Context, rawURL, class string, metadataKeys []string) (*WeaviateIndex, error) {
	cfg := weaviate.Config{Host: rawURL, Scheme: "http"}
	switch {
	case strings.HasPrefix(rawURL, "https://"):
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(rawURL, "https://")
	case strings.HasPrefix(rawURL, "http://"):
		cfg.Host = strings.TrimPrefix(rawURL, "http://")
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	idx := &WeaviateIndex{client: client, class: class, metaProps: metadataKeys}
	if err := idx.ensureClass(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (w *WeaviateIndex) ensureClass(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(w.class).Do(ctx); err == nil {
		return nil
	}

	indexFilterable := true
	props := []*models.Property{{
		Name:     contentProperty,
		DataType: []string{"text"},
	}}
	for _, key := range w.metaProps {
		props = append(props, &models.Property{
			Name:            key,
			DataType:        []string{"text"},
			Tokenization:    "field",
			IndexFilterable: &indexFilterable,
		})
	}

	class := &models.Class{
		Class:      w.class,
		Vectorizer: "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: props,
	}
	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class %s: %w", w.class, err)
	}
	return nil
}

// Upsert batch-imports entries; an existing id is replaced.
func (w *WeaviateIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	objects := make([]*models.Object, len(entries))
	for i, e := range entries {
		props := map[string]interface{}{contentProperty: e.Content}
		for _, key := range w.metaProps {
			if v, ok := e.Metadata[key]; ok {
				props[key] = v
			}
		}
		objects[i] = &models.Object{
			Class:      w.class,
			ID:         strfmt.UUID(e.ID),
			Vector:     e.Vector,
			Properties: props,
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate batch import: %w", err)
	}
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate batch import object %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

// Delete removes objects by id; ids that are already gone are ignored.
func (w *WeaviateIndex) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		err := w.client.Data().Deleter().
			WithClassName(w.class).
			WithID(id).
			Do(ctx)
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("weaviate delete %s: %w", id, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var clientErr *fault.WeaviateClientError
	return errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound
}

// Query runs a nearVector search with an optional where filter.
func (w *WeaviateIndex) Query(ctx context.Context, q Query) ([]Match, error) {
	if q.TopK <= 0 {
		return nil, nil
	}

	fields := []graphql.Field{{Name: contentProperty}}
	for _, key := range w.metaProps {
		fields = append(fields, graphql.Field{Name: key})
	}
	fields = append(fields, graphql.Field{
		Name:   "_additional",
		Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}},
	})

	builder := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearVector(w.client.GraphQL().NearVectorArgBuilder().WithVector(q.Vector)).
		WithLimit(q.TopK)
	if where := buildWhere(q.Filter); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query: %s", result.Errors[0].Message)
	}
	return parseMatches(result, w.class, w.metaProps), nil
}

func buildWhere(filter map[string][]string) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder
	for key, values := range filter {
		if len(values) == 0 {
			continue
		}
		var alternatives []*filters.WhereBuilder
		for _, v := range values {
			alternatives = append(alternatives, filters.Where().
				WithPath([]string{key}).
				WithOperator(filters.Equal).
				WithValueText(v))
		}
		if len(alternatives) == 1 {
			operands = append(operands, alternatives[0])
			continue
		}
		operands = append(operands, filters.Where().
			WithOperator(filters.Or).
			WithOperands(alternatives))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

// parseMatches extracts matches from a Get response, keeping result order.
func parseMatches(result *models.GraphQLResponse, class string, metaProps []string) []Match {
	if result == nil {
		return nil
	}
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[class].([]interface{})
	if !ok {
		return nil
	}

	matches := make([]Match, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		match := Match{Metadata: make(map[string]string, len(metaProps))}
		match.Content, _ = m[contentProperty].(string)
		for _, key := range metaProps {
			if v, ok := m[key].(string); ok {
				match.Metadata[key] = v
			}
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			match.ID, _ = additional["id"].(string)
			if d, ok := additional["distance"].(float64); ok {
				match.Distance = d
			}
		}
		match.Score = 1 - match.Distance
		matches = append(matches, match)
	}
	return matches
}

// Count aggregates the number of objects in the class.
func (w *WeaviateIndex) Count(ctx context.Context) (int, error) {
	result, err := w.client.GraphQL().Aggregate().
		WithClassName(w.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("weaviate aggregate: %s", result.Errors[0].Message)
	}
	return parseCount(result, w.class), nil
}

func parseCount(result *models.GraphQLResponse, class string) int {
	agg, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0
	}
	groups, ok := agg[class].([]interface{})
	if !ok || len(groups) == 0 {
		return 0
	}
	group, ok := groups[0].(map[string]interface{})
	if !ok {
		return 0
	}
	meta, ok := group["meta"].(map[string]interface{})
	if !ok {
		return 0
	}
	count, _ := meta["count"].(float64)
	return int(count)
}

// Close is a no-op; the client holds no persistent connections.
func (w *WeaviateIndex) Close() error {
	return nil
}
