// Package qdrant provides a searchindex.Index backed by a Qdrant collection.
//
// Documents are stored as payload-only points: each point carries a fixed
// unit vector, and all lookups go through keyword payload filters. Point ids
// are name-based UUIDs derived from the document id.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/plans/pkg/searchindex"
)

const (
	defaultCollection = "plans"

	keyDocID      = "doc_id"
	keyRelation   = "relation"
	keyParent     = "parent"
	keyRouting    = "routing"
	keyOrg        = "org"
	keyObjectType = "object_type"
	keySource     = "source"
)

var keywordFields = []string{keyDocID, keyRelation, keyParent, keyRouting, keyOrg, keyObjectType}

// pointNamespace seeds the name-based point ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://papercompute.co/plans/search-documents"))

// Config is the configuration for the Qdrant index.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// Collection defaults to "plans".
	Collection string

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Index implements searchindex.Index over Qdrant.
type Index struct {
	client     *qd.Client
	collection string
	logger     *slog.Logger
}

// NewIndex connects to Qdrant. Call Bootstrap before use.
func NewIndex(c *Config) (*Index, error) {
	if c.Host == "" {
		return nil, errors.New("qdrant: host is required")
	}
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	client, err := qd.NewClient(&qd.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connecting: %w", err)
	}

	return &Index{client: client, collection: c.Collection, logger: c.Logger}, nil
}

// PointID returns the Qdrant point id for a document id.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// Bootstrap creates the collection and its keyword payload indexes.
func (i *Index) Bootstrap(ctx context.Context) error {
	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("qdrant: checking collection: %w", err)
	}
	if exists {
		return nil
	}

	err = i.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     1,
			Distance: qd.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: creating collection: %w", err)
	}

	for _, field := range keywordFields {
		_, err := i.client.CreateFieldIndex(ctx, &qd.CreateFieldIndexCollection{
			CollectionName: i.collection,
			Wait:           qd.PtrOf(true),
			FieldName:      field,
			FieldType:      qd.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("qdrant: indexing payload field %s: %w", field, err)
		}
	}

	i.logger.Info("created qdrant collection", "collection", i.collection)
	return nil
}

func (i *Index) Upsert(ctx context.Context, doc searchindex.Document) error {
	source, err := json.Marshal(doc.Source)
	if err != nil {
		return fmt.Errorf("qdrant: marshaling source of %s: %w", doc.ID, err)
	}

	_, err = i.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: i.collection,
		Wait:           qd.PtrOf(true),
		Points: []*qd.PointStruct{
			{
				Id:      qd.NewID(PointID(doc.ID)),
				Vectors: qd.NewVectors(1),
				Payload: qd.NewValueMap(map[string]any{
					keyDocID:      doc.ID,
					keyRelation:   string(doc.Join.Name),
					keyParent:     doc.Join.Parent,
					keyRouting:    doc.Routing,
					keyOrg:        doc.Org(),
					keyObjectType: doc.ObjectType(),
					keySource:     string(source),
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upserting %s: %w", doc.ID, err)
	}
	return nil
}

func (i *Index) Get(ctx context.Context, id string) (*searchindex.Document, error) {
	points, err := i.client.Get(ctx, &qd.GetPoints{
		CollectionName: i.collection,
		Ids:            []*qd.PointId{qd.NewID(PointID(id))},
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: getting %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, searchindex.NotFoundError{ID: id}
	}

	doc, err := fromPayload(points[0].GetPayload())
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (i *Index) DeleteByID(ctx context.Context, id, _ string) error {
	_, err := i.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: i.collection,
		Wait:           qd.PtrOf(true),
		Points:         qd.NewPointsSelector(qd.NewID(PointID(id))),
	})
	if err != nil {
		return fmt.Errorf("qdrant: deleting %s: %w", id, err)
	}
	return nil
}

func (i *Index) DeleteDescendants(ctx context.Context, rootID string) (int, error) {
	filter := &qd.Filter{
		Must:    []*qd.Condition{qd.NewMatch(keyRouting, rootID)},
		MustNot: []*qd.Condition{qd.NewMatch(keyDocID, rootID)},
	}

	count, err := i.client.Count(ctx, &qd.CountPoints{
		CollectionName: i.collection,
		Filter:         filter,
		Exact:          qd.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: counting descendants of %s: %w", rootID, err)
	}

	_, err = i.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: i.collection,
		Wait:           qd.PtrOf(true),
		Points:         qd.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: deleting descendants of %s: %w", rootID, err)
	}
	return int(count), nil
}

// Search returns up to filter's limit of matching documents, ordered by id
// within the returned page.
func (i *Index) Search(ctx context.Context, filter searchindex.Filter) ([]searchindex.Document, error) {
	var must []*qd.Condition
	add := func(key, value string) {
		if value != "" {
			must = append(must, qd.NewMatch(key, value))
		}
	}
	add(keyRelation, string(filter.Relation))
	add(keyRouting, filter.Routing)
	add(keyParent, filter.Parent)
	add(keyOrg, filter.Org)
	add(keyObjectType, filter.ObjectType)

	points, err := i.client.Scroll(ctx, &qd.ScrollPoints{
		CollectionName: i.collection,
		Filter:         &qd.Filter{Must: must},
		Limit:          qd.PtrOf(uint32(filter.EffectiveLimit())),
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: searching: %w", err)
	}

	docs := make([]searchindex.Document, 0, len(points))
	for _, p := range points {
		doc, err := fromPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b searchindex.Document) int { return strings.Compare(a.ID, b.ID) })
	return docs, nil
}

func (i *Index) Close() error {
	return i.client.Close()
}

func fromPayload(payload map[string]*qd.Value) (searchindex.Document, error) {
	doc := searchindex.Document{
		ID: payload[keyDocID].GetStringValue(),
		Join: searchindex.Join{
			Name:   searchindex.Relation(payload[keyRelation].GetStringValue()),
			Parent: payload[keyParent].GetStringValue(),
		},
		Routing: payload[keyRouting].GetStringValue(),
	}
	if err := json.Unmarshal([]byte(payload[keySource].GetStringValue()), &doc.Source); err != nil {
		return doc, fmt.Errorf("qdrant: decoding source of %s: %w", doc.ID, err)
	}
	return doc, nil
}
