// Package sqlindex provides a searchindex.Index stored in a SQL table, for
// deployments that run without a dedicated search engine. It shares the
// storage drivers' database and ent migrations.
package sqlindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/plans/pkg/searchindex"
	"github.com/papercomputeco/plans/pkg/storage/ent/migrate"
)

var columns = []string{"id", "relation", "parent", "routing", "org", "object_type", "source"}

// Index implements searchindex.Index over an ent SQL driver.
type Index struct {
	drv *entsql.Driver
}

// NewIndex wraps drv. Call Bootstrap before use.
func NewIndex(drv *entsql.Driver) *Index {
	return &Index{drv: drv}
}

func (i *Index) builder() *entsql.DialectBuilder {
	return entsql.Dialect(i.drv.Dialect())
}

// Bootstrap creates the search_documents table if missing.
func (i *Index) Bootstrap(ctx context.Context) error {
	return migrate.Create(ctx, i.drv, migrate.SearchDocumentsTable)
}

func (i *Index) Upsert(ctx context.Context, doc searchindex.Document) error {
	source, err := json.Marshal(doc.Source)
	if err != nil {
		return fmt.Errorf("failed to marshal source of %s: %w", doc.ID, err)
	}

	query, args := i.builder().
		Insert(migrate.SearchDocumentsTable.Name).
		Columns(append(columns, "updated_at")...).
		Values(doc.ID, string(doc.Join.Name), nullable(doc.Join.Parent), doc.Routing,
			nullable(doc.Org()), nullable(doc.ObjectType()), string(source), time.Now().UTC()).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := i.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (i *Index) Get(ctx context.Context, id string) (*searchindex.Document, error) {
	docs, err := i.query(ctx, i.builder().
		Select(columns...).
		From(entsql.Table(migrate.SearchDocumentsTable.Name)).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, searchindex.NotFoundError{ID: id}
	}
	return &docs[0], nil
}

func (i *Index) DeleteByID(ctx context.Context, id, _ string) error {
	query, args := i.builder().
		Delete(migrate.SearchDocumentsTable.Name).
		Where(entsql.EQ("id", id)).
		Query()
	if err := i.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (i *Index) DeleteDescendants(ctx context.Context, rootID string) (int, error) {
	query, args := i.builder().
		Delete(migrate.SearchDocumentsTable.Name).
		Where(entsql.And(
			entsql.EQ("routing", rootID),
			entsql.NEQ("id", rootID),
		)).
		Query()

	var res sql.Result
	if err := i.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, fmt.Errorf("failed to delete descendants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted descendants: %w", err)
	}
	return int(n), nil
}

func (i *Index) Search(ctx context.Context, filter searchindex.Filter) ([]searchindex.Document, error) {
	var preds []*entsql.Predicate
	add := func(column, value string) {
		if value != "" {
			preds = append(preds, entsql.EQ(column, value))
		}
	}
	add("relation", string(filter.Relation))
	add("routing", filter.Routing)
	add("parent", filter.Parent)
	add("org", filter.Org)
	add("object_type", filter.ObjectType)

	selector := i.builder().
		Select(columns...).
		From(entsql.Table(migrate.SearchDocumentsTable.Name)).
		OrderBy("id").
		Limit(filter.EffectiveLimit())
	if len(preds) > 0 {
		selector.Where(entsql.And(preds...))
	}
	return i.query(ctx, selector)
}

func (i *Index) Close() error {
	return i.drv.Close()
}

func (i *Index) query(ctx context.Context, selector *entsql.Selector) ([]searchindex.Document, error) {
	query, args := selector.Query()

	rows := &entsql.Rows{}
	if err := i.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []searchindex.Document
	for rows.Next() {
		var (
			doc                     searchindex.Document
			relation, source        string
			parent, org, objectType sql.NullString
		)
		if err := rows.Scan(&doc.ID, &relation, &parent, &doc.Routing, &org, &objectType, &source); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Join = searchindex.Join{Name: searchindex.Relation(relation), Parent: parent.String}
		if err := json.Unmarshal([]byte(source), &doc.Source); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source of %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return docs, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
