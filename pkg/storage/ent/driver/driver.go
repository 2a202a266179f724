// Package entdriver implements storage.Driver over any SQL database ent
// supports, using ent's dialect-aware query builder.
package entdriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/papercomputeco/plans/pkg/plan"
	"github.com/papercomputeco/plans/pkg/storage"
	"github.com/papercomputeco/plans/pkg/storage/ent/migrate"
)

var nodeColumns = []string{"id", "node_type", "parent_id", "ordinal", "attributes"}

// EntDriver provides storage operations over an ent SQL driver.
// It is database-agnostic and can be embedded by specific drivers.
type EntDriver struct {
	// Driver is the underlying ent SQL driver.
	Driver *entsql.Driver

	conn dialect.ExecQuerier
}

// New wraps drv and migrates the plan_nodes table.
func New(ctx context.Context, drv *entsql.Driver) (*EntDriver, error) {
	if err := migrate.Create(ctx, drv, migrate.PlanNodesTable); err != nil {
		return nil, err
	}
	return &EntDriver{Driver: drv, conn: drv}, nil
}

func (ed *EntDriver) builder() *entsql.DialectBuilder {
	return entsql.Dialect(ed.Driver.Dialect())
}

// Get retrieves a node by id.
func (ed *EntDriver) Get(ctx context.Context, id string) (*plan.Node, error) {
	query, args := ed.builder().
		Select(nodeColumns...).
		From(entsql.Table(migrate.PlanNodesTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	nodes, err := ed.queryNodes(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	if len(nodes) == 0 {
		return nil, storage.NotFoundError{ID: id}
	}
	return nodes[0], nil
}

// FindByParentID returns the children of parentID in sibling order.
func (ed *EntDriver) FindByParentID(ctx context.Context, parentID string) ([]*plan.Node, error) {
	query, args := ed.builder().
		Select(nodeColumns...).
		From(entsql.Table(migrate.PlanNodesTable.Name)).
		Where(entsql.EQ("parent_id", parentID)).
		OrderBy("ordinal", "created_at", "id").
		Query()

	nodes, err := ed.queryNodes(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return nodes, nil
}

// ExistsByID reports whether id is stored.
func (ed *EntDriver) ExistsByID(ctx context.Context, id string) (bool, error) {
	query, args := ed.builder().
		Select("id").
		From(entsql.Table(migrate.PlanNodesTable.Name)).
		Where(entsql.EQ("id", id)).
		Limit(1).
		Query()

	rows := &entsql.Rows{}
	if err := ed.conn.Query(ctx, query, args, rows); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return found, nil
}

// Insert stores a node whose id must be free.
func (ed *EntDriver) Insert(ctx context.Context, n *plan.Node) error {
	insert, err := ed.insertBuilder(n)
	if err != nil {
		return err
	}

	query, args := insert.Query()
	if err := ed.conn.Exec(ctx, query, args, nil); err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return storage.AlreadyExistsError{ID: n.ID}
		}
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

// Upsert stores or replaces a node.
func (ed *EntDriver) Upsert(ctx context.Context, n *plan.Node) error {
	insert, err := ed.insertBuilder(n)
	if err != nil {
		return err
	}

	query, args := insert.
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("node_type")
				u.SetExcluded("parent_id")
				u.SetExcluded("ordinal")
				u.SetExcluded("attributes")
			}),
		).
		Query()
	if err := ed.conn.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to upsert node: %w", err)
	}
	return nil
}

// DeleteByID removes a node.
func (ed *EntDriver) DeleteByID(ctx context.Context, id string) error {
	query, args := ed.builder().
		Delete(migrate.PlanNodesTable.Name).
		Where(entsql.EQ("id", id)).
		Query()
	if err := ed.conn.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}

// DeleteByParentID removes the children of parentID.
func (ed *EntDriver) DeleteByParentID(ctx context.Context, parentID string) error {
	query, args := ed.builder().
		Delete(migrate.PlanNodesTable.Name).
		Where(entsql.EQ("parent_id", parentID)).
		Query()
	if err := ed.conn.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("failed to delete children: %w", err)
	}
	return nil
}

// WithinTx runs fn inside a database transaction.
func (ed *EntDriver) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	if _, nested := ed.conn.(dialect.Tx); nested {
		return fn(ctx, ed)
	}

	tx, err := ed.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, &EntDriver{Driver: ed.Driver, conn: tx}); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("failed to rollback: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func (ed *EntDriver) insertBuilder(n *plan.Node) (*entsql.InsertBuilder, error) {
	if n == nil {
		return nil, errors.New("cannot store nil node")
	}

	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attributes: %w", err)
	}

	return ed.builder().
		Insert(migrate.PlanNodesTable.Name).
		Columns(append(nodeColumns, "created_at")...).
		Values(n.ID, string(n.Type), n.ParentID, n.Ordinal, string(attrs), time.Now().UTC()), nil
}

func (ed *EntDriver) queryNodes(ctx context.Context, query string, args []any) ([]*plan.Node, error) {
	rows := &entsql.Rows{}
	if err := ed.conn.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*plan.Node
	for rows.Next() {
		var (
			n        plan.Node
			nodeType string
			parentID sql.NullString
			ordinal  int64
			attrs    string
		)
		if err := rows.Scan(&n.ID, &nodeType, &parentID, &ordinal, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Type = plan.NodeType(nodeType)
		n.Ordinal = int(ordinal)
		if parentID.Valid {
			parent := parentID.String
			n.ParentID = &parent
		}
		if err := json.Unmarshal([]byte(attrs), &n.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes of %s: %w", n.ID, err)
		}
		nodes = append(nodes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}
