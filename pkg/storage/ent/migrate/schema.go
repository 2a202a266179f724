// Package migrate declares the SQL tables owned by the ent-backed drivers
// and applies them with ent's schema migrator.
package migrate

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// PlanNodesColumns holds the columns for the "plan_nodes" table.
	PlanNodesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "node_type", Type: field.TypeString},
		{Name: "parent_id", Type: field.TypeString, Nullable: true},
		{Name: "ordinal", Type: field.TypeInt, Default: 0},
		{Name: "attributes", Type: field.TypeString, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
	}
	// PlanNodesTable holds the schema information for the "plan_nodes" table.
	PlanNodesTable = &schema.Table{
		Name:       "plan_nodes",
		Columns:    PlanNodesColumns,
		PrimaryKey: []*schema.Column{PlanNodesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "plannode_parent_id_ordinal",
				Unique:  false,
				Columns: []*schema.Column{PlanNodesColumns[2], PlanNodesColumns[3]},
			},
		},
	}

	// SearchDocumentsColumns holds the columns for the "search_documents" table.
	SearchDocumentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Unique: true},
		{Name: "relation", Type: field.TypeString},
		{Name: "parent", Type: field.TypeString, Nullable: true},
		{Name: "routing", Type: field.TypeString},
		{Name: "org", Type: field.TypeString, Nullable: true},
		{Name: "object_type", Type: field.TypeString, Nullable: true},
		{Name: "source", Type: field.TypeString, Size: 2147483647},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// SearchDocumentsTable holds the schema information for the "search_documents" table.
	SearchDocumentsTable = &schema.Table{
		Name:       "search_documents",
		Columns:    SearchDocumentsColumns,
		PrimaryKey: []*schema.Column{SearchDocumentsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "searchdocument_routing_relation",
				Unique:  false,
				Columns: []*schema.Column{SearchDocumentsColumns[3], SearchDocumentsColumns[1]},
			},
		},
	}
)

// Create runs an append-only auto-migration for the given tables: missing
// tables, columns and indexes are added, nothing is dropped.
func Create(ctx context.Context, drv dialect.Driver, tables ...*schema.Table) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
