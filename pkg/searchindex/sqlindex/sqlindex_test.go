package sqlindex_test

import (
	"context"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/plans/pkg/searchindex"
	"github.com/papercomputeco/plans/pkg/searchindex/searchindextest"
	"github.com/papercomputeco/plans/pkg/searchindex/sqlindex"
	"github.com/papercomputeco/plans/pkg/storage/sqlite"
)

var _ = Describe("Index", func() {
	searchindextest.IndexBehaviors(func() searchindex.Index {
		db, err := sqlite.OpenDB(":memory:")
		Expect(err).NotTo(HaveOccurred())

		index := sqlindex.NewIndex(entsql.OpenDB(dialect.SQLite, db))
		Expect(index.Bootstrap(context.Background())).To(Succeed())
		return index
	})
})
