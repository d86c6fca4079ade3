package testsupport

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// NewSQLiteDB opens a private in-memory sqlite database and runs setup
// against it. The database is closed when the test ends.
func NewSQLiteDB(t testing.TB, setup ...func(ctx context.Context, db bun.IDB) error) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	for _, fn := range setup {
		if err := fn(context.Background(), db); err != nil {
			t.Fatalf("failed to set up database: %v", err)
		}
	}
	return db
}

// SeedGraph inserts every record of g.
func SeedGraph(t testing.TB, db bun.IDB, g Graph) {
	t.Helper()
	ctx := context.Background()

	insert := func(name string, model any, n int) {
		if n == 0 {
			return
		}
		if _, err := db.NewInsert().Model(model).Exec(ctx); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}

	insert("users", &g.Users, len(g.Users))
	insert("channels", &g.Channels, len(g.Channels))
	insert("blocks", &g.Blocks, len(g.Blocks))
	insert("connections", &g.Connections, len(g.Connections))
	insert("follows", &g.Follows, len(g.Follows))
}

// LoadGraph reads a Graph fixture and seeds it into db.
func LoadGraph(t testing.TB, db bun.IDB, path string) Graph {
	t.Helper()

	g := ReadGraph(t, path)
	SeedGraph(t, db, g)
	return g
}
