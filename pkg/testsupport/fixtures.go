package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-graph-cache/domain"
)

// FixtureDir holds the seed files of a test package.
const FixtureDir = "testdata"

// Graph is a seed data set for the content graph tables.
type Graph struct {
	Users       []domain.User       `json:"users"`
	Channels    []domain.Channel    `json:"channels"`
	Blocks      []domain.Block      `json:"blocks"`
	Connections []domain.Connection `json:"connections"`
	Follows     []domain.Follow     `json:"follows"`
}

// FixturePath joins filename onto FixtureDir.
func FixturePath(filename string) string {
	return filepath.Join(FixtureDir, filename)
}

// ReadGraph decodes the Graph fixture at path, relative to the test package
// directory. Missing creation times are left for the database default.
func ReadGraph(t testing.TB, path string) Graph {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read graph fixture %s: %v", path, err)
	}

	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		t.Fatalf("failed to decode graph fixture %s: %v", path, err)
	}
	return g
}
