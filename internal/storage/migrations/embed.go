package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Engine names a schema directory inside Schema.
type Engine string

const (
	EnginePostgres   Engine = "postgres"
	EngineClickHouse Engine = "clickhouse"
)

// Schema holds the candle and token schema for every supported engine.
//
//go:embed postgres/*.sql clickhouse/*.sql
var Schema embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Name string
	SQL  string
}

// Load returns the non-empty migrations of engine sorted by file name.
func Load(engine Engine) ([]Migration, error) {
	dir := string(engine)
	entries, err := fs.ReadDir(Schema, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", engine, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(Schema, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	return out, nil
}
