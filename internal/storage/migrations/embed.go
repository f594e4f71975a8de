// Package migrations embeds and applies the SQL schema for both storage engines.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

// PostgresFS embeds the ledger schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the price history schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// sqlFiles lists .sql files in dir, sorted by name (001_, 002_, ...).
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
