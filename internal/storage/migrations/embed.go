// Package migrations applies the embedded Postgres and ClickHouse schemas
// and records each applied version in a schema_migrations table.
package migrations

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"breakout-lab/internal/storage"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// Migration is one versioned schema file, named NNN_description.sql.
type Migration struct {
	Version  int
	Name     string // description part of the file name
	SQL      string
	Checksum string // sha256 of SQL, hex
}

// Result reports one migrate call.
type Result struct {
	Applied []Migration // newly applied, in version order
	Current int         // migrations already recorded before the call
}

// Version returns the highest applied version, or 0 for an empty schema.
func (r *Result) Version() int {
	if n := len(r.Applied); n > 0 {
		return r.Applied[n-1].Version
	}
	return r.Current
}

// PostgresMigrations returns the embedded Postgres migrations in version order.
func PostgresMigrations() ([]Migration, error) {
	return load(postgresFS, "postgres")
}

// ClickhouseMigrations returns the embedded ClickHouse migrations in version order.
func ClickhouseMigrations() ([]Migration, error) {
	return load(clickhouseFS, "clickhouse")
}

func load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, name, err := parseFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(data)
		out = append(out, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(data),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseFileName splits "003_validation_runs.sql" into 3 and "validation_runs".
func parseFileName(file string) (int, string, error) {
	base := strings.TrimSuffix(file, ".sql")
	prefix, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("migration %s: want NNN_description.sql", file)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("migration %s: bad version %q", file, prefix)
	}
	return version, name, nil
}

// pending returns the migrations not in applied, checking that every
// applied one still has its recorded checksum.
func pending(all []Migration, applied map[int]string) ([]Migration, error) {
	var out []Migration
	for _, m := range all {
		sum, ok := applied[m.Version]
		switch {
		case !ok:
			out = append(out, m)
		case sum != m.Checksum:
			return nil, fmt.Errorf("migration %03d_%s: %w", m.Version, m.Name, storage.ErrSchemaChanged)
		}
	}
	return out, nil
}
