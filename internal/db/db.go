// Package db stores the apply ledger in an embedded LadybugDB graph.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lbug "github.com/LadybugDB/go-ladybug"
)

// Record represents a single result row from a query.
type Record map[string]any

// GraphDB wraps LadybugDB for ledger operations.
type GraphDB struct {
	db       *lbug.Database
	conn     *lbug.Connection
	path     string
	readOnly bool
	logger   *slog.Logger
}

// Config holds database configuration options.
type Config struct {
	// Path is the filesystem path to the database.
	Path string

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool

	// AutoRecover attempts to recover from WAL corruption.
	AutoRecover bool

	// Logger for database operations.
	Logger *slog.Logger
}

// Open opens or creates a ledger database.
func Open(cfg Config) (*GraphDB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	sysCfg := lbug.DefaultSystemConfig()
	sysCfg.ReadOnly = cfg.ReadOnly

	db, err := lbug.OpenDatabase(cfg.Path, sysCfg)
	if err != nil {
		if !cfg.AutoRecover {
			return nil, fmt.Errorf("open database: %w", err)
		}
		logger.Warn("database open failed, attempting recovery", "error", err)
		if recoverErr := removeWALFiles(cfg.Path); recoverErr != nil {
			logger.Warn("WAL removal failed", "error", recoverErr)
		}
		db, err = lbug.OpenDatabase(cfg.Path, sysCfg)
		if err != nil {
			return nil, fmt.Errorf("open database after recovery: %w", err)
		}
		logger.Info("database recovery successful")
	}

	conn, err := lbug.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open connection: %w", err)
	}

	gdb := &GraphDB{
		db:       db,
		conn:     conn,
		path:     cfg.Path,
		readOnly: cfg.ReadOnly,
		logger:   logger,
	}

	if !cfg.ReadOnly {
		if err := gdb.initSchema(); err != nil {
			gdb.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return gdb, nil
}

func removeWALFiles(dbPath string) error {
	walPath := dbPath + ".wal"
	if _, err := os.Stat(walPath); err == nil {
		if err := os.Remove(walPath); err != nil {
			return fmt.Errorf("remove WAL file: %w", err)
		}
	}
	return nil
}

var nodeTables = []string{"Apply", "File", "Route", "Component", "HostPage"}

func (g *GraphDB) initSchema() error {
	schemas := []string{
		// one node per successful apply
		`CREATE NODE TABLE IF NOT EXISTS Apply(
			id STRING,
			file_path STRING,
			kind STRING,
			language STRING,
			route_path STRING,
			import_name STRING,
			embedded BOOL,
			applied_at INT64,
			PRIMARY KEY(id)
		)`,

		`CREATE NODE TABLE IF NOT EXISTS File(path STRING, PRIMARY KEY(path))`,
		`CREATE NODE TABLE IF NOT EXISTS Route(path STRING, PRIMARY KEY(path))`,
		`CREATE NODE TABLE IF NOT EXISTS Component(name STRING, PRIMARY KEY(name))`,
		`CREATE NODE TABLE IF NOT EXISTS HostPage(path STRING, PRIMARY KEY(path))`,

		`CREATE REL TABLE IF NOT EXISTS WROTE(FROM Apply TO File)`,
		`CREATE REL TABLE IF NOT EXISTS SERVES(FROM File TO Route)`,
		`CREATE REL TABLE IF NOT EXISTS DEFINES(FROM File TO Component)`,
		`CREATE REL TABLE IF NOT EXISTS INLINED_IN(FROM Component TO HostPage)`,
	}

	for _, schema := range schemas {
		if _, err := g.conn.Query(schema); err != nil {
			g.logger.Debug("schema statement", "query", schema, "error", err)
		}
	}
	return nil
}

// Execute runs a Cypher query and returns all results.
func (g *GraphDB) Execute(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *lbug.QueryResult
	var err error

	if len(params) > 0 {
		stmt, prepErr := g.conn.Prepare(query)
		if prepErr != nil {
			return nil, fmt.Errorf("prepare query: %w", prepErr)
		}
		defer stmt.Close()

		result, err = g.conn.Execute(stmt, params)
	} else {
		result, err = g.conn.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer result.Close()

	records := make([]Record, 0)
	for result.HasNext() {
		tuple, err := result.Next()
		if err != nil {
			return nil, fmt.Errorf("fetch row: %w", err)
		}

		row, err := tuple.GetAsMap()
		if err != nil {
			return nil, fmt.Errorf("convert row: %w", err)
		}

		converted := make(Record, len(row))
		for k, v := range row {
			converted[k] = convertLbugValue(v)
		}
		records = append(records, converted)
	}

	return records, nil
}

// convertLbugValue flattens nodes and relationships into property maps.
func convertLbugValue(v any) any {
	switch val := v.(type) {
	case lbug.Node:
		m := make(map[string]any, len(val.Properties)+1)
		for k, propVal := range val.Properties {
			m[k] = convertLbugValue(propVal)
		}
		m["_label"] = val.Label
		return m
	case lbug.Relationship:
		m := make(map[string]any, len(val.Properties)+1)
		for k, propVal := range val.Properties {
			m[k] = convertLbugValue(propVal)
		}
		m["_label"] = val.Label
		return m
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertLbugValue(item)
		}
		return out
	default:
		return v
	}
}

// ExecuteWrite runs a Cypher query that modifies data.
func (g *GraphDB) ExecuteWrite(ctx context.Context, query string, params map[string]any) error {
	_, err := g.Execute(ctx, query, params)
	return err
}

// Path returns the database location.
func (g *GraphDB) Path() string {
	return g.path
}

// Close closes the database connection.
func (g *GraphDB) Close() error {
	if g.conn != nil {
		g.conn.Close()
	}
	if g.db != nil {
		g.db.Close()
	}
	return nil
}

// ClearDatabase removes every ledger node and relationship.
func (g *GraphDB) ClearDatabase(ctx context.Context) error {
	for _, table := range nodeTables {
		query := fmt.Sprintf("MATCH (n:%s) DETACH DELETE n", table)
		if err := g.ExecuteWrite(ctx, query, nil); err != nil {
			g.logger.Debug("clear table", "table", table, "error", err)
		}
	}
	g.logger.Info("database cleared")
	return nil
}
