package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boblangley/artifact-forge/internal/types"
)

// DefaultListLimit caps ListApplies when the caller passes a non-positive limit.
const DefaultListLimit = 50

// RecordApply stores rec and links it to the written file and, depending on
// the kind, to its route or its inlined component. A missing ID is generated;
// a zero AppliedAt is set to now. The stored record is returned.
func (g *GraphDB) RecordApply(ctx context.Context, rec types.ApplyRecord, hostPage string) (types.ApplyRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}

	if err := g.ExecuteWrite(ctx, `
		MERGE (a:Apply {id: $id})
		SET a.file_path = $file_path,
		    a.kind = $kind,
		    a.language = $language,
		    a.route_path = $route_path,
		    a.import_name = $import_name,
		    a.embedded = $embedded,
		    a.applied_at = $applied_at
	`, map[string]any{
		"id":          rec.ID,
		"file_path":   rec.FilePath,
		"kind":        string(rec.Kind),
		"language":    rec.Language,
		"route_path":  rec.RoutePath,
		"import_name": rec.ImportName,
		"embedded":    rec.Embedded,
		"applied_at":  rec.AppliedAt.UnixNano(),
	}); err != nil {
		return rec, fmt.Errorf("create apply %s: %w", rec.ID, err)
	}

	if err := g.ExecuteWrite(ctx, `
		MATCH (a:Apply {id: $id})
		MERGE (f:File {path: $path})
		MERGE (a)-[:WROTE]->(f)
	`, map[string]any{"id": rec.ID, "path": rec.FilePath}); err != nil {
		return rec, fmt.Errorf("create WROTE for %s: %w", rec.FilePath, err)
	}

	if rec.RoutePath != "" {
		if err := g.ExecuteWrite(ctx, `
			MATCH (f:File {path: $path})
			MERGE (r:Route {path: $route})
			MERGE (f)-[:SERVES]->(r)
		`, map[string]any{"path": rec.FilePath, "route": rec.RoutePath}); err != nil {
			g.logger.Debug("create SERVES", "file", rec.FilePath, "route", rec.RoutePath, "error", err)
		}
	}

	if rec.ImportName != "" {
		if err := g.ExecuteWrite(ctx, `
			MATCH (f:File {path: $path})
			MERGE (c:Component {name: $name})
			MERGE (f)-[:DEFINES]->(c)
		`, map[string]any{"path": rec.FilePath, "name": rec.ImportName}); err != nil {
			g.logger.Debug("create DEFINES", "file", rec.FilePath, "component", rec.ImportName, "error", err)
		}

		if rec.Embedded && hostPage != "" {
			if err := g.ExecuteWrite(ctx, `
				MATCH (c:Component {name: $name})
				MERGE (h:HostPage {path: $host})
				MERGE (c)-[:INLINED_IN]->(h)
			`, map[string]any{"name": rec.ImportName, "host": hostPage}); err != nil {
				g.logger.Debug("create INLINED_IN", "component", rec.ImportName, "host", hostPage, "error", err)
			}
		}
	}

	g.logger.Debug("recorded apply", "id", rec.ID, "path", rec.FilePath, "kind", rec.Kind)
	return rec, nil
}

// ListApplies returns the most recent applies, newest first.
func (g *GraphDB) ListApplies(ctx context.Context, limit int) ([]types.ApplyRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	records, err := g.Execute(ctx, fmt.Sprintf(`
		MATCH (a:Apply)
		RETURN a.id AS id, a.file_path AS file_path, a.kind AS kind,
		       a.language AS language, a.route_path AS route_path,
		       a.import_name AS import_name, a.embedded AS embedded,
		       a.applied_at AS applied_at
		ORDER BY a.applied_at DESC
		LIMIT %d
	`, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("list applies: %w", err)
	}

	applies := make([]types.ApplyRecord, 0, len(records))
	for _, r := range records {
		applies = append(applies, types.ApplyRecord{
			ID:         r.String("id"),
			FilePath:   r.String("file_path"),
			Kind:       types.ApplyKind(r.String("kind")),
			Language:   r.String("language"),
			RoutePath:  r.String("route_path"),
			ImportName: r.String("import_name"),
			Embedded:   r.Bool("embedded"),
			AppliedAt:  time.Unix(0, r.Int64("applied_at")).UTC(),
		})
	}
	return applies, nil
}

// Routes returns every route path served by an applied page, sorted.
func (g *GraphDB) Routes(ctx context.Context) ([]string, error) {
	records, err := g.Execute(ctx, `
		MATCH (f:File)-[:SERVES]->(r:Route)
		RETURN DISTINCT r.path AS path
		ORDER BY path
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	return column(records, "path"), nil
}

// InlinedComponents returns the components inlined into hostPage, sorted.
func (g *GraphDB) InlinedComponents(ctx context.Context, hostPage string) ([]string, error) {
	records, err := g.Execute(ctx, `
		MATCH (c:Component)-[:INLINED_IN]->(h:HostPage {path: $host})
		RETURN c.name AS name
		ORDER BY name
	`, map[string]any{"host": hostPage})
	if err != nil {
		return nil, fmt.Errorf("list inlined components: %w", err)
	}
	return column(records, "name"), nil
}

func column(records []Record, key string) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if v := r.String(key); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// String returns the string value at key, or "".
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the bool value at key, or false.
func (r Record) Bool(key string) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return false
}

// Int64 returns the integer value at key, or 0.
func (r Record) Int64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
