// Package schemacache loads and caches per-database schema metadata
// (tables, columns, primary keys, row estimates) that the SQL generator
// needs as grounding context. Introspection is relatively expensive and
// every orchestrated query would otherwise re-run it, so entries are kept
// for a configurable TTL and concurrent loads of the same database are
// coalesced with singleflight rather than all hitting the database at once.
package schemacache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/iruldev/golang-api-hexagonal/internal/domain"
	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
)

// Cache holds a time-bounded, per-database snapshot of domain.DatabaseSchema.
type Cache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	schema    *domain.DatabaseSchema
	expiresAt time.Time
}

// New builds a Cache whose entries expire ttl after they are loaded.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached schema for databaseName if it is still fresh,
// otherwise introspects pool and populates the cache. Concurrent Get calls
// for the same databaseName share a single introspection query.
func (c *Cache) Get(ctx context.Context, pool *pgxpool.Pool, databaseName string) (*domain.DatabaseSchema, error) {
	if schema, ok := c.fresh(databaseName); ok {
		return schema, nil
	}

	v, err, _ := c.group.Do(databaseName, func() (any, error) {
		if schema, ok := c.fresh(databaseName); ok {
			return schema, nil
		}
		schema, loadErr := loadSchema(ctx, pool, databaseName)
		if loadErr != nil {
			return nil, loadErr
		}
		c.mu.Lock()
		c.entries[databaseName] = cacheEntry{schema: schema, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return schema, nil
	})
	if err != nil {
		return nil, domainerrors.NewDomainWithCause(domainerrors.CodeSchemaLoadError,
			fmt.Sprintf("failed to load schema for database %q", databaseName), err)
	}
	return v.(*domain.DatabaseSchema), nil
}

func (c *Cache) fresh(databaseName string) (*domain.DatabaseSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[databaseName]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.schema, true
}

// Invalidate drops any cached entry for databaseName, forcing the next Get
// to reintrospect.
func (c *Cache) Invalidate(databaseName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, databaseName)
}

type columnRow struct {
	tableName   string
	columnName  string
	sqlType     string
	nullable    bool
	defaultExpr *string
	ordinal     int
}

type primaryKeyRow struct {
	tableName  string
	columnName string
}

type rowEstimate struct {
	tableName string
	estimate  int64
}

// loadSchema introspects the public schema of pool via information_schema
// and pg_catalog, grouping columns by table and attaching primary-key flags
// and row-count estimates.
func loadSchema(ctx context.Context, pool *pgxpool.Pool, databaseName string) (*domain.DatabaseSchema, error) {
	columns, err := queryColumns(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	primaryKeys, err := queryPrimaryKeys(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("querying primary keys: %w", err)
	}
	estimates, err := queryRowEstimates(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("querying row estimates: %w", err)
	}

	pkSet := make(map[string]struct{}, len(primaryKeys))
	for _, pk := range primaryKeys {
		pkSet[pk.tableName+"."+pk.columnName] = struct{}{}
	}
	estimateByTable := make(map[string]int64, len(estimates))
	for _, e := range estimates {
		estimateByTable[e.tableName] = e.estimate
	}

	tablesByName := make(map[string]*domain.TableSchema)
	var order []string
	for _, col := range columns {
		table, ok := tablesByName[col.tableName]
		if !ok {
			table = &domain.TableSchema{Name: col.tableName}
			tablesByName[col.tableName] = table
			order = append(order, col.tableName)
		}
		_, isPK := pkSet[col.tableName+"."+col.columnName]
		table.Columns = append(table.Columns, domain.ColumnSchema{
			Name:         col.columnName,
			SQLType:      col.sqlType,
			Nullable:     col.nullable,
			IsPrimaryKey: isPK,
			DefaultExpr:  col.defaultExpr,
		})
	}

	sort.Strings(order)
	tables := make([]domain.TableSchema, 0, len(order))
	for _, name := range order {
		table := tablesByName[name]
		if est, ok := estimateByTable[name]; ok {
			table.RowCountEstimate = &est
		}
		tables = append(tables, *table)
	}

	return &domain.DatabaseSchema{DatabaseName: databaseName, Tables: tables}, nil
}

func queryColumns(ctx context.Context, pool *pgxpool.Pool) ([]columnRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT table_name, column_name, data_type, is_nullable = 'YES', column_default, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []columnRow
	for rows.Next() {
		var c columnRow
		if err := rows.Scan(&c.tableName, &c.columnName, &c.sqlType, &c.nullable, &c.defaultExpr, &c.ordinal); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func queryPrimaryKeys(ctx context.Context, pool *pgxpool.Pool) ([]primaryKeyRow, error) {
	rows, err := pool.Query(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []primaryKeyRow
	for rows.Next() {
		var pk primaryKeyRow
		if err := rows.Scan(&pk.tableName, &pk.columnName); err != nil {
			return nil, err
		}
		result = append(result, pk)
	}
	return result, rows.Err()
}

func queryRowEstimates(ctx context.Context, pool *pgxpool.Pool) ([]rowEstimate, error) {
	rows, err := pool.Query(ctx, `
		SELECT c.relname, GREATEST(c.reltuples, 0)::bigint
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public' AND c.relkind = 'r'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rowEstimate
	for rows.Next() {
		var e rowEstimate
		if err := rows.Scan(&e.tableName, &e.estimate); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
