// Package sqlvalidator checks generated SQL against a policy before it ever
// reaches a database connection: statement shape, blocked functions, blocked
// schemas/tables, join fan-out, and WHERE-clause presence.
//
// It parses with pg_query_go, which embeds PostgreSQL's own parser, rather
// than matching the SQL text with regular expressions. The parse tree is
// walked as a generic, lower-cased map/slice tree instead of the library's
// typed protobuf structs: libpg_query's JSON field casing has shifted across
// major versions, and a generic walk that dispatches on a handful of known
// node-type keys is resilient to that in a way a struct-literal walk is not.
package sqlvalidator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	pgquery "github.com/pganalyze/pg_query_go/v6"

	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
)

// Config holds the policy a Validator enforces. Field names mirror
// internal/infra/config.Config's Security* settings.
type Config struct {
	// MaxJoins caps the number of distinct tables a single SELECT may
	// reference, not the number of JOIN keywords it contains.
	MaxJoins int
	// RequireWhereClauseTables names the tables for which a referencing
	// SELECT must carry a WHERE clause. Empty means no table requires one.
	RequireWhereClauseTables []string
	AllowDataModification    bool
	BlockedFunctions         []string
	BlockedSchemas           []string
	BlockedTables            []string

	// BlockedColumns is a global column-name blocklist, matched against a
	// column reference regardless of which table qualifies it.
	BlockedColumns []string
	// BlockedColumnsByTable maps a table name to the columns blocked for
	// that table specifically. A qualified reference (u.password) is
	// checked against the table its alias resolves to; an unqualified
	// reference is checked against every table in scope.
	BlockedColumnsByTable map[string][]string

	// AllowExplain admits an EXPLAIN statement unconditionally, without
	// re-parsing its inner query: EXPLAIN is advisory-only and never
	// executes the statement it describes.
	AllowExplain bool
}

// Validator enforces Config against generated SQL.
type Validator struct {
	cfg                   Config
	blockedFunctions      map[string]struct{}
	blockedSchemas        globSet
	blockedTables         globSet
	blockedColumns        map[string]struct{}
	blockedColumnsByTable map[string]map[string]struct{}
	requireWhereTables    map[string]struct{}
}

// New builds a Validator from cfg, lower-casing its blocklists once up front.
func New(cfg Config) *Validator {
	byTable := make(map[string]map[string]struct{}, len(cfg.BlockedColumnsByTable))
	for table, cols := range cfg.BlockedColumnsByTable {
		byTable[strings.ToLower(table)] = toLowerSet(cols)
	}

	return &Validator{
		cfg:                   cfg,
		blockedFunctions:      toLowerSet(cfg.BlockedFunctions),
		blockedSchemas:        newGlobSet(cfg.BlockedSchemas),
		blockedTables:         newGlobSet(cfg.BlockedTables),
		blockedColumns:        toLowerSet(cfg.BlockedColumns),
		blockedColumnsByTable: byTable,
		requireWhereTables:    toLowerSet(cfg.RequireWhereClauseTables),
	}
}

func toLowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = struct{}{}
	}
	return set
}

// globSet matches a lower-cased name against a list of shell-style glob
// patterns (e.g. "tmp_*", "staging_*"), so an operator can block a whole
// family of scratch tables without enumerating every one.
type globSet []glob.Glob

// newGlobSet compiles patterns, lower-casing each and skipping any that fail
// to compile rather than rejecting the whole configuration.
func newGlobSet(patterns []string) globSet {
	set := make(globSet, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			continue
		}
		set = append(set, g)
	}
	return set
}

func (s globSet) matches(name string) bool {
	for _, g := range s {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// ValidationResult mirrors domain.ValidationResult; the orchestrator copies
// it verbatim into QueryResponse.Validation.
type ValidationResult struct {
	IsValid                bool
	IsSelect               bool
	AllowsDataModification bool
	BlockedFunctionsFound  []string
	Message                string
}

type findings struct {
	functions map[string]struct{}
	tables    []tableRef
	columns   []columnRef
	// aliases maps a lower-cased range-variable name (its alias, or its
	// table name when unaliased) to the lower-cased table name it refers
	// to, so a qualified column reference like u.password can be resolved
	// back to the users table.
	aliases  map[string]string
	hasWhere bool
}

type tableRef struct {
	schema string
	name   string
}

// columnRef is a column reference found in the parse tree. qualifier is the
// lower-cased range-variable name it was written against (e.g. "u" in
// "u.password"), or empty for an unqualified reference.
type columnRef struct {
	qualifier string
	name      string
}

// Validate parses sql and checks it against the configured policy. A parse
// failure returns a CodeSQLParseError domain error; a policy violation is
// reported through the returned result's IsValid/Message fields, not an
// error, since callers (e.g. a generate-retry loop) need the reason without
// unwrapping an error chain.
func (v *Validator) Validate(sql string) (*ValidationResult, error) {
	if strings.TrimSpace(sql) == "" {
		return &ValidationResult{Message: "empty statement"}, nil
	}

	body, kind, err := v.parseSoleStatement(sql)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return &ValidationResult{Message: kind}, nil
	}

	if kind == "explainstmt" {
		if !v.cfg.AllowExplain {
			return &ValidationResult{Message: "EXPLAIN statements are not allowed"}, nil
		}
		// Admitted unconditionally: EXPLAIN never executes its inner
		// statement, so its inner query is not re-parsed or policy-checked.
		return &ValidationResult{IsValid: true, Message: "ok (EXPLAIN)"}, nil
	}

	isSelect := kind == "selectstmt"
	result := &ValidationResult{IsSelect: isSelect}

	if !isSelect && !v.cfg.AllowDataModification {
		result.Message = fmt.Sprintf("only SELECT statements are allowed, got %s", strings.TrimSuffix(kind, "stmt"))
		return result, nil
	}
	result.AllowsDataModification = !isSelect

	f := &findings{functions: map[string]struct{}{}, aliases: map[string]string{}}
	f.walk(body)

	for fn := range f.functions {
		if _, blocked := v.blockedFunctions[fn]; blocked {
			result.BlockedFunctionsFound = append(result.BlockedFunctionsFound, fn)
		}
	}
	sort.Strings(result.BlockedFunctionsFound)
	if len(result.BlockedFunctionsFound) > 0 {
		result.Message = fmt.Sprintf("blocked function(s) used: %s", strings.Join(result.BlockedFunctionsFound, ", "))
		return result, nil
	}

	distinctTables := make(map[string]struct{}, len(f.tables))
	for _, tbl := range f.tables {
		schema := strings.ToLower(tbl.schema)
		name := strings.ToLower(tbl.name)
		distinctTables[name] = struct{}{}
		if schema != "" && v.blockedSchemas.matches(schema) {
			result.Message = fmt.Sprintf("access to schema %q is not allowed", tbl.schema)
			return result, nil
		}
		if v.blockedTables.matches(name) {
			result.Message = fmt.Sprintf("access to table %q is not allowed", tbl.name)
			return result, nil
		}
	}

	if msg, blocked := v.checkBlockedColumns(f); blocked {
		result.Message = msg
		return result, nil
	}

	if v.cfg.MaxJoins >= 0 && len(distinctTables) > v.cfg.MaxJoins {
		result.Message = fmt.Sprintf("query references %d distinct tables, exceeding the limit of %d", len(distinctTables), v.cfg.MaxJoins)
		return result, nil
	}

	if isSelect && !f.hasWhere {
		for tbl := range distinctTables {
			if _, required := v.requireWhereTables[tbl]; required {
				result.Message = fmt.Sprintf("SELECT statements referencing table %q must include a WHERE clause", tbl)
				return result, nil
			}
		}
	}

	result.IsValid = true
	result.Message = "ok"
	return result, nil
}

// checkBlockedColumns reports the first column reference in f that matches
// either the global blocklist or a per-table blocklist. A qualified
// reference (u.password) resolves its qualifier through f.aliases before
// checking the per-table map; an unqualified reference is checked against
// every table the statement references.
func (v *Validator) checkBlockedColumns(f *findings) (string, bool) {
	for _, col := range f.columns {
		if _, blocked := v.blockedColumns[col.name]; blocked {
			return fmt.Sprintf("access to column %q is not allowed", col.name), true
		}

		if col.qualifier != "" {
			table := col.qualifier
			if resolved, ok := f.aliases[col.qualifier]; ok {
				table = resolved
			}
			if cols, ok := v.blockedColumnsByTable[table]; ok {
				if _, blocked := cols[col.name]; blocked {
					return fmt.Sprintf("access to column %q is not allowed", table+"."+col.name), true
				}
			}
			continue
		}

		for _, tbl := range f.tables {
			table := strings.ToLower(tbl.name)
			cols, ok := v.blockedColumnsByTable[table]
			if !ok {
				continue
			}
			if _, blocked := cols[col.name]; blocked {
				return fmt.Sprintf("access to column %q is not allowed", table+"."+col.name), true
			}
		}
	}
	return "", false
}

// ValidateOrRaise is Validate, collapsing a policy rejection into a
// CodeSecurityViolation domain error instead of an IsValid:false result.
func (v *Validator) ValidateOrRaise(sql string) (*ValidationResult, error) {
	result, err := v.Validate(sql)
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		return nil, domainerrors.NewDomainWithDetails(domainerrors.CodeSecurityViolation, result.Message, map[string]any{
			"blocked_functions": result.BlockedFunctionsFound,
		})
	}
	return result, nil
}

// Normalize replaces literal constants in sql with numbered placeholders
// ($1, $2, ...), suitable for grouping structurally identical queries in
// logs and metrics without leaking parameter values.
func (v *Validator) Normalize(sql string) (string, error) {
	out, err := pgquery.Normalize(sql)
	if err != nil {
		return "", domainerrors.NewDomainWithCause(domainerrors.CodeSQLParseError, "sql normalization failed", err)
	}
	return out, nil
}

// ExtractTables returns the sorted, deduplicated set of table names
// referenced by sql.
func (v *Validator) ExtractTables(sql string) ([]string, error) {
	body, _, err := v.parseSoleStatement(sql)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	f := &findings{functions: map[string]struct{}{}, aliases: map[string]string{}}
	f.walk(body)

	seen := make(map[string]struct{}, len(f.tables))
	tables := make([]string, 0, len(f.tables))
	for _, tbl := range f.tables {
		if _, ok := seen[tbl.name]; ok {
			continue
		}
		seen[tbl.name] = struct{}{}
		tables = append(tables, tbl.name)
	}
	sort.Strings(tables)
	return tables, nil
}

// parseSoleStatement parses sql and returns the lower-keyed body of its
// single top-level statement along with its node-type key (e.g.
// "selectstmt", "insertstmt"). If sql does not contain exactly one
// statement, body is nil and kind carries a human-readable reason.
func (v *Validator) parseSoleStatement(sql string) (body map[string]any, kind string, err error) {
	raw, parseErr := pgquery.ParseToJSON(sql)
	if parseErr != nil {
		return nil, "", domainerrors.NewDomainWithCause(domainerrors.CodeSQLParseError, "sql failed to parse", parseErr)
	}

	var tree map[string]any
	if decodeErr := json.Unmarshal([]byte(raw), &tree); decodeErr != nil {
		return nil, "", domainerrors.NewDomainWithCause(domainerrors.CodeSQLParseError, "sql parse tree decode failed", decodeErr)
	}
	lowered, ok := lowerKeys(tree).(map[string]any)
	if !ok {
		return nil, "", domainerrors.NewDomain(domainerrors.CodeSQLParseError, "sql parse tree had unexpected shape")
	}

	stmts, _ := lowered["stmts"].([]any)
	if len(stmts) != 1 {
		return nil, fmt.Sprintf("exactly one SQL statement is required, found %d", len(stmts)), nil
	}

	stmtWrap, _ := stmts[0].(map[string]any)
	stmtBody, _ := stmtWrap["stmt"].(map[string]any)
	if stmtBody == nil {
		return nil, "statement body missing from parse tree", nil
	}

	return stmtBody, soleKey(stmtBody), nil
}

// soleKey returns the single key of m, which is how the parser's Node oneof
// renders in JSON (e.g. {"selectstmt": {...}}).
func soleKey(m map[string]any) string {
	for k := range m {
		return k
	}
	return ""
}

// lowerKeys recursively lower-cases every map key in v, leaving values and
// slice ordering untouched.
func lowerKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.ToLower(k)] = lowerKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = lowerKeys(val)
		}
		return out
	default:
		return v
	}
}

// walk recursively visits node, recording function calls, table references,
// joins, and WHERE-clause presence into f. It dispatches on a small set of
// known node-type keys and otherwise descends generically, so it keeps
// working if the parser adds new node types it has no opinion about.
func (f *findings) walk(node any) {
	switch t := node.(type) {
	case map[string]any:
		for key, val := range t {
			switch key {
			case "funccall":
				f.recordFuncCall(val)
			case "rangevar":
				f.recordRangeVar(val)
			case "columnref":
				f.recordColumnRef(val)
			case "whereclause":
				f.hasWhere = true
			}
			f.walk(val)
		}
	case []any:
		for _, item := range t {
			f.walk(item)
		}
	}
}

func (f *findings) recordFuncCall(val any) {
	obj, ok := val.(map[string]any)
	if !ok {
		return
	}
	names, _ := obj["funcname"].([]any)
	for _, n := range names {
		if s := stringNodeValue(n); s != "" {
			f.functions[strings.ToLower(s)] = struct{}{}
		}
	}
}

func (f *findings) recordRangeVar(val any) {
	obj, ok := val.(map[string]any)
	if !ok {
		return
	}
	schema, _ := obj["schemaname"].(string)
	name, _ := obj["relname"].(string)
	if name == "" {
		return
	}
	f.tables = append(f.tables, tableRef{schema: schema, name: name})

	lowerName := strings.ToLower(name)
	if f.aliases == nil {
		f.aliases = map[string]string{}
	}
	f.aliases[lowerName] = lowerName
	if aliasObj, ok := obj["alias"].(map[string]any); ok {
		if aliasName, _ := aliasObj["aliasname"].(string); aliasName != "" {
			f.aliases[strings.ToLower(aliasName)] = lowerName
		}
	}
}

// recordColumnRef extracts a column reference from a ColumnRef node's
// "fields" array: an optional leading qualifier ("u" in "u.password")
// followed by the column name, or an A_Star node for "*" which carries no
// column name and is ignored.
func (f *findings) recordColumnRef(val any) {
	obj, ok := val.(map[string]any)
	if !ok {
		return
	}
	fields, _ := obj["fields"].([]any)
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		fieldObj, ok := field.(map[string]any)
		if !ok {
			continue
		}
		if _, isStar := fieldObj["a_star"]; isStar {
			return
		}
		if s := stringNodeValue(field); s != "" {
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		return
	}

	ref := columnRef{name: strings.ToLower(names[len(names)-1])}
	if len(names) > 1 {
		ref.qualifier = strings.ToLower(names[len(names)-2])
	}
	f.columns = append(f.columns, ref)
}

// stringNodeValue extracts the string value from a parser String node,
// tolerating the field-name variants ("sval" vs "str") used across
// libpg_query versions.
func stringNodeValue(n any) string {
	obj, ok := n.(map[string]any)
	if !ok {
		return ""
	}
	if inner, ok := obj["string"].(map[string]any); ok {
		obj = inner
	}
	if s, ok := obj["sval"].(string); ok {
		return s
	}
	if s, ok := obj["str"].(string); ok {
		return s
	}
	return ""
}
