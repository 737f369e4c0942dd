package sqlvalidator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/iruldev/golang-api-hexagonal/internal/domain/errors"
)

func defaultConfig() Config {
	return Config{
		MaxJoins:              5,
		AllowDataModification: false,
		BlockedFunctions:      []string{"pg_sleep", "dblink"},
		BlockedSchemas:        []string{"pg_catalog", "information_schema"},
		BlockedTables:         []string{"secrets"},
	}
}

func TestValidate_SimpleSelectIsValid(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.Validate("SELECT id, name FROM customers WHERE id = 1")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.IsSelect)
	assert.False(t, result.AllowsDataModification)
	assert.Empty(t, result.BlockedFunctionsFound)
}

func TestValidate_RejectsUnparsableSQL(t *testing.T) {
	v := New(defaultConfig())

	_, err := v.Validate("SELEKT * FROM nowhere")

	require.Error(t, err)
	domainErr := domainerrors.IsDomainError(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, domainerrors.CodeSQLParseError, domainErr.Code)
}

func TestValidate_RejectsMultipleStatements(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.Validate("SELECT 1; SELECT 2")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "exactly one SQL statement")
}

func TestValidate_RejectsDataModificationByDefault(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.Validate("DELETE FROM customers WHERE id = 1")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.False(t, result.IsSelect)
	assert.Contains(t, result.Message, "only SELECT statements are allowed")
}

func TestValidate_AllowsDataModificationWhenConfigured(t *testing.T) {
	cfg := defaultConfig()
	cfg.AllowDataModification = true
	v := New(cfg)

	result, err := v.Validate("UPDATE customers SET name = 'x' WHERE id = 1")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.AllowsDataModification)
}

func TestValidate_BlocksDisallowedFunction(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.Validate("SELECT pg_sleep(5)")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"pg_sleep"}, result.BlockedFunctionsFound)
}

func TestValidate_BlocksDisallowedSchema(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.Validate("SELECT * FROM pg_catalog.pg_proc")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "schema")
}

func TestValidate_BlocksDisallowedTable(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.Validate("SELECT * FROM secrets")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "secrets")
}

func TestValidate_BlocksTableByGlobPattern(t *testing.T) {
	cfg := defaultConfig()
	cfg.BlockedTables = []string{"tmp_*"}
	v := New(cfg)

	result, err := v.Validate("SELECT * FROM tmp_customer_import")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "tmp_customer_import")
}

func TestValidate_RejectsTooManyJoins(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxJoins = 1
	v := New(cfg)

	sql := `SELECT * FROM a
		JOIN b ON a.id = b.a_id
		JOIN c ON b.id = c.b_id
		JOIN d ON c.id = d.c_id`

	result, err := v.Validate(sql)

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "distinct tables")
}

// TestValidate_RejectsTooManyJoins_CommaStyle exercises a comma-style join
// with no JOIN keyword at all, so a node-count-based check would see zero
// joins and wrongly admit it: the cap is on distinct referenced tables.
func TestValidate_RejectsTooManyJoins_CommaStyle(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxJoins = 3
	v := New(cfg)

	result, err := v.Validate("SELECT * FROM a, b, c, d WHERE a.id = b.a_id")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "distinct tables")
}

func TestValidate_RequiresWhereClauseWhenConfigured(t *testing.T) {
	cfg := defaultConfig()
	cfg.RequireWhereClauseTables = []string{"customers"}
	v := New(cfg)

	result, err := v.Validate("SELECT * FROM customers")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "WHERE")
}

func TestValidate_RequireWhereClauseOnlyAppliesToListedTables(t *testing.T) {
	cfg := defaultConfig()
	cfg.RequireWhereClauseTables = []string{"customers"}
	v := New(cfg)

	result, err := v.Validate("SELECT * FROM orders")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestValidate_BlocksGlobalBlockedColumn(t *testing.T) {
	cfg := defaultConfig()
	cfg.BlockedColumns = []string{"ssn"}
	v := New(cfg)

	result, err := v.Validate("SELECT ssn FROM customers")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "ssn")
}

// TestValidate_BlocksColumnByTableResolvingAlias reproduces the documented
// scenario: blocked_columns = {users: [password]}, SELECT u.password FROM
// users u, expecting a violation citing users.password.
func TestValidate_BlocksColumnByTableResolvingAlias(t *testing.T) {
	cfg := defaultConfig()
	cfg.BlockedColumnsByTable = map[string][]string{"users": {"password"}}
	v := New(cfg)

	result, err := v.Validate("SELECT u.password FROM users u")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "users.password")
}

func TestValidate_BlocksColumnByTableWhenUnqualified(t *testing.T) {
	cfg := defaultConfig()
	cfg.BlockedColumnsByTable = map[string][]string{"users": {"password"}}
	v := New(cfg)

	result, err := v.Validate("SELECT password FROM users")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "users.password")
}

func TestValidate_PerTableBlockedColumnDoesNotAffectOtherTables(t *testing.T) {
	cfg := defaultConfig()
	cfg.BlockedColumnsByTable = map[string][]string{"users": {"password"}}
	v := New(cfg)

	result, err := v.Validate("SELECT password FROM customers")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestValidateOrRaise_ReturnsSecurityViolation(t *testing.T) {
	v := New(defaultConfig())

	_, err := v.ValidateOrRaise("DELETE FROM customers")

	require.Error(t, err)
	domainErr := domainerrors.IsDomainError(err)
	require.NotNil(t, domainErr)
	assert.Equal(t, domainerrors.CodeSecurityViolation, domainErr.Code)
}

func TestValidateOrRaise_PassesThroughValid(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.ValidateOrRaise("SELECT id FROM customers WHERE id = 1")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestNormalize_ReplacesConstants(t *testing.T) {
	v := New(defaultConfig())

	out, err := v.Normalize("SELECT * FROM customers WHERE id = 42")

	require.NoError(t, err)
	assert.NotContains(t, out, "42")
}

func TestExtractTables_ReturnsDistinctTableNames(t *testing.T) {
	v := New(defaultConfig())

	tables, err := v.ExtractTables(`SELECT * FROM customers c
		JOIN orders o ON o.customer_id = c.id
		JOIN orders o2 ON o2.customer_id = c.id`)

	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tables)
}

func TestValidate_RejectsExplainByDefault(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.Validate("EXPLAIN SELECT * FROM customers")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Message, "EXPLAIN")
}

func TestValidate_AllowsExplainWhenConfiguredWithoutCheckingInnerQuery(t *testing.T) {
	cfg := defaultConfig()
	cfg.AllowExplain = true
	v := New(cfg)

	// The inner query blocks a function and a table, but EXPLAIN is
	// admitted unconditionally and the inner statement is never re-parsed.
	result, err := v.Validate("EXPLAIN SELECT pg_sleep(5) FROM secrets")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestValidate_EmptyStatement(t *testing.T) {
	v := New(defaultConfig())

	result, err := v.Validate("   ")

	require.NoError(t, err)
	assert.False(t, result.IsValid)
}
