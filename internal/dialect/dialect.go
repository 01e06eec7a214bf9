// Package dialect translates dialect-agnostic SQL templates into the native
// syntax of the backing engine.
//
// Templates are written once using "?" placeholders in left-to-right order,
// SQLite style type keywords (INTEGER PRIMARY KEY AUTOINCREMENT, DATETIME) and
// ANSI double quotes for identifiers that collide with reserved words. SQLite
// receives the template unchanged; PostgreSQL receives numbered placeholders,
// SERIAL and TIMESTAMP types and a RETURNING id clause on inserts into tables
// that carry a surrogate id.
//
// This package is the only place that inspects the dialect. It performs no I/O.
package dialect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Name identifies a backing SQL engine.
type Name string

const (
	SQLite   Name = "sqlite"
	Postgres Name = "postgres"
)

// ParseName maps a configuration value onto a dialect.
func ParseName(s string) (Name, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialect, s)
}

// Kind classifies a statement by its leading keyword.
type Kind int

const (
	KindOther Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindDDL:
		return "ddl"
	}
	return "other"
}

// IDMode tells the executor how to obtain the id of an inserted row.
type IDMode int

const (
	// IDNone means the statement never yields an inserted id.
	IDNone IDMode = iota
	// IDFromResult reads the id from the driver's LastInsertId.
	IDFromResult
	// IDFromReturning reads the id column from the rows the statement returns.
	IDFromReturning
)

var (
	ErrUnknownDialect = errors.New("unknown SQL dialect")
	ErrParamCount     = errors.New("parameter count does not match placeholder count")
	ErrEmptyStatement = errors.New("empty statement")
)

// DefaultNoIDTables lists the tables whose primary key is not a surrogate
// integer id. Inserts into them never request the id back.
var DefaultNoIDTables = []string{"configs"}

// Statement is a translated, engine-native statement.
type Statement struct {
	SQL          string
	Placeholders int
	Kind         Kind
	// Table is the lower-cased target of an INSERT, UPDATE or DELETE.
	Table  string
	IDMode IDMode
	// ExplicitReturning is set when the template itself carried a RETURNING clause.
	ExplicitReturning bool
	// NoIDTable is set when Table is in the translator's denylist.
	NoIDTable bool
	// Upsert is set for inserts that may resolve to an existing row:
	// ON CONFLICT clauses, INSERT OR REPLACE and REPLACE INTO.
	Upsert bool
}

// CheckArgs fails when the number of parameters differs from the number of
// placeholders in the statement.
func (s Statement) CheckArgs(n int) error {
	if n != s.Placeholders {
		return fmt.Errorf("%w: statement has %d placeholders, got %d parameters",
			ErrParamCount, s.Placeholders, n)
	}
	return nil
}

// Translator rewrites templates for one dialect.
type Translator struct {
	Dialect    Name
	NoIDTables []string
}

// New returns a translator for d using DefaultNoIDTables.
func New(d Name) Translator {
	return Translator{Dialect: d, NoIDTables: DefaultNoIDTables}
}

// Translate rewrites template for dialect d with the default denylist.
func Translate(template string, d Name) (Statement, error) {
	return New(d).Translate(template)
}

// Translate rewrites template into the translator's dialect.
func (t Translator) Translate(template string) (Statement, error) {
	if t.Dialect != SQLite && t.Dialect != Postgres {
		return Statement{}, fmt.Errorf("%w: %q", ErrUnknownDialect, t.Dialect)
	}

	toks, err := lex(template)
	if err != nil {
		return Statement{}, err
	}
	first := nextSignificant(toks, 0)
	if first < 0 {
		return Statement{}, ErrEmptyStatement
	}

	stmt := Statement{
		SQL:               template,
		Placeholders:      countPlaceholders(toks),
		Kind:              classify(toks[first]),
		ExplicitReturning: hasReturning(toks),
	}
	stmt.Table = targetTable(toks, first, stmt.Kind)
	stmt.NoIDTable = stmt.Table != "" && t.isNoIDTable(stmt.Table)
	if stmt.Kind == KindInsert {
		stmt.Upsert = isUpsert(toks, first)
	}

	if stmt.Kind == KindInsert {
		switch {
		case stmt.ExplicitReturning:
			stmt.IDMode = IDFromReturning
		case stmt.NoIDTable:
			stmt.IDMode = IDNone
		case t.Dialect == Postgres, stmt.Upsert:
			stmt.IDMode = IDFromReturning
		default:
			stmt.IDMode = IDFromResult
		}
	}

	if t.Dialect == SQLite {
		// LastInsertId is stale when an upsert updates an existing row, so
		// upserts read the id back like they do on PostgreSQL.
		if stmt.Upsert && !stmt.ExplicitReturning && !stmt.NoIDTable {
			stmt.SQL = join(appendReturningID(toks))
		}
		return stmt, nil
	}

	toks = numberPlaceholders(toks)
	toks = rewriteAutoincrement(toks)
	toks = rewriteTimestamp(toks)
	if stmt.Kind == KindInsert && !stmt.ExplicitReturning && !stmt.NoIDTable {
		toks = appendReturningID(toks)
	}
	stmt.SQL = join(toks)
	return stmt, nil
}

func (t Translator) isNoIDTable(table string) bool {
	for _, n := range t.NoIDTables {
		if strings.EqualFold(n, table) {
			return true
		}
	}
	return false
}

// StripReturningID removes a trailing "RETURNING id" clause (and any statement
// terminator after it). It reports false and returns sql unchanged when the
// statement does not end with exactly that clause.
//
// It is the fallback for inserts into tables without an id column where a
// caller explicitly asked for the id back: strip, retry once, and report no id.
func StripReturningID(sql string) (string, bool) {
	toks, err := lex(sql)
	if err != nil {
		return sql, false
	}
	last := lastSignificant(toks)
	if last < 0 || toks[last].ident() != "id" {
		return sql, false
	}
	kw := last - 1
	for kw >= 0 && !toks[kw].significant() {
		kw--
	}
	if kw < 0 || !toks[kw].isWord("RETURNING") {
		return sql, false
	}
	cut := kw
	for cut > 0 && toks[cut-1].kind == tokSpace {
		cut--
	}
	return join(toks[:cut]), true
}

func classify(t token) Kind {
	if t.kind != tokWord {
		return KindOther
	}
	switch strings.ToUpper(t.text) {
	case "SELECT", "WITH", "VALUES":
		return KindSelect
	case "INSERT", "REPLACE":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	case "CREATE", "ALTER", "DROP":
		return KindDDL
	}
	return KindOther
}

// targetTable finds the table named after INSERT [OR x] INTO, UPDATE [OR x]
// or DELETE FROM.
func targetTable(toks []token, first int, kind Kind) string {
	var anchor string
	switch kind {
	case KindInsert:
		anchor = "INTO"
	case KindUpdate:
		anchor = ""
	case KindDelete:
		anchor = "FROM"
	default:
		return ""
	}

	i := first
	if anchor != "" {
		for i = nextSignificant(toks, first+1); i >= 0 && !toks[i].isWord(anchor); i = nextSignificant(toks, i+1) {
		}
		if i < 0 {
			return ""
		}
	} else if j := nextSignificant(toks, i+1); j >= 0 && toks[j].isWord("OR") {
		i = nextSignificant(toks, j+1)
	}

	i = nextSignificant(toks, i+1)
	if i < 0 {
		return ""
	}
	name := toks[i].ident()
	// schema.table
	if dot := nextSignificant(toks, i+1); dot >= 0 && toks[dot].text == "." {
		if j := nextSignificant(toks, dot+1); j >= 0 {
			name = toks[j].ident()
		}
	}
	return name
}

func countPlaceholders(toks []token) int {
	n := 0
	for _, t := range toks {
		if t.kind == tokPlaceholder {
			n++
		}
	}
	return n
}

func isUpsert(toks []token, first int) bool {
	if toks[first].isWord("REPLACE") {
		return true
	}
	if _, ok := matchWords(toks, first, []string{"INSERT", "OR", "REPLACE"}); ok {
		return true
	}
	for i := range toks {
		if _, ok := matchWords(toks, i, []string{"ON", "CONFLICT"}); ok {
			return true
		}
	}
	return false
}

func hasReturning(toks []token) bool {
	for _, t := range toks {
		if t.isWord("RETURNING") {
			return true
		}
	}
	return false
}

// numberPlaceholders rewrites each "?" to $1, $2, ... in occurrence order.
func numberPlaceholders(toks []token) []token {
	out := make([]token, len(toks))
	n := 0
	for i, t := range toks {
		if t.kind == tokPlaceholder {
			n++
			t = token{tokPlaceholder, "$" + strconv.Itoa(n)}
		}
		out[i] = t
	}
	return out
}

// rewriteAutoincrement replaces INTEGER PRIMARY KEY AUTOINCREMENT with
// SERIAL PRIMARY KEY.
func rewriteAutoincrement(toks []token) []token {
	seq := []string{"INTEGER", "PRIMARY", "KEY", "AUTOINCREMENT"}
	var out []token
	for i := 0; i < len(toks); i++ {
		if end, ok := matchWords(toks, i, seq); ok {
			out = append(out, token{tokWord, "SERIAL PRIMARY KEY"})
			i = end
			continue
		}
		out = append(out, toks[i])
	}
	return out
}

// matchWords reports whether the significant tokens starting at i spell seq,
// returning the index of the last matched token.
func matchWords(toks []token, i int, seq []string) (int, bool) {
	if !toks[i].isWord(seq[0]) {
		return 0, false
	}
	j := i
	for _, w := range seq[1:] {
		j = nextSignificant(toks, j+1)
		if j < 0 || !toks[j].isWord(w) {
			return 0, false
		}
	}
	return j, true
}

func rewriteTimestamp(toks []token) []token {
	out := make([]token, len(toks))
	for i, t := range toks {
		if t.isWord("DATETIME") {
			t = token{tokWord, "TIMESTAMP"}
		}
		out[i] = t
	}
	return out
}

// appendReturningID drops trailing terminators and comments and appends the
// clause after the last significant token.
func appendReturningID(toks []token) []token {
	last := lastSignificant(toks)
	out := append([]token{}, toks[:last+1]...)
	return append(out, token{tokSpace, " "}, token{tokWord, "RETURNING"}, token{tokSpace, " "}, token{tokWord, "id"})
}
