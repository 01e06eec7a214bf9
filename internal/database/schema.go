package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SchemaState is the progress of a Bootstrapper run.
type SchemaState int

const (
	StateUnchecked SchemaState = iota
	StateTablesEnsured
	StateColumnsReconciled
	StateReady
)

func (s SchemaState) String() string {
	switch s {
	case StateTablesEnsured:
		return "tables_ensured"
	case StateColumnsReconciled:
		return "columns_reconciled"
	case StateReady:
		return "ready"
	}
	return "unchecked"
}

// Table is a create-if-absent table definition.
type Table struct {
	Name string
	DDL  string
}

// Column is a column added after its table was first released.
type Column struct {
	Table      string
	Name       string
	Definition string
}

// Tables in dependency order: referenced tables come first.
var Tables = []Table{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		last_login_time DATETIME,
		last_login_ip TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"menus", `CREATE TABLE IF NOT EXISTS menus (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		order_num INTEGER DEFAULT 0,
		is_public INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"sub_menus", `CREATE TABLE IF NOT EXISTS sub_menus (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		menu_id INTEGER NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		order_num INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"cards", `CREATE TABLE IF NOT EXISTS cards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		menu_id INTEGER NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
		sub_menu_id INTEGER REFERENCES sub_menus(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		logo_url TEXT,
		custom_logo_path TEXT,
		"desc" TEXT,
		order_num INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"configs", `CREATE TABLE IF NOT EXISTS configs (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"ads", `CREATE TABLE IF NOT EXISTS ads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position TEXT,
		img TEXT,
		url TEXT,
		title TEXT,
		order_num INTEGER DEFAULT 0,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
	{"friend_links", `CREATE TABLE IF NOT EXISTS friend_links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		logo_url TEXT,
		description TEXT,
		order_num INTEGER DEFAULT 0,
		is_active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},
}

// LateColumns are reconciled on every start so databases created by older
// releases pick them up.
var LateColumns = []Column{
	{"menus", "order_num", "INTEGER DEFAULT 0"},
	{"menus", "is_public", "INTEGER DEFAULT 1"},
	{"cards", "sub_menu_id", "INTEGER REFERENCES sub_menus(id) ON DELETE CASCADE"},
	{"cards", "custom_logo_path", "TEXT"},
	{"cards", "order_num", "INTEGER DEFAULT 0"},
	{"users", "last_login_time", "DATETIME"},
	{"users", "last_login_ip", "TEXT"},
	{"ads", "is_active", "INTEGER DEFAULT 1"},
	{"friend_links", "is_active", "INTEGER DEFAULT 1"},
}

// Indexes are created during reconciliation, after late columns exist.
var Indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_menus_order_num ON menus(order_num)",
	"CREATE INDEX IF NOT EXISTS idx_sub_menus_menu_id ON sub_menus(menu_id)",
	"CREATE INDEX IF NOT EXISTS idx_cards_menu_id ON cards(menu_id)",
	"CREATE INDEX IF NOT EXISTS idx_cards_sub_menu_id ON cards(sub_menu_id)",
	"CREATE INDEX IF NOT EXISTS idx_ads_position ON ads(position, order_num)",
	"CREATE INDEX IF NOT EXISTS idx_friend_links_order_num ON friend_links(order_num)",
}

// Bootstrapper applies the schema through a Querier.
type Bootstrapper struct {
	q     Querier
	log   zerolog.Logger
	state SchemaState
	// Skipped lists reconciliation statements that failed during the last run.
	Skipped []string
}

// NewBootstrapper creates a bootstrapper in the Unchecked state.
func NewBootstrapper(q Querier, logger zerolog.Logger) *Bootstrapper {
	return &Bootstrapper{q: q, log: logger}
}

// State returns how far the last Run got.
func (b *Bootstrapper) State() SchemaState {
	return b.state
}

// Run creates missing tables, then adds missing columns and indexes. A table
// that cannot be created aborts the run; reconciliation failures are logged
// and skipped.
func (b *Bootstrapper) Run(ctx context.Context) error {
	b.state = StateUnchecked
	b.Skipped = nil

	for _, t := range Tables {
		if _, err := b.q.Run(ctx, t.DDL); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}
	b.state = StateTablesEnsured

	for _, c := range LateColumns {
		b.reconcileColumn(ctx, c)
	}
	for _, ddl := range Indexes {
		if _, err := b.q.Run(ctx, ddl); err != nil {
			b.skip(ddl, err)
		}
	}
	b.state = StateColumnsReconciled

	b.state = StateReady
	b.log.Info().Int("tables", len(Tables)).Int("skipped", len(b.Skipped)).Msg("schema ready")
	return nil
}

func (b *Bootstrapper) reconcileColumn(ctx context.Context, c Column) {
	check := fmt.Sprintf("SELECT %s FROM %s WHERE 1 = 0", c.Name, c.Table)
	if _, err := b.q.Query(ctx, check); err == nil {
		return
	}

	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Name, c.Definition)
	if _, err := b.q.Run(ctx, alter); err != nil {
		b.skip(alter, err)
		return
	}
	b.log.Info().Str("table", c.Table).Str("column", c.Name).Msg("added column")
}

func (b *Bootstrapper) skip(stmt string, err error) {
	b.Skipped = append(b.Skipped, stmt)
	b.log.Warn().Err(err).Str("sql", abbreviate(stmt)).Msg("schema reconciliation step skipped")
}
