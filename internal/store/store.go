// Package store implements the element store for Stuart.
//
// It persists a codebase as structured records (modules, functions, types,
// constants, and the edges between them) in SQLite with FTS5 full-text
// search over element bodies. The store is the sole source of truth; rendered
// source files are disposable derived output.
//
// All writes from outside this package go through the mutation gateway
// (internal/gateway), which validates invariants and applies change sets
// atomically via WithTx.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Kinds ───────────────────────────────────────────────────────────────────

// Element kinds.
const (
	KindFunction = "function"
	KindType     = "type"
	KindConstant = "constant"
)

// Edge kinds. Imports are module-scoped and live in their own table; calls
// and uses_type connect elements.
const (
	EdgeCalls    = "calls"
	EdgeUsesType = "uses_type"
	EdgeImports  = "imports"
)

// ValidKind reports whether k is a known element kind.
func ValidKind(k string) bool {
	return k == KindFunction || k == KindType || k == KindConstant
}

// ValidEdgeKind reports whether k is a known element-edge kind.
func ValidEdgeKind(k string) bool {
	return k == EdgeCalls || k == EdgeUsesType
}

// ─── Types ───────────────────────────────────────────────────────────────────

// Project is the single-row record describing the codebase being maintained.
type Project struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	CurrentState string `json:"current_state,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Module is a named scope owning elements. Filename is the path the renderer
// writes this module to, relative to the artifact directory.
type Module struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Filename    string `json:"filename"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Element is a stored code unit: a function, type, or constant.
// Position records declaration order within the owning module and drives
// deterministic rendering and context ordering.
type Element struct {
	ID        int64  `json:"id"`
	ModuleID  int64  `json:"module_id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Signature string `json:"signature,omitempty"`
	Body      string `json:"body,omitempty"`
	Value     string `json:"value,omitempty"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Edge is a directed, typed link between two elements.
type Edge struct {
	ID        int64  `json:"id"`
	FromID    int64  `json:"from_id"`
	ToID      int64  `json:"to_id"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

// Import is a module-level import reference, ordered by position.
type Import struct {
	ID         int64 `json:"id"`
	ModuleID   int64 `json:"module_id"`
	ImportedID int64 `json:"imported_id"`
	Position   int   `json:"position"`
}

// SearchResult embeds an Element with its FTS5 rank score.
type SearchResult struct {
	Element
	ModuleName string  `json:"module_name"`
	Rank       float64 `json:"rank"`
}

// Stats holds aggregate store statistics.
type Stats struct {
	Modules   int `json:"modules"`
	Functions int `json:"functions"`
	Types     int `json:"types"`
	Constants int `json:"constants"`
	Edges     int `json:"edges"`
	Imports   int `json:"imports"`
}

// ─── Params ──────────────────────────────────────────────────────────────────

// CreateModuleParams holds the input for creating a module.
type CreateModuleParams struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// UpdateModuleParams holds partial update fields for a module.
type UpdateModuleParams struct {
	Description *string `json:"description,omitempty"`
	Filename    *string `json:"filename,omitempty"`
}

// CreateElementParams holds the input for creating an element.
type CreateElementParams struct {
	ModuleID  int64  `json:"module_id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Signature string `json:"signature,omitempty"`
	Body      string `json:"body,omitempty"`
	Value     string `json:"value,omitempty"`
}

// UpdateElementParams holds partial update fields for an element.
type UpdateElementParams struct {
	Signature *string `json:"signature,omitempty"`
	Body      *string `json:"body,omitempty"`
	Value     *string `json:"value,omitempty"`
}

// ElementFilter narrows QueryElements results.
type ElementFilter struct {
	ModuleID int64  `json:"module_id,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// SearchOptions holds filters for FTS5 search queries.
type SearchOptions struct {
	Kind  string `json:"kind,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds element store configuration.
type Config struct {
	DataDir   string
	OpTimeout time.Duration // bounded timeout per store operation
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:   filepath.Join(home, ".stuart"),
		OpTimeout: 5 * time.Second,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent element store backed by SQLite + FTS5.
type Store struct {
	db  *sql.DB
	cfg Config
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so that every mutation can
// run standalone or inside a gateway transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "stuart.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite pragmas: WAL for concurrent readers during commits,
	// foreign_keys for edge integrity at the SQL layer.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// opCtx applies the configured bounded timeout to an operation context.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS project (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			name         TEXT NOT NULL,
			description  TEXT,
			architecture TEXT,
			current_state TEXT,
			created_at   TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS modules (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL,
			description TEXT,
			filename    TEXT NOT NULL,
			created_at  TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_mod_name     ON modules(name);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_mod_filename ON modules(filename);

		CREATE TABLE IF NOT EXISTS elements (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			module_id  INTEGER NOT NULL,
			kind       TEXT    NOT NULL CHECK (kind IN ('function', 'type', 'constant')),
			name       TEXT    NOT NULL,
			signature  TEXT,
			body       TEXT,
			value      TEXT,
			position   INTEGER NOT NULL,
			created_at TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT    NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (module_id) REFERENCES modules(id)
		);

		CREATE INDEX IF NOT EXISTS idx_elem_module ON elements(module_id, position);
		CREATE INDEX IF NOT EXISTS idx_elem_kind   ON elements(kind);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_elem_name ON elements(module_id, name);

		CREATE TABLE IF NOT EXISTS edges (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			from_id    INTEGER NOT NULL,
			to_id      INTEGER NOT NULL,
			kind       TEXT    NOT NULL CHECK (kind IN ('calls', 'uses_type')),
			created_at TEXT    NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (from_id) REFERENCES elements(id),
			FOREIGN KEY (to_id)   REFERENCES elements(id)
		);

		CREATE INDEX IF NOT EXISTS idx_edge_from ON edges(from_id);
		CREATE INDEX IF NOT EXISTS idx_edge_to   ON edges(to_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_edge_unique ON edges(from_id, to_id, kind);

		CREATE TABLE IF NOT EXISTS module_imports (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			module_id   INTEGER NOT NULL,
			imported_id INTEGER NOT NULL,
			position    INTEGER NOT NULL,
			FOREIGN KEY (module_id)   REFERENCES modules(id),
			FOREIGN KEY (imported_id) REFERENCES modules(id)
		);

		CREATE INDEX IF NOT EXISTS idx_imp_module ON module_imports(module_id, position);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_imp_unique ON module_imports(module_id, imported_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS elements_fts USING fts5(
			name,
			body,
			kind,
			content='elements',
			content_rowid='id'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS triggers (idempotent)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='elem_fts_insert'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER elem_fts_insert AFTER INSERT ON elements BEGIN
				INSERT INTO elements_fts(rowid, name, body, kind)
				VALUES (new.id, new.name, new.body, new.kind);
			END;

			CREATE TRIGGER elem_fts_delete AFTER DELETE ON elements BEGIN
				INSERT INTO elements_fts(elements_fts, rowid, name, body, kind)
				VALUES ('delete', old.id, old.name, old.body, old.kind);
			END;

			CREATE TRIGGER elem_fts_update AFTER UPDATE ON elements BEGIN
				INSERT INTO elements_fts(elements_fts, rowid, name, body, kind)
				VALUES ('delete', old.id, old.name, old.body, old.kind);
				INSERT INTO elements_fts(rowid, name, body, kind)
				VALUES (new.id, new.name, new.body, new.kind);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// ─── Transactions ────────────────────────────────────────────────────────────

// Tx exposes the store's mutators inside a single SQLite transaction.
// Created by WithTx; the gateway uses it to apply change sets atomically.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// WithTx runs fn inside a transaction. If fn returns an error the
// transaction is rolled back and the store is left unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapTimeout("begin", fmt.Errorf("begin transaction: %w", err))
	}

	t := &Tx{tx: sqlTx, ctx: ctx}
	if err := fn(t); err != nil {
		_ = sqlTx.Rollback()
		return wrapTimeout("tx", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return wrapTimeout("commit", fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// ─── Project ─────────────────────────────────────────────────────────────────

// SaveProject creates or updates the single project record.
func (s *Store) SaveProject(ctx context.Context, p Project) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return wrapTimeout("SaveProject", saveProject(ctx, s.db, p))
}

// SaveProject creates or updates the project record inside the transaction.
func (t *Tx) SaveProject(p Project) error {
	return saveProject(t.ctx, t.tx, p)
}

func saveProject(ctx context.Context, q dbtx, p Project) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO project (id, name, description, architecture, current_state)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name          = excluded.name,
		   description   = excluded.description,
		   architecture  = excluded.architecture,
		   current_state = excluded.current_state,
		   updated_at    = datetime('now')`,
		p.Name, nullableString(p.Description), nullableString(p.Architecture), nullableString(p.CurrentState),
	)
	return err
}

// GetProject retrieves the project record.
func (s *Store) GetProject(ctx context.Context) (*Project, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT name, COALESCE(description, ''), COALESCE(architecture, ''), COALESCE(current_state, ''),
		        created_at, updated_at
		 FROM project WHERE id = 1`)
	var p Project
	err := row.Scan(&p.Name, &p.Description, &p.Architecture, &p.CurrentState, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "project", Ref: "1"}
	}
	if err != nil {
		return nil, wrapTimeout("GetProject", err)
	}
	return &p, nil
}

// ─── Modules ─────────────────────────────────────────────────────────────────

// CreateModule creates a module scope. The filename defaults to the module
// name with a .py suffix when not given.
func (s *Store) CreateModule(ctx context.Context, p CreateModuleParams) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	id, err := createModule(ctx, s.db, p)
	return id, wrapTimeout("CreateModule", err)
}

// CreateModule creates a module inside the transaction.
func (t *Tx) CreateModule(p CreateModuleParams) (int64, error) {
	return createModule(t.ctx, t.tx, p)
}

func createModule(ctx context.Context, q dbtx, p CreateModuleParams) (int64, error) {
	if p.Filename == "" {
		p.Filename = strings.ReplaceAll(p.Name, ".", "/") + ".py"
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO modules (name, description, filename) VALUES (?, ?, ?)`,
		p.Name, nullableString(p.Description), p.Filename,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &DuplicateNameError{Scope: "modules", Name: p.Name}
		}
		return 0, fmt.Errorf("creating module: %w", err)
	}
	return res.LastInsertId()
}

// GetModule retrieves a module by ID.
func (s *Store) GetModule(ctx context.Context, id int64) (*Module, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return getModule(ctx, s.db, id)
}

// GetModule retrieves a module by ID inside the transaction.
func (t *Tx) GetModule(id int64) (*Module, error) {
	return getModule(t.ctx, t.tx, id)
}

func getModule(ctx context.Context, q dbtx, id int64) (*Module, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description, ''), filename, created_at, updated_at
		 FROM modules WHERE id = ?`, id)
	return scanModule(row, fmt.Sprintf("%d", id))
}

// GetModuleByName retrieves a module by its unique name.
func (s *Store) GetModuleByName(ctx context.Context, name string) (*Module, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return getModuleByName(ctx, s.db, name)
}

// GetModuleByName retrieves a module by name inside the transaction.
func (t *Tx) GetModuleByName(name string) (*Module, error) {
	return getModuleByName(t.ctx, t.tx, name)
}

func getModuleByName(ctx context.Context, q dbtx, name string) (*Module, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description, ''), filename, created_at, updated_at
		 FROM modules WHERE name = ?`, name)
	return scanModule(row, name)
}

func scanModule(row *sql.Row, ref string) (*Module, error) {
	var m Module
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Filename, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "module", Ref: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning module: %w", err)
	}
	return &m, nil
}

// ListModules returns all modules ordered by name.
func (s *Store) ListModules(ctx context.Context) ([]Module, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), filename, created_at, updated_at
		 FROM modules ORDER BY name ASC`)
	if err != nil {
		return nil, wrapTimeout("ListModules", err)
	}
	defer rows.Close()

	var result []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Filename, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// UpdateModule applies a partial update and returns the updated module.
func (s *Store) UpdateModule(ctx context.Context, id int64, p UpdateModuleParams) (*Module, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := updateModule(ctx, s.db, id, p); err != nil {
		return nil, wrapTimeout("UpdateModule", err)
	}
	return getModule(ctx, s.db, id)
}

// UpdateModule applies a partial update inside the transaction.
func (t *Tx) UpdateModule(id int64, p UpdateModuleParams) error {
	return updateModule(t.ctx, t.tx, id, p)
}

func updateModule(ctx context.Context, q dbtx, id int64, p UpdateModuleParams) error {
	sets := []string{"updated_at = datetime('now')"}
	args := []any{}

	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullableString(*p.Description))
	}
	if p.Filename != nil {
		sets = append(sets, "filename = ?")
		args = append(args, *p.Filename)
	}
	args = append(args, id)

	res, err := q.ExecContext(ctx,
		`UPDATE modules SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return &DuplicateNameError{Scope: "modules", Name: derefString(p.Filename)}
		}
		return fmt.Errorf("updating module: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "module", Ref: fmt.Sprintf("%d", id)}
	}
	return nil
}

// DeleteModule removes a module. Without cascade it fails with
// ReferentialIntegrityError if the module still owns elements or is imported
// by another module. With cascade, owned elements, their edges, and import
// references are removed in the same transaction scope.
func (s *Store) DeleteModule(ctx context.Context, id int64, cascade bool) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.DeleteModule(id, cascade)
	})
}

// DeleteModule removes a module inside the transaction.
func (t *Tx) DeleteModule(id int64, cascade bool) error {
	return deleteModule(t.ctx, t.tx, id, cascade)
}

func deleteModule(ctx context.Context, q dbtx, id int64, cascade bool) error {
	m, err := getModule(ctx, q, id)
	if err != nil {
		return err
	}

	var live int
	err = q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM elements WHERE module_id = ?) +
		        (SELECT COUNT(*) FROM module_imports WHERE imported_id = ?)`,
		id, id,
	).Scan(&live)
	if err != nil {
		return fmt.Errorf("counting module references: %w", err)
	}

	if live > 0 && !cascade {
		return &ReferentialIntegrityError{Kind: "module", ID: id, Name: m.Name, EdgeCount: live}
	}

	if cascade {
		stmts := []string{
			`DELETE FROM edges WHERE from_id IN (SELECT id FROM elements WHERE module_id = ?)
			                  OR to_id   IN (SELECT id FROM elements WHERE module_id = ?)`,
			`DELETE FROM elements WHERE module_id = ?`,
		}
		if _, err := q.ExecContext(ctx, stmts[0], id, id); err != nil {
			return fmt.Errorf("cascading edges: %w", err)
		}
		if _, err := q.ExecContext(ctx, stmts[1], id); err != nil {
			return fmt.Errorf("cascading elements: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`DELETE FROM module_imports WHERE module_id = ? OR imported_id = ?`, id, id); err != nil {
			return fmt.Errorf("cascading imports: %w", err)
		}
	} else {
		// No owned elements, but the module may still hold outgoing imports.
		if _, err := q.ExecContext(ctx,
			`DELETE FROM module_imports WHERE module_id = ?`, id); err != nil {
			return fmt.Errorf("removing imports: %w", err)
		}
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM modules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting module: %w", err)
	}
	return nil
}

// ─── Elements ────────────────────────────────────────────────────────────────

// CreateElement creates an element at the next declaration position within
// its module. Fails with DuplicateNameError when the name is taken in the
// module scope.
func (s *Store) CreateElement(ctx context.Context, p CreateElementParams) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	id, err := createElement(ctx, s.db, p)
	return id, wrapTimeout("CreateElement", err)
}

// CreateElement creates an element inside the transaction.
func (t *Tx) CreateElement(p CreateElementParams) (int64, error) {
	return createElement(t.ctx, t.tx, p)
}

func createElement(ctx context.Context, q dbtx, p CreateElementParams) (int64, error) {
	if !ValidKind(p.Kind) {
		return 0, &ValidationError{Invariant: "element-kind", Detail: fmt.Sprintf("unknown kind %q", p.Kind)}
	}

	m, err := getModule(ctx, q, p.ModuleID)
	if err != nil {
		return 0, err
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO elements (module_id, kind, name, signature, body, value, position)
		 VALUES (?, ?, ?, ?, ?, ?,
		         (SELECT COALESCE(MAX(position) + 1, 0) FROM elements WHERE module_id = ?))`,
		p.ModuleID, p.Kind, p.Name,
		nullableString(p.Signature), nullableString(p.Body), nullableString(p.Value),
		p.ModuleID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &DuplicateNameError{Scope: m.Name, Name: p.Name}
		}
		return 0, fmt.Errorf("creating element: %w", err)
	}
	return res.LastInsertId()
}

const elementColumns = `id, module_id, kind, name, COALESCE(signature, ''), COALESCE(body, ''),
	COALESCE(value, ''), position, created_at, updated_at`

// GetElement retrieves an element by ID.
func (s *Store) GetElement(ctx context.Context, id int64) (*Element, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return getElement(ctx, s.db, id)
}

// GetElement retrieves an element by ID inside the transaction.
func (t *Tx) GetElement(id int64) (*Element, error) {
	return getElement(t.ctx, t.tx, id)
}

func getElement(ctx context.Context, q dbtx, id int64) (*Element, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+elementColumns+` FROM elements WHERE id = ?`, id)
	return scanElementRow(row, fmt.Sprintf("%d", id))
}

// GetElementByName retrieves an element by its module-scoped name.
func (s *Store) GetElementByName(ctx context.Context, moduleID int64, name string) (*Element, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return getElementByName(ctx, s.db, moduleID, name)
}

// GetElementByName retrieves an element by name inside the transaction.
func (t *Tx) GetElementByName(moduleID int64, name string) (*Element, error) {
	return getElementByName(t.ctx, t.tx, moduleID, name)
}

func getElementByName(ctx context.Context, q dbtx, moduleID int64, name string) (*Element, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+elementColumns+` FROM elements WHERE module_id = ? AND name = ?`, moduleID, name)
	return scanElementRow(row, name)
}

func scanElementRow(row *sql.Row, ref string) (*Element, error) {
	var e Element
	err := row.Scan(&e.ID, &e.ModuleID, &e.Kind, &e.Name, &e.Signature, &e.Body,
		&e.Value, &e.Position, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "element", Ref: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("scanning element: %w", err)
	}
	return &e, nil
}

// ListElements returns a module's elements in declaration order.
func (s *Store) ListElements(ctx context.Context, moduleID int64) ([]Element, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return listElements(ctx, s.db, moduleID)
}

// ListElements returns a module's elements inside the transaction.
func (t *Tx) ListElements(moduleID int64) ([]Element, error) {
	return listElements(t.ctx, t.tx, moduleID)
}

func listElements(ctx context.Context, q dbtx, moduleID int64) ([]Element, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+elementColumns+` FROM elements WHERE module_id = ? ORDER BY position ASC`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Element
	for rows.Next() {
		var e Element
		if err := rows.Scan(&e.ID, &e.ModuleID, &e.Kind, &e.Name, &e.Signature, &e.Body,
			&e.Value, &e.Position, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning element: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// QueryElements returns elements matching the filter, ordered by module then
// declaration position.
func (s *Store) QueryElements(ctx context.Context, f ElementFilter) ([]Element, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	query := `SELECT ` + elementColumns + ` FROM elements WHERE 1=1`
	args := []any{}

	if f.ModuleID != 0 {
		query += " AND module_id = ?"
		args = append(args, f.ModuleID)
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	query += " ORDER BY module_id ASC, position ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryElements(ctx, query, args...)
}

func (s *Store) queryElements(ctx context.Context, query string, args ...any) ([]Element, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapTimeout("QueryElements", err)
	}
	defer rows.Close()

	var result []Element
	for rows.Next() {
		var e Element
		if err := rows.Scan(&e.ID, &e.ModuleID, &e.Kind, &e.Name, &e.Signature, &e.Body,
			&e.Value, &e.Position, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning element: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// UpdateElement applies a partial update and returns the updated element.
func (s *Store) UpdateElement(ctx context.Context, id int64, p UpdateElementParams) (*Element, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := updateElement(ctx, s.db, id, p); err != nil {
		return nil, wrapTimeout("UpdateElement", err)
	}
	return getElement(ctx, s.db, id)
}

// UpdateElement applies a partial update inside the transaction.
func (t *Tx) UpdateElement(id int64, p UpdateElementParams) error {
	return updateElement(t.ctx, t.tx, id, p)
}

func updateElement(ctx context.Context, q dbtx, id int64, p UpdateElementParams) error {
	sets := []string{"updated_at = datetime('now')"}
	args := []any{}

	if p.Signature != nil {
		sets = append(sets, "signature = ?")
		args = append(args, nullableString(*p.Signature))
	}
	if p.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, nullableString(*p.Body))
	}
	if p.Value != nil {
		sets = append(sets, "value = ?")
		args = append(args, nullableString(*p.Value))
	}
	args = append(args, id)

	res, err := q.ExecContext(ctx,
		`UPDATE elements SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating element: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "element", Ref: fmt.Sprintf("%d", id)}
	}
	return nil
}

// DeleteElement removes an element. Without cascade it fails with
// ReferentialIntegrityError when live incoming edges still reference the
// element; with cascade those edges are removed in the same transaction
// scope. Outgoing edges belong to the element and are always removed.
func (s *Store) DeleteElement(ctx context.Context, id int64, cascade bool) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.DeleteElement(id, cascade)
	})
}

// DeleteElement removes an element inside the transaction.
func (t *Tx) DeleteElement(id int64, cascade bool) error {
	return deleteElement(t.ctx, t.tx, id, cascade)
}

func deleteElement(ctx context.Context, q dbtx, id int64, cascade bool) error {
	e, err := getElement(ctx, q, id)
	if err != nil {
		return err
	}

	var incoming int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM edges WHERE to_id = ?`, id).Scan(&incoming); err != nil {
		return fmt.Errorf("counting incoming edges: %w", err)
	}
	if incoming > 0 && !cascade {
		return &ReferentialIntegrityError{Kind: "element", ID: id, Name: e.Name, EdgeCount: incoming}
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM edges WHERE from_id = ? OR to_id = ?`, id, id); err != nil {
		return fmt.Errorf("removing edges: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM elements WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting element: %w", err)
	}
	return nil
}

// ─── Edges ───────────────────────────────────────────────────────────────────

// CreateEdge creates a directed, typed edge between two elements. Both
// endpoints must exist.
func (s *Store) CreateEdge(ctx context.Context, fromID, toID int64, kind string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	id, err := createEdge(ctx, s.db, fromID, toID, kind)
	return id, wrapTimeout("CreateEdge", err)
}

// CreateEdge creates an edge inside the transaction.
func (t *Tx) CreateEdge(fromID, toID int64, kind string) (int64, error) {
	return createEdge(t.ctx, t.tx, fromID, toID, kind)
}

func createEdge(ctx context.Context, q dbtx, fromID, toID int64, kind string) (int64, error) {
	if !ValidEdgeKind(kind) {
		return 0, &ValidationError{Invariant: "edge-kind", Detail: fmt.Sprintf("unknown edge kind %q", kind)}
	}

	// Both endpoints must exist: no dangling edges, ever.
	for _, id := range []int64{fromID, toID} {
		if _, err := getElement(ctx, q, id); err != nil {
			return 0, err
		}
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO edges (from_id, to_id, kind) VALUES (?, ?, ?)`,
		fromID, toID, kind,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &DuplicateNameError{
				Scope: "edges",
				Name:  fmt.Sprintf("%d→%d (%s)", fromID, toID, kind),
			}
		}
		return 0, fmt.Errorf("creating edge: %w", err)
	}
	return res.LastInsertId()
}

// DeleteEdge hard-deletes an edge by its ID.
func (s *Store) DeleteEdge(ctx context.Context, id int64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return wrapTimeout("DeleteEdge", deleteEdge(ctx, s.db, id))
}

// DeleteEdge removes an edge inside the transaction.
func (t *Tx) DeleteEdge(id int64) error {
	return deleteEdge(t.ctx, t.tx, id)
}

func deleteEdge(ctx context.Context, q dbtx, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting edge: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "edge", Ref: fmt.Sprintf("%d", id)}
	}
	return nil
}

// DeleteEdgeBetween removes the edge between two elements inside the
// transaction and returns its ID.
func (t *Tx) DeleteEdgeBetween(fromID, toID int64, kind string) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id FROM edges WHERE from_id = ? AND to_id = ? AND kind = ?`,
		fromID, toID, kind).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, &NotFoundError{Kind: "edge", Ref: fmt.Sprintf("%d→%d (%s)", fromID, toID, kind)}
	}
	if err != nil {
		return 0, fmt.Errorf("finding edge: %w", err)
	}
	return id, deleteEdge(t.ctx, t.tx, id)
}

// EdgesFrom returns the outgoing edges of an element in creation order.
func (s *Store) EdgesFrom(ctx context.Context, elementID int64) ([]Edge, error) {
	return s.edgeQuery(ctx, `SELECT id, from_id, to_id, kind, created_at
		FROM edges WHERE from_id = ? ORDER BY id ASC`, elementID)
}

// EdgesTo returns the incoming edges of an element in creation order.
func (s *Store) EdgesTo(ctx context.Context, elementID int64) ([]Edge, error) {
	return s.edgeQuery(ctx, `SELECT id, from_id, to_id, kind, created_at
		FROM edges WHERE to_id = ? ORDER BY id ASC`, elementID)
}

// AllEdges returns every edge in the store in creation order. Used to build
// and verify the relationship index.
func (s *Store) AllEdges(ctx context.Context) ([]Edge, error) {
	return s.edgeQuery(ctx, `SELECT id, from_id, to_id, kind, created_at
		FROM edges ORDER BY id ASC`)
}

func (s *Store) edgeQuery(ctx context.Context, query string, args ...any) ([]Edge, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapTimeout("edges", err)
	}
	defer rows.Close()

	var result []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.Kind, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ─── Imports ─────────────────────────────────────────────────────────────────

// AddImport records that module moduleID imports module importedID, at the
// next import position.
func (s *Store) AddImport(ctx context.Context, moduleID, importedID int64) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	id, err := addImport(ctx, s.db, moduleID, importedID)
	return id, wrapTimeout("AddImport", err)
}

// AddImport records an import inside the transaction.
func (t *Tx) AddImport(moduleID, importedID int64) (int64, error) {
	return addImport(t.ctx, t.tx, moduleID, importedID)
}

func addImport(ctx context.Context, q dbtx, moduleID, importedID int64) (int64, error) {
	if moduleID == importedID {
		return 0, &ValidationError{Invariant: "import-self", Detail: "a module cannot import itself"}
	}
	for _, id := range []int64{moduleID, importedID} {
		if _, err := getModule(ctx, q, id); err != nil {
			return 0, err
		}
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO module_imports (module_id, imported_id, position)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM module_imports WHERE module_id = ?))`,
		moduleID, importedID, moduleID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, &DuplicateNameError{
				Scope: "imports",
				Name:  fmt.Sprintf("%d→%d", moduleID, importedID),
			}
		}
		return 0, fmt.Errorf("adding import: %w", err)
	}
	return res.LastInsertId()
}

// RemoveImport removes an import reference by its ID.
func (s *Store) RemoveImport(ctx context.Context, id int64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return wrapTimeout("RemoveImport", removeImport(ctx, s.db, id))
}

// RemoveImport removes an import reference inside the transaction.
func (t *Tx) RemoveImport(id int64) error {
	return removeImport(t.ctx, t.tx, id)
}

func removeImport(ctx context.Context, q dbtx, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM module_imports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("removing import: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "import", Ref: fmt.Sprintf("%d", id)}
	}
	return nil
}

// RemoveImportBetween removes the import reference from moduleID to
// importedID inside the transaction.
func (t *Tx) RemoveImportBetween(moduleID, importedID int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM module_imports WHERE module_id = ? AND imported_id = ?`, moduleID, importedID)
	if err != nil {
		return fmt.Errorf("removing import: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "import", Ref: fmt.Sprintf("%d→%d", moduleID, importedID)}
	}
	return nil
}

// Imports returns a module's import references in declaration order.
func (s *Store) Imports(ctx context.Context, moduleID int64) ([]Import, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, module_id, imported_id, position
		 FROM module_imports WHERE module_id = ? ORDER BY position ASC`, moduleID)
	if err != nil {
		return nil, wrapTimeout("Imports", err)
	}
	defer rows.Close()

	var result []Import
	for rows.Next() {
		var imp Import
		if err := rows.Scan(&imp.ID, &imp.ModuleID, &imp.ImportedID, &imp.Position); err != nil {
			return nil, fmt.Errorf("scanning import: %w", err)
		}
		result = append(result, imp)
	}
	return result, rows.Err()
}

// ─── Search ──────────────────────────────────────────────────────────────────

// Search runs an FTS5 full-text query over element names and bodies.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	sqlQuery := `
		SELECT e.id, e.module_id, e.kind, e.name, COALESCE(e.signature, ''), COALESCE(e.body, ''),
		       COALESCE(e.value, ''), e.position, e.created_at, e.updated_at,
		       m.name, rank
		FROM elements_fts
		JOIN elements e ON e.id = elements_fts.rowid
		JOIN modules  m ON m.id = e.module_id
		WHERE elements_fts MATCH ?
	`
	args := []any{sanitizeFTS(query)}

	if opts.Kind != "" {
		sqlQuery += " AND e.kind = ?"
		args = append(args, opts.Kind)
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, wrapTimeout("Search", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.ModuleID, &r.Kind, &r.Name, &r.Signature, &r.Body,
			&r.Value, &r.Position, &r.CreatedAt, &r.UpdatedAt, &r.ModuleName, &r.Rank); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats returns aggregate statistics over the store.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM modules),
		       (SELECT COUNT(*) FROM elements WHERE kind = 'function'),
		       (SELECT COUNT(*) FROM elements WHERE kind = 'type'),
		       (SELECT COUNT(*) FROM elements WHERE kind = 'constant'),
		       (SELECT COUNT(*) FROM edges),
		       (SELECT COUNT(*) FROM module_imports)
	`).Scan(&st.Modules, &st.Functions, &st.Types, &st.Constants, &st.Edges, &st.Imports)
	if err != nil {
		return nil, wrapTimeout("Stats", err)
	}
	return &st, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "render module file" → `"render" "module" "file"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.Trim(w, `"`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
