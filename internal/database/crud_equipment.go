// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/meterline/internal/models"
)

// lookupChunkSize bounds the number of placeholders in one IN (...) or
// VALUES list.
const lookupChunkSize = 500

// EnsureEquipment inserts the reference if it is not stored yet and returns
// its id. The name of an existing row is never touched; a new row is named
// after its reference.
func (db *DB) EnsureEquipment(ctx context.Context, reference string) (id int64, err error) {
	start := time.Now()
	defer func() { observe("ensure", "equipment", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	err = db.withTx(ctx, "ensure equipment", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO equipment (reference, name) VALUES (?, ?) ON CONFLICT (reference) DO NOTHING`,
			reference, reference); err != nil {
			return fmt.Errorf("failed to insert equipment %q: %w", reference, err)
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM equipment WHERE reference = ?`, reference).Scan(&id)
	})
	return id, err
}

// GetEquipment returns the equipment stored under reference, or ErrNotFound.
func (db *DB) GetEquipment(ctx context.Context, reference string) (*models.Equipment, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var (
		e      models.Equipment
		parent sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, reference, name, parent FROM equipment WHERE reference = ?`, reference).
		Scan(&e.ID, &e.Reference, &e.Name, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("equipment %q: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get equipment %q: %w", reference, err)
	}
	if parent.Valid {
		e.Parent = &parent.Int64
	}
	return &e, nil
}

// ListEquipment returns every stored equipment ordered by reference.
func (db *DB) ListEquipment(ctx context.Context) (out []models.Equipment, err error) {
	start := time.Now()
	defer func() { observe("list", "equipment", start, err) }()

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, reference, name, parent FROM equipment ORDER BY reference`)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer closeWithLog(rows, "equipment rows")

	for rows.Next() {
		var (
			e      models.Equipment
			parent sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Reference, &e.Name, &parent); err != nil {
			return nil, fmt.Errorf("failed to scan equipment: %w", err)
		}
		if parent.Valid {
			p := parent.Int64
			e.Parent = &p
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListReferences returns every stored equipment reference in order.
func (db *DB) ListReferences(ctx context.Context) ([]string, error) {
	equipment, err := db.ListEquipment(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(equipment))
	for _, e := range equipment {
		refs = append(refs, e.Reference)
	}
	return refs, nil
}

// ListConnections returns every stored attachment pair.
func (db *DB) ListConnections(ctx context.Context) ([]models.EquipmentConnection, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT equipment, equipment_connection FROM equipment_connection ORDER BY equipment, equipment_connection`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer closeWithLog(rows, "connection rows")

	var out []models.EquipmentConnection
	for rows.Next() {
		var c models.EquipmentConnection
		if err := rows.Scan(&c.Equipment, &c.EquipmentConnection); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadGraph returns the node and edge rows the graph resolver is built from.
func (db *DB) LoadGraph(ctx context.Context) ([]models.Equipment, []models.EquipmentConnection, error) {
	equipment, err := db.ListEquipment(ctx)
	if err != nil {
		return nil, nil, err
	}
	connections, err := db.ListConnections(ctx)
	if err != nil {
		return nil, nil, err
	}
	return equipment, connections, nil
}

// GraphImport is one bulk load of the equipment graph.
type GraphImport struct {
	// Equipment rows to insert; existing references keep their stored name.
	Equipment []models.Equipment
	// Parents maps a child reference to its parent reference. An empty or
	// unknown parent reference clears the stored parent.
	Parents map[string]string
	// Endpoints are the references whose ids Connect needs.
	Endpoints []string
	// Connect receives the ids of the endpoints found in the store and
	// returns the attachment pairs to insert. It runs inside the import
	// transaction, after equipment and parents are written.
	Connect func(ids map[string]int64) []models.EquipmentConnection
}

// GraphImportResult counts what a GraphImport changed.
type GraphImportResult struct {
	EquipmentInserted   int
	ParentsSet          int
	ParentsCleared      int
	ConnectionsInserted int
}

// ImportGraph writes equipment, parent links and attachments in a single
// transaction. Nothing is written if any step fails.
func (db *DB) ImportGraph(ctx context.Context, in GraphImport) (res GraphImportResult, err error) {
	start := time.Now()
	defer func() { observe("import", "equipment", start, err) }()

	err = db.withTx(ctx, "import graph", func(tx *sql.Tx) error {
		res = GraphImportResult{}

		inserted, err := upsertEquipment(ctx, tx, in.Equipment)
		if err != nil {
			return err
		}
		res.EquipmentInserted = inserted

		set, cleared, err := updateParents(ctx, tx, in.Parents)
		if err != nil {
			return err
		}
		res.ParentsSet = set
		res.ParentsCleared = cleared

		if in.Connect == nil {
			return nil
		}
		ids, err := lookupIDs(ctx, tx, in.Endpoints)
		if err != nil {
			return err
		}
		connected, err := insertConnections(ctx, tx, in.Connect(ids))
		if err != nil {
			return err
		}
		res.ConnectionsInserted = connected
		return nil
	})
	return res, err
}

func countRows(ctx context.Context, tx *sql.Tx, table string) (int, error) {
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func upsertEquipment(ctx context.Context, tx *sql.Tx, equipment []models.Equipment) (int, error) {
	if len(equipment) == 0 {
		return 0, nil
	}
	before, err := countRows(ctx, tx, "equipment")
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO equipment (reference, name) VALUES (?, ?) ON CONFLICT (reference) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare equipment insert: %w", err)
	}
	defer closeWithLog(stmt, "equipment insert statement")

	for _, e := range equipment {
		name := e.Name
		if name == "" {
			name = e.Reference
		}
		if _, err := stmt.ExecContext(ctx, e.Reference, name); err != nil {
			return 0, fmt.Errorf("failed to insert equipment %q: %w", e.Reference, err)
		}
	}

	after, err := countRows(ctx, tx, "equipment")
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// updateParents writes parent ids in bulk, keyed by child reference. A child
// whose parent reference is empty or not stored gets a NULL parent. Children
// that are not stored are ignored. It returns the number of parents set and
// the number of stored parents cleared.
func updateParents(ctx context.Context, tx *sql.Tx, parents map[string]string) (set, cleared int, err error) {
	if len(parents) == 0 {
		return 0, 0, nil
	}
	children := make([]string, 0, len(parents))
	for child := range parents {
		children = append(children, child)
	}
	sort.Strings(children)

	for lo := 0; lo < len(children); lo += lookupChunkSize {
		hi := min(lo+lookupChunkSize, len(children))
		chunk := children[lo:hi]

		values := make([]string, len(chunk))
		args := make([]interface{}, 0, 2*len(chunk))
		for i, child := range chunk {
			values[i] = "(?, ?)"
			args = append(args, child, parents[child])
		}
		links := `SELECT v.child, p.id AS parent_id
				FROM (VALUES ` + strings.Join(values, ", ") + `) AS v(child, parent_reference)
				LEFT JOIN equipment AS p ON p.reference = v.parent_reference`

		n, err := execCount(ctx, tx, `UPDATE equipment SET parent = link.parent_id
			FROM (`+links+`) AS link
			WHERE equipment.reference = link.child AND link.parent_id IS NOT NULL`, args...)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to update parents: %w", err)
		}
		set += n

		n, err = execCount(ctx, tx, `UPDATE equipment SET parent = NULL
			FROM (`+links+`) AS link
			WHERE equipment.reference = link.child AND link.parent_id IS NULL
				AND equipment.parent IS NOT NULL`, args...)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to clear parents: %w", err)
		}
		cleared += n
	}
	return set, cleared, nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (int, error) {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}

// lookupIDs resolves references to equipment ids with one query per chunk.
// References that are not stored are absent from the result.
func lookupIDs(ctx context.Context, tx *sql.Tx, references []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(references))
	for lo := 0; lo < len(references); lo += lookupChunkSize {
		hi := min(lo+lookupChunkSize, len(references))
		chunk := references[lo:hi]

		args := make([]interface{}, len(chunk))
		for i, r := range chunk {
			args[i] = r
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ")

		rows, err := tx.QueryContext(ctx,
			`SELECT reference, id FROM equipment WHERE reference IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up equipment ids: %w", err)
		}
		for rows.Next() {
			var (
				ref string
				id  int64
			)
			if err := rows.Scan(&ref, &id); err != nil {
				closeQuietly(rows)
				return nil, fmt.Errorf("failed to scan equipment id: %w", err)
			}
			ids[ref] = id
		}
		err = rows.Err()
		closeQuietly(rows)
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func insertConnections(ctx context.Context, tx *sql.Tx, pairs []models.EquipmentConnection) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	before, err := countRows(ctx, tx, "equipment_connection")
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO equipment_connection (equipment, equipment_connection) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare connection insert: %w", err)
	}
	defer closeWithLog(stmt, "connection insert statement")

	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, p.Equipment, p.EquipmentConnection); err != nil {
			return 0, fmt.Errorf("failed to insert connection %d-%d: %w", p.Equipment, p.EquipmentConnection, err)
		}
	}

	after, err := countRows(ctx, tx, "equipment_connection")
	if err != nil {
		return 0, err
	}
	return after - before, nil
}
