package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/railyard/internal/ir"
)

// Entry is one directory record.
type Entry struct {
	ID      ir.HubID   `json:"id"`
	Address ir.Address `json:"address"`
	Name    string     `json:"name,omitempty"`
}

// InsertEntry registers address and returns its newly assigned id. Ids come
// from an AUTOINCREMENT key, so they start at 1 and are never reused.
func (t *Tx) InsertEntry(address ir.Address) (ir.HubID, error) {
	res, err := t.exec(`INSERT INTO directory_entries (address) VALUES (?)`, string(address))
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	return ir.HubID(id), nil
}

// EntryByAddress returns the id registered for address.
func (t *Tx) EntryByAddress(address ir.Address) (ir.HubID, bool, error) {
	var id int64
	err := t.queryRow(`SELECT id FROM directory_entries WHERE address = ? AND registered = 1`, string(address)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("entry by address: %w", err)
	}
	return ir.HubID(id), true, nil
}

// EntryByID returns the address registered under id.
func (t *Tx) EntryByID(id ir.HubID) (ir.Address, bool, error) {
	var address string
	err := t.queryRow(`SELECT address FROM directory_entries WHERE id = ? AND registered = 1`, int64(id)).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("entry by id: %w", err)
	}
	return ir.Address(address), true, nil
}

// CountEntries returns the number of registered entries, which equals the
// highest assigned id.
func (t *Tx) CountEntries() (uint64, error) {
	var n int64
	if err := t.queryRow(`SELECT COUNT(*) FROM directory_entries WHERE registered = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return uint64(n), nil
}

// EntriesRange returns the entries with start <= id <= end in id order.
func (t *Tx) EntriesRange(start, end ir.HubID) ([]Entry, error) {
	rows, err := t.query(`
		SELECT e.id, e.address, COALESCE(n.name, '')
		FROM directory_entries e
		LEFT JOIN directory_names n ON n.hub_id = e.id
		WHERE e.id BETWEEN ? AND ? AND e.registered = 1
		ORDER BY e.id ASC
	`, int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			id int64
			a  string
		)
		if err := rows.Scan(&id, &a, &e.Name); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.ID, e.Address = ir.HubID(id), ir.Address(a)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// InsertName binds name to id. The schema enforces both directions of
// uniqueness; callers check NameOwner and NameOf first to report which side
// conflicts.
func (t *Tx) InsertName(name string, id ir.HubID) error {
	if _, err := t.exec(`INSERT INTO directory_names (name, hub_id) VALUES (?, ?)`, name, int64(id)); err != nil {
		return fmt.Errorf("insert name: %w", err)
	}
	return nil
}

// NameOwner returns the id holding name.
func (t *Tx) NameOwner(name string) (ir.HubID, bool, error) {
	var id int64
	err := t.queryRow(`SELECT hub_id FROM directory_names WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("name owner: %w", err)
	}
	return ir.HubID(id), true, nil
}

// NameOf returns the name reserved for id.
func (t *Tx) NameOf(id ir.HubID) (string, bool, error) {
	var name string
	err := t.queryRow(`SELECT name FROM directory_names WHERE hub_id = ?`, int64(id)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("name of: %w", err)
	}
	return name, true, nil
}
