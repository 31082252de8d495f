package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/railyard/internal/ir"
)

// Railcar is a group record. Size is the current member count.
type Railcar struct {
	ID    ir.GroupID `json:"id"`
	Owner ir.Address `json:"owner"`
	Limit uint64     `json:"limit"`
	Size  uint64     `json:"size"`
}

// InsertRailcar allocates the next group id.
func (t *Tx) InsertRailcar(owner ir.Address, limit uint64) (ir.GroupID, error) {
	l, err := amount(limit)
	if err != nil {
		return 0, fmt.Errorf("insert railcar: %w", err)
	}
	res, err := t.exec(`INSERT INTO railcars (owner, max_size) VALUES (?, ?)`, string(owner), l)
	if err != nil {
		return 0, fmt.Errorf("insert railcar: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert railcar: %w", err)
	}
	return ir.GroupID(id), nil
}

// RailcarByID returns the group record for id.
func (t *Tx) RailcarByID(id ir.GroupID) (Railcar, bool, error) {
	var (
		owner string
		limit int64
		size  int64
	)
	err := t.queryRow(`
		SELECT r.owner, r.max_size, (SELECT COUNT(*) FROM railcar_members m WHERE m.railcar_id = r.id)
		FROM railcars r WHERE r.id = ?
	`, int64(id)).Scan(&owner, &limit, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return Railcar{}, false, nil
	}
	if err != nil {
		return Railcar{}, false, fmt.Errorf("railcar by id: %w", err)
	}
	return Railcar{ID: id, Owner: ir.Address(owner), Limit: uint64(limit), Size: uint64(size)}, true, nil
}

// CountRailcars returns the number of groups created, which equals the
// highest assigned id.
func (t *Tx) CountRailcars() (uint64, error) {
	var n int64
	if err := t.queryRow(`SELECT COUNT(*) FROM railcars`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count railcars: %w", err)
	}
	return uint64(n), nil
}

// AppendMember adds member at the end of group id's roster.
func (t *Tx) AppendMember(id ir.GroupID, member ir.Address) error {
	_, err := t.exec(`
		INSERT INTO railcar_members (railcar_id, member, position)
		VALUES (?, ?, (SELECT COUNT(*) FROM railcar_members WHERE railcar_id = ?))
	`, int64(id), string(member), int64(id))
	if err != nil {
		return fmt.Errorf("append member: %w", err)
	}
	return nil
}

// IsMember reports whether member belongs to group id.
func (t *Tx) IsMember(id ir.GroupID, member ir.Address) (bool, error) {
	var n int
	err := t.queryRow(`SELECT COUNT(*) FROM railcar_members WHERE railcar_id = ? AND member = ?`, int64(id), string(member)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return n > 0, nil
}

// Members returns group id's roster in join order.
func (t *Tx) Members(id ir.GroupID) ([]ir.Address, error) {
	rows, err := t.query(`SELECT member FROM railcar_members WHERE railcar_id = ? ORDER BY position ASC`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := []ir.Address{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, ir.Address(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// RailcarsByOwner returns the ids of groups created by owner, ascending.
func (t *Tx) RailcarsByOwner(owner ir.Address) ([]ir.GroupID, error) {
	return t.groupIDs(`SELECT id FROM railcars WHERE owner = ? ORDER BY id ASC`, string(owner))
}

// RailcarsByMember returns the ids of groups member has joined, ascending.
func (t *Tx) RailcarsByMember(member ir.Address) ([]ir.GroupID, error) {
	return t.groupIDs(`SELECT railcar_id FROM railcar_members WHERE member = ? ORDER BY railcar_id ASC`, string(member))
}

func (t *Tx) groupIDs(query string, args ...any) ([]ir.GroupID, error) {
	rows, err := t.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query railcars: %w", err)
	}
	defer rows.Close()

	ids := []ir.GroupID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan railcar: %w", err)
		}
		ids = append(ids, ir.GroupID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate railcars: %w", err)
	}
	return ids, nil
}
