package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/railyard/internal/ir"
)

// Policy is a hub's administrator and authorization mode.
type Policy struct {
	Admin    ir.Address `json:"admin"`
	AllowAll bool       `json:"allow_all"`
}

// InitHubPolicy stores the construction-time policy for hub. A hub that
// already has a policy keeps it, so reopening a ledger does not reset
// administrative changes.
func (t *Tx) InitHubPolicy(hub ir.HubID, p Policy) error {
	_, err := t.exec(`INSERT OR IGNORE INTO hub_policy (hub_id, admin, allow_all) VALUES (?, ?, ?)`,
		int64(hub), string(p.Admin), boolInt(p.AllowAll))
	if err != nil {
		return fmt.Errorf("init hub policy: %w", err)
	}
	return nil
}

// HubPolicy returns hub's stored policy.
func (t *Tx) HubPolicy(hub ir.HubID) (Policy, bool, error) {
	var (
		admin    string
		allowAll int
	)
	err := t.queryRow(`SELECT admin, allow_all FROM hub_policy WHERE hub_id = ?`, int64(hub)).Scan(&admin, &allowAll)
	if errors.Is(err, sql.ErrNoRows) {
		return Policy{}, false, nil
	}
	if err != nil {
		return Policy{}, false, fmt.Errorf("hub policy: %w", err)
	}
	return Policy{Admin: ir.Address(admin), AllowAll: allowAll != 0}, true, nil
}

// SetAllowAll switches hub's blanket authorization.
func (t *Tx) SetAllowAll(hub ir.HubID, allow bool) error {
	if _, err := t.exec(`UPDATE hub_policy SET allow_all = ? WHERE hub_id = ?`, boolInt(allow), int64(hub)); err != nil {
		return fmt.Errorf("set allow all: %w", err)
	}
	return nil
}

// SetAllowedInput adds input to, or removes it from, hub's allow-set.
func (t *Tx) SetAllowedInput(hub, input ir.HubID, allowed bool) error {
	var err error
	if allowed {
		_, err = t.exec(`INSERT OR IGNORE INTO hub_allowed_inputs (hub_id, input_id) VALUES (?, ?)`, int64(hub), int64(input))
	} else {
		_, err = t.exec(`DELETE FROM hub_allowed_inputs WHERE hub_id = ? AND input_id = ?`, int64(hub), int64(input))
	}
	if err != nil {
		return fmt.Errorf("set allowed input: %w", err)
	}
	return nil
}

// InputAllowed reports whether input is in hub's explicit allow-set.
func (t *Tx) InputAllowed(hub, input ir.HubID) (bool, error) {
	var n int
	err := t.queryRow(`SELECT COUNT(*) FROM hub_allowed_inputs WHERE hub_id = ? AND input_id = ?`, int64(hub), int64(input)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("input allowed: %w", err)
	}
	return n > 0, nil
}

// edgeTable describes one side of a routing edge. Both sides share the same
// position bookkeeping so removal can swap the last element into the gap.
type edgeTable struct {
	table  string
	column string
}

var (
	outputsTable = edgeTable{table: "hub_outputs", column: "output_id"}
	inputsTable  = edgeTable{table: "hub_inputs", column: "input_id"}
)

func (t *Tx) edgeAppend(e edgeTable, hub, peer ir.HubID) error {
	var next int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE hub_id = ?`, e.table)
	if err := t.queryRow(q, int64(hub)).Scan(&next); err != nil {
		return fmt.Errorf("append %s: %w", e.table, err)
	}
	q = fmt.Sprintf(`INSERT INTO %s (hub_id, %s, position) VALUES (?, ?, ?)`, e.table, e.column)
	if _, err := t.exec(q, int64(hub), int64(peer), next); err != nil {
		return fmt.Errorf("append %s: %w", e.table, err)
	}
	return nil
}

// edgeRemove deletes peer from hub's side of the table by moving the last
// element into peer's position and shrinking by one.
func (t *Tx) edgeRemove(e edgeTable, hub, peer ir.HubID) (bool, error) {
	var pos int64
	q := fmt.Sprintf(`SELECT position FROM %s WHERE hub_id = ? AND %s = ?`, e.table, e.column)
	err := t.queryRow(q, int64(hub), int64(peer)).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", e.table, err)
	}

	q = fmt.Sprintf(`DELETE FROM %s WHERE hub_id = ? AND %s = ?`, e.table, e.column)
	if _, err := t.exec(q, int64(hub), int64(peer)); err != nil {
		return false, fmt.Errorf("remove %s: %w", e.table, err)
	}

	q = fmt.Sprintf(`UPDATE %s SET position = ? WHERE hub_id = ? AND position = (SELECT MAX(position) FROM %s WHERE hub_id = ?) AND position > ?`,
		e.table, e.table)
	if _, err := t.exec(q, pos, int64(hub), int64(hub), pos); err != nil {
		return false, fmt.Errorf("remove %s: %w", e.table, err)
	}
	return true, nil
}

func (t *Tx) edgeList(e edgeTable, hub ir.HubID) ([]ir.HubID, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE hub_id = ? ORDER BY position ASC`, e.column, e.table)
	rows, err := t.query(q, int64(hub))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", e.table, err)
	}
	defer rows.Close()

	ids := []ir.HubID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.table, err)
		}
		ids = append(ids, ir.HubID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", e.table, err)
	}
	return ids, nil
}

func (t *Tx) edgeHas(e edgeTable, hub, peer ir.HubID) (bool, error) {
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE hub_id = ? AND %s = ?`, e.table, e.column)
	if err := t.queryRow(q, int64(hub), int64(peer)).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup %s: %w", e.table, err)
	}
	return n > 0, nil
}

// AppendOutput adds out to hub's outputs.
func (t *Tx) AppendOutput(hub, out ir.HubID) error {
	return t.edgeAppend(outputsTable, hub, out)
}

// RemoveOutput removes out from hub's outputs, reporting whether it was present.
func (t *Tx) RemoveOutput(hub, out ir.HubID) (bool, error) {
	return t.edgeRemove(outputsTable, hub, out)
}

// Outputs lists hub's outputs in position order.
func (t *Tx) Outputs(hub ir.HubID) ([]ir.HubID, error) {
	return t.edgeList(outputsTable, hub)
}

// HasOutput reports whether out is one of hub's outputs.
func (t *Tx) HasOutput(hub, out ir.HubID) (bool, error) {
	return t.edgeHas(outputsTable, hub, out)
}

// AppendInput adds in to hub's inputs as an active edge.
func (t *Tx) AppendInput(hub, in ir.HubID) error {
	return t.edgeAppend(inputsTable, hub, in)
}

// RemoveInput removes in from hub's inputs, reporting whether it was present.
func (t *Tx) RemoveInput(hub, in ir.HubID) (bool, error) {
	return t.edgeRemove(inputsTable, hub, in)
}

// Inputs lists hub's inputs in position order.
func (t *Tx) Inputs(hub ir.HubID) ([]ir.HubID, error) {
	return t.edgeList(inputsTable, hub)
}

// HasInput reports whether in is one of hub's inputs.
func (t *Tx) HasInput(hub, in ir.HubID) (bool, error) {
	return t.edgeHas(inputsTable, hub, in)
}

// InputActive reports whether in is an active input of hub.
func (t *Tx) InputActive(hub, in ir.HubID) (bool, error) {
	var active int
	err := t.queryRow(`SELECT active FROM hub_inputs WHERE hub_id = ? AND input_id = ?`, int64(hub), int64(in)).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("input active: %w", err)
	}
	return active != 0, nil
}

// SetInputActive toggles whether deliveries from in are accepted.
func (t *Tx) SetInputActive(hub, in ir.HubID, active bool) (bool, error) {
	res, err := t.exec(`UPDATE hub_inputs SET active = ? WHERE hub_id = ? AND input_id = ?`, boolInt(active), int64(hub), int64(in))
	if err != nil {
		return false, fmt.Errorf("set input active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set input active: %w", err)
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
