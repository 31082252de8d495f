package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/railyard/internal/ir"
)

// LoopState is the scheduler handshake state of one hub. A zero
// LastDispatch means the hub has never dispatched.
type LoopState struct {
	Generation   uint64        `json:"generation"`
	LastDispatch time.Time     `json:"last_dispatch"`
	Interval     time.Duration `json:"interval"`
}

// InitLoopState creates hub's loop row with generation 0. An existing row
// keeps its generation and timestamp; only the interval is updated.
func (t *Tx) InitLoopState(hub ir.HubID, interval time.Duration) error {
	_, err := t.exec(`
		INSERT INTO loop_state (hub_id, generation, last_dispatch, interval_ns) VALUES (?, 0, 0, ?)
		ON CONFLICT(hub_id) DO UPDATE SET interval_ns = excluded.interval_ns
	`, int64(hub), int64(interval))
	if err != nil {
		return fmt.Errorf("init loop state: %w", err)
	}
	return nil
}

// LoopStateOf returns hub's loop state.
func (t *Tx) LoopStateOf(hub ir.HubID) (LoopState, bool, error) {
	var gen, last, interval int64
	err := t.queryRow(`SELECT generation, last_dispatch, interval_ns FROM loop_state WHERE hub_id = ?`, int64(hub)).
		Scan(&gen, &last, &interval)
	if errors.Is(err, sql.ErrNoRows) {
		return LoopState{}, false, nil
	}
	if err != nil {
		return LoopState{}, false, fmt.Errorf("loop state: %w", err)
	}
	st := LoopState{Generation: uint64(gen), Interval: time.Duration(interval)}
	if last != 0 {
		st.LastDispatch = time.Unix(0, last).UTC()
	}
	return st, true, nil
}

// AdvanceLoop moves hub from generation from to from+1 and stamps the
// dispatch time. It reports false when the stored generation is not from.
func (t *Tx) AdvanceLoop(hub ir.HubID, from uint64, at time.Time) (bool, error) {
	res, err := t.exec(`
		UPDATE loop_state SET generation = generation + 1, last_dispatch = ?
		WHERE hub_id = ? AND generation = ?
	`, at.UnixNano(), int64(hub), int64(from))
	if err != nil {
		return false, fmt.Errorf("advance loop: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance loop: %w", err)
	}
	return n == 1, nil
}

// Enqueue appends participant to hub's queue.
func (t *Tx) Enqueue(hub ir.HubID, participant ir.Address) error {
	if _, err := t.exec(`INSERT INTO hub_queues (hub_id, participant) VALUES (?, ?)`, int64(hub), string(participant)); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// QueueLen returns the number of participants waiting at hub.
func (t *Tx) QueueLen(hub ir.HubID) (int, error) {
	var n int
	if err := t.queryRow(`SELECT COUNT(*) FROM hub_queues WHERE hub_id = ?`, int64(hub)).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// DrainQueue removes and returns up to max participants from the head of
// hub's queue in FIFO order. max <= 0 drains everything.
func (t *Tx) DrainQueue(hub ir.HubID, max int) ([]ir.Address, error) {
	limit := -1
	if max > 0 {
		limit = max
	}
	rows, err := t.query(`SELECT seq, participant FROM hub_queues WHERE hub_id = ? ORDER BY seq ASC LIMIT ?`, int64(hub), limit)
	if err != nil {
		return nil, fmt.Errorf("drain queue: %w", err)
	}

	var (
		seqs []int64
		out  = []ir.Address{}
	)
	for rows.Next() {
		var (
			seq int64
			p   string
		)
		if err := rows.Scan(&seq, &p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		seqs = append(seqs, seq)
		out = append(out, ir.Address(p))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate queue: %w", err)
	}
	rows.Close()

	if len(seqs) > 0 {
		last := seqs[len(seqs)-1]
		if _, err := t.exec(`DELETE FROM hub_queues WHERE hub_id = ? AND seq <= ?`, int64(hub), last); err != nil {
			return nil, fmt.Errorf("drain queue: %w", err)
		}
	}
	return out, nil
}
