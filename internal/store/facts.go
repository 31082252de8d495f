package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/railyard/internal/ir"
)

// AppendFact assigns the next seq, computes the content-addressed id and
// writes the fact. Attributes are stored as canonical JSON.
func (t *Tx) AppendFact(flowToken, kind string, source ir.Address, attrs ir.Attrs) (ir.Fact, error) {
	if attrs == nil {
		attrs = ir.Attrs{}
	}

	var seq int64
	if err := t.queryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM facts`).Scan(&seq); err != nil {
		return ir.Fact{}, fmt.Errorf("append fact: next seq: %w", err)
	}

	id, err := ir.FactID(flowToken, kind, source, attrs, seq)
	if err != nil {
		return ir.Fact{}, fmt.Errorf("append fact: %w", err)
	}
	attrsJSON, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return ir.Fact{}, fmt.Errorf("append fact: %w", err)
	}

	_, err = t.exec(`
		INSERT INTO facts (seq, id, flow_token, kind, source, attrs)
		VALUES (?, ?, ?, ?, ?, ?)
	`, seq, id, flowToken, kind, string(source), string(attrsJSON))
	if err != nil {
		return ir.Fact{}, fmt.Errorf("append fact: %w", err)
	}

	return ir.Fact{
		Seq:       seq,
		ID:        id,
		FlowToken: flowToken,
		Kind:      kind,
		Source:    source,
		Attrs:     attrs,
	}, nil
}

// FactFilter narrows a fact query. Zero fields match everything.
type FactFilter struct {
	FlowToken string
	Kind      string
	Source    ir.Address
	AfterSeq  int64
	Limit     int
}

func (f FactFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.FlowToken != "" {
		clauses = append(clauses, "flow_token = ?")
		args = append(args, f.FlowToken)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, string(f.Source))
	}
	if f.AfterSeq > 0 {
		clauses = append(clauses, "seq > ?")
		args = append(args, f.AfterSeq)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Facts returns the facts matching f in seq order.
func (t *Tx) Facts(f FactFilter) ([]ir.Fact, error) {
	where, args := f.where()
	q := `SELECT seq, id, flow_token, kind, source, attrs FROM facts` + where + ` ORDER BY seq ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	facts := []ir.Fact{}
	for rows.Next() {
		var (
			fact      ir.Fact
			source    string
			attrsJSON string
		)
		if err := rows.Scan(&fact.Seq, &fact.ID, &fact.FlowToken, &fact.Kind, &source, &attrsJSON); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		fact.Source = ir.Address(source)
		if err := decodeAttrs(attrsJSON, &fact.Attrs); err != nil {
			return nil, fmt.Errorf("fact %d: %w", fact.Seq, err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

// CountFacts returns the number of facts matching f. Limit is ignored.
func (t *Tx) CountFacts(f FactFilter) (int, error) {
	where, args := f.where()
	var n int
	if err := t.queryRow(`SELECT COUNT(*) FROM facts`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}

// decodeAttrs reads canonical JSON back into Attrs. Numbers decode as
// json.Number to keep integers exact.
func decodeAttrs(data string, out *ir.Attrs) error {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("decode attrs: %w", err)
	}
	*out = ir.Attrs(m)
	return nil
}

// LastSeq returns the seq of the newest fact, or 0 for an empty log.
func (t *Tx) LastSeq() (int64, error) {
	var seq int64
	if err := t.queryRow(`SELECT COALESCE(MAX(seq), 0) FROM facts`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
