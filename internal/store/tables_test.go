package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/railyard/internal/ir"
)

func TestEntries_SequentialIDs(t *testing.T) {
	s := createTestStore(t)

	withTx(t, s, func(tx *Tx) {
		for i, addr := range []ir.Address{"a", "b", "c"} {
			id, err := tx.InsertEntry(addr)
			require.NoError(t, err)
			assert.Equal(t, ir.HubID(i+1), id)
		}

		_, err := tx.InsertEntry("a")
		assert.Error(t, err, "address is unique")

		id, ok, err := tx.EntryByAddress("b")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ir.HubID(2), id)

		addr, ok, err := tx.EntryByID(3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, ir.Address("c"), addr)

		_, ok, err = tx.EntryByID(4)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestEntries_RangeIncludesNames(t *testing.T) {
	s := createTestStore(t)

	withTx(t, s, func(tx *Tx) {
		for _, addr := range []ir.Address{"a", "b", "c"} {
			_, err := tx.InsertEntry(addr)
			require.NoError(t, err)
		}
		require.NoError(t, tx.InsertName("bravo", 2))
		assert.Error(t, tx.InsertName("bravo", 3), "name is unique")
		assert.Error(t, tx.InsertName("other", 2), "id holds one name")

		entries, err := tx.EntriesRange(2, 100)
		require.NoError(t, err)
		assert.Equal(t, []Entry{{ID: 2, Address: "b", Name: "bravo"}, {ID: 3, Address: "c"}}, entries)
	})
}

func TestAccounts(t *testing.T) {
	s := createTestStore(t)

	withTx(t, s, func(tx *Tx) {
		fee, err := tx.Setting("directory", "registration_fee", 7)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), fee, "default when unset")

		require.NoError(t, tx.PutSetting("directory", "registration_fee", 10))
		fee, err = tx.Setting("directory", "registration_fee", 7)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), fee)

		require.NoError(t, tx.Credit("dir", 5))
		require.NoError(t, tx.Credit("dir", 3))
		bal, err := tx.Balance("dir")
		require.NoError(t, err)
		assert.Equal(t, uint64(8), bal)

		taken, err := tx.TakeBalance("dir")
		require.NoError(t, err)
		assert.Equal(t, uint64(8), taken)
		bal, err = tx.Balance("dir")
		require.NoError(t, err)
		assert.Zero(t, bal)

		assert.Error(t, tx.Credit("dir", 1<<63))

		require.NoError(t, tx.Credit("queue", 5))
		require.NoError(t, tx.Debit("queue", 2))
		assert.ErrorIs(t, tx.Debit("queue", 4), ErrInsufficientFunds)
		bal, err = tx.Balance("queue")
		require.NoError(t, err)
		assert.Equal(t, uint64(3), bal)

		require.NoError(t, tx.GrantCapability("hub-a", ir.CapabilityHub))
		require.NoError(t, tx.GrantCapability("hub-a", ir.CapabilityHub))
		ok, err := tx.HasCapability("hub-a", ir.CapabilityHub)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = tx.HasCapability("user", ir.CapabilityHub)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestEdges_SwapAndPop(t *testing.T) {
	s := createTestStore(t)

	withTx(t, s, func(tx *Tx) {
		for _, addr := range []ir.Address{"a", "b", "c", "d"} {
			_, err := tx.InsertEntry(addr)
			require.NoError(t, err)
		}
		for _, out := range []ir.HubID{2, 3, 4} {
			require.NoError(t, tx.AppendOutput(1, out))
		}

		removed, err := tx.RemoveOutput(1, 2)
		require.NoError(t, err)
		assert.True(t, removed)

		outs, err := tx.Outputs(1)
		require.NoError(t, err)
		assert.Equal(t, []ir.HubID{4, 3}, outs, "last element moves into the gap")

		removed, err = tx.RemoveOutput(1, 2)
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = tx.RemoveOutput(1, 3)
		require.NoError(t, err)
		assert.True(t, removed)
		require.NoError(t, tx.AppendOutput(1, 2))
		outs, err = tx.Outputs(1)
		require.NoError(t, err)
		assert.Equal(t, []ir.HubID{4, 2}, outs)
	})
}

func TestEdges_InputsAndPolicy(t *testing.T) {
	s := createTestStore(t)

	withTx(t, s, func(tx *Tx) {
		for _, addr := range []ir.Address{"a", "b"} {
			_, err := tx.InsertEntry(addr)
			require.NoError(t, err)
		}
		require.NoError(t, tx.AppendInput(2, 1))
		assert.Error(t, tx.AppendInput(2, 1), "edge is unique")

		active, err := tx.InputActive(2, 1)
		require.NoError(t, err)
		assert.True(t, active)

		ok, err := tx.SetInputActive(2, 1, false)
		require.NoError(t, err)
		assert.True(t, ok)
		active, err = tx.InputActive(2, 1)
		require.NoError(t, err)
		assert.False(t, active)

		require.NoError(t, tx.InitHubPolicy(2, Policy{Admin: "admin", AllowAll: false}))
		require.NoError(t, tx.InitHubPolicy(2, Policy{Admin: "other", AllowAll: true}))
		p, ok, err := tx.HubPolicy(2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Policy{Admin: "admin"}, p, "first policy wins")

		require.NoError(t, tx.SetAllowedInput(2, 1, true))
		allowed, err := tx.InputAllowed(2, 1)
		require.NoError(t, err)
		assert.True(t, allowed)
		require.NoError(t, tx.SetAllowedInput(2, 1, false))
		allowed, err = tx.InputAllowed(2, 1)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestRailcars(t *testing.T) {
	s := createTestStore(t)

	withTx(t, s, func(tx *Tx) {
		id, err := tx.InsertRailcar("owner", 3)
		require.NoError(t, err)
		assert.Equal(t, ir.GroupID(1), id)

		_, err = tx.InsertRailcar("owner", 0)
		assert.Error(t, err, "limit must be positive")

		for _, m := range []ir.Address{"x", "y"} {
			require.NoError(t, tx.AppendMember(id, m))
		}
		assert.Error(t, tx.AppendMember(id, "x"))

		rc, ok, err := tx.RailcarByID(id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, Railcar{ID: 1, Owner: "owner", Limit: 3, Size: 2}, rc)

		members, err := tx.Members(id)
		require.NoError(t, err)
		assert.Equal(t, []ir.Address{"x", "y"}, members)

		owned, err := tx.RailcarsByOwner("owner")
		require.NoError(t, err)
		assert.Equal(t, []ir.GroupID{1}, owned)

		joined, err := tx.RailcarsByMember("y")
		require.NoError(t, err)
		assert.Equal(t, []ir.GroupID{1}, joined)
	})
}

func TestLoopStateAndQueue(t *testing.T) {
	s := createTestStore(t)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	withTx(t, s, func(tx *Tx) {
		_, err := tx.InsertEntry("q")
		require.NoError(t, err)
		require.NoError(t, tx.InitLoopState(1, time.Minute))

		st, ok, err := tx.LoopStateOf(1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, LoopState{Interval: time.Minute}, st)

		advanced, err := tx.AdvanceLoop(1, 0, at)
		require.NoError(t, err)
		assert.True(t, advanced)
		advanced, err = tx.AdvanceLoop(1, 0, at)
		require.NoError(t, err)
		assert.False(t, advanced, "generation 0 is gone")

		require.NoError(t, tx.InitLoopState(1, time.Hour))
		st, _, err = tx.LoopStateOf(1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), st.Generation)
		assert.True(t, st.LastDispatch.Equal(at))
		assert.Equal(t, time.Hour, st.Interval)

		for _, p := range []ir.Address{"p1", "p2", "p3"} {
			require.NoError(t, tx.Enqueue(1, p))
		}
		got, err := tx.DrainQueue(1, 2)
		require.NoError(t, err)
		assert.Equal(t, []ir.Address{"p1", "p2"}, got)

		n, err := tx.QueueLen(1)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err = tx.DrainQueue(1, 0)
		require.NoError(t, err)
		assert.Equal(t, []ir.Address{"p3"}, got)
	})
}

func TestFacts_AppendAndFilter(t *testing.T) {
	s := createTestStore(t)

	withTx(t, s, func(tx *Tx) {
		f1, err := tx.AppendFact("flow-1", ir.KindEntered, "hub-a", ir.Attrs{"participant": "p1", "hub_id": ir.HubID(1)})
		require.NoError(t, err)
		assert.Equal(t, int64(1), f1.Seq)
		assert.Len(t, f1.ID, 64)

		_, err = tx.AppendFact("flow-1", ir.KindExited, "hub-a", nil)
		require.NoError(t, err)
		_, err = tx.AppendFact("flow-2", ir.KindEntered, "hub-b", nil)
		require.NoError(t, err)

		_, err = tx.AppendFact("flow-2", ir.KindEntered, "hub-b", ir.Attrs{"bad": 0.1})
		assert.Error(t, err)

		facts, err := tx.Facts(FactFilter{FlowToken: "flow-1"})
		require.NoError(t, err)
		require.Len(t, facts, 2)
		assert.Equal(t, f1.ID, facts[0].ID)
		assert.Equal(t, json.Number("1"), facts[0].Attrs["hub_id"])
		assert.Equal(t, "p1", facts[0].Attrs["participant"])

		n, err := tx.CountFacts(FactFilter{Kind: ir.KindEntered})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		facts, err = tx.Facts(FactFilter{AfterSeq: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, facts, 1)
		assert.Equal(t, int64(2), facts[0].Seq)

		n, err = tx.CountFacts(FactFilter{Source: "hub-b"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		last, err := tx.LastSeq()
		require.NoError(t, err)
		assert.Equal(t, int64(3), last)
	})
}
