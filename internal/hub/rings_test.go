package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/railyard/internal/ir"
	"github.com/roach88/railyard/internal/store"
)

func ids(v ...ir.HubID) []ir.HubID { return v }

func TestRings(t *testing.T) {
	tests := []struct {
		name  string
		graph Graph
		want  []Ring
	}{
		{
			name:  "line has no rings",
			graph: Graph{1: ids(2), 2: ids(3), 3: nil},
			want:  nil,
		},
		{
			name:  "four hub cycle",
			graph: Graph{1: ids(2), 2: ids(3), 3: ids(4), 4: ids(1)},
			want:  []Ring{{Members: ids(1, 2, 3, 4), Path: ids(1, 2, 3, 4, 1)}},
		},
		{
			name:  "self loop",
			graph: Graph{1: ids(1), 2: nil},
			want:  []Ring{{Members: ids(1), Path: ids(1, 1)}},
		},
		{
			name:  "two rings joined by a bridge",
			graph: Graph{1: ids(2), 2: ids(1, 3), 3: ids(4), 4: ids(3), 5: ids(1)},
			want: []Ring{
				{Members: ids(1, 2), Path: ids(1, 2, 1)},
				{Members: ids(3, 4), Path: ids(3, 4, 3)},
			},
		},
		{
			name:  "walk skips visited members",
			graph: Graph{1: ids(2), 2: ids(1, 3), 3: ids(2)},
			want:  []Ring{{Members: ids(1, 2, 3), Path: ids(1, 2, 1)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rings(tt.graph))
		})
	}
}

func TestLoadGraph(t *testing.T) {
	e := newEnv(t)
	a := e.hub("hub-a", Config{AllowAll: true}, nil)
	b := e.hub("hub-b", Config{AllowAll: true}, nil)
	c := e.hub("hub-c", Config{AllowAll: true}, nil)
	e.connect(a, b, c)
	e.connect(b, a)

	var g Graph
	e.f.View(func(tx *store.Tx) {
		var err error
		g, err = LoadGraph(tx)
		require.NoError(t, err)
	})

	assert.Equal(t, ids(b.ID(), c.ID()), g[a.ID()])
	assert.Equal(t, ids(a.ID()), g[b.ID()])
	assert.Empty(t, g[c.ID()])
	assert.Equal(t, []Ring{{Members: ids(a.ID(), b.ID()), Path: ids(a.ID(), b.ID(), a.ID())}}, Rings(g))
}
