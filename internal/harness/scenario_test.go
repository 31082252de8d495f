package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "One relay, one launch"
hubs:
  - name: a
    kind: relay
    terminal: true
steps:
  - action: launch
    hub: a
    participants: [p1]
    expect: { error: NOT_FOUND }
assertions:
  - type: fact_count
    kind: hub.entered
    count: 0
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "minimal.yaml", minimalScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	require.Len(t, scenario.Hubs, 1)
	assert.Equal(t, "hub-a", scenario.Hubs[0].address())
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, []string{"p1"}, scenario.Steps[0].Participants)
	require.NotNil(t, scenario.Steps[0].Expect)
	assert.Equal(t, "NOT_FOUND", scenario.Steps[0].Expect.Error)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	base := func(hubs, steps, assertions string) string {
		return "name: x\ndescription: y\n" + hubs + steps + assertions
	}
	relay := "hubs:\n  - {name: a, kind: relay}\n"
	launch := "steps:\n  - {action: launch, hub: a}\n"
	count := "assertions:\n  - {type: fact_count, kind: hub.entered}\n"

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no name", "description: y\n" + relay + launch + count, "name is required"},
		{"no hubs", base("", launch, count), "hubs list is required"},
		{"no steps", base(relay, "", count), "steps list is required"},
		{"no assertions", base(relay, launch, ""), "assertions list is required"},
		{"bad hub name", base("hubs:\n  - {name: Hub A, kind: relay}\n", launch, count), "not a valid directory name"},
		{"duplicate hub", base("hubs:\n  - {name: a, kind: relay}\n  - {name: a, kind: queue}\n", launch, count), "duplicate hub"},
		{"unknown kind", base("hubs:\n  - {name: a, kind: router}\n", launch, count), "unknown kind"},
		{"late allowed", base("hubs:\n  - {name: a, kind: relay, allowed: [b]}\n  - {name: b, kind: relay}\n", launch, count), "declared earlier"},
		{"unknown next", base("hubs:\n  - {name: a, kind: relay, next: z}\n", launch, count), "unknown next hub"},
		{"bad interval", base("hubs:\n  - {name: a, kind: queue, interval: soon}\n", "steps:\n  - {action: join, hub: a}\n", count), "interval"},
		{"unknown edge hub", base(relay+"edges:\n  - {from: a, to: [z]}\n", launch, count), "edges[0]"},
		{"wrong kind", base(relay, "steps:\n  - {action: join, hub: a}\n", count), "is a relay, not a queue"},
		{"unknown action", base(relay, "steps:\n  - {action: teleport}\n", count), "unknown action"},
		{"connect without targets", base(relay, "steps:\n  - {action: connect, hub: a}\n", count), "targets list is required"},
		{"bad advance", base(relay, "steps:\n  - {action: advance, duration: later}\n", count), "duration"},
		{"dispatched on launch", base(relay, "steps:\n  - {action: launch, hub: a, expect: {dispatched: 1}}\n", count), "only applies to dispatch"},
		{"unknown assertion", base(relay, launch, "assertions:\n  - {type: vibes}\n"), "unknown assertion type"},
		{"order without kinds", base(relay, launch, "assertions:\n  - {type: fact_order}\n"), "kinds list is required"},
		{"members without railcar", base(relay, launch, "assertions:\n  - {type: members}\n"), "railcar is required"},
		{"queue length on relay", base(relay, launch, "assertions:\n  - {type: queue_length, hub: a}\n"), "not a queue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDir_FiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b_second.yaml", minimalScenario)
	writeScenario(t, dir, "a_first.yml", minimalScenario)
	writeScenario(t, dir, "notes.txt", "not a scenario")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	all, err := LoadDir(dir, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := LoadDir(dir, "b_*")
	require.NoError(t, err)
	assert.Len(t, some, 1)

	_, err = LoadDir(dir, "[")
	assert.ErrorContains(t, err, "bad filter")

	writeScenario(t, dir, "c_broken.yaml", "name: broken\n")
	_, err = LoadDir(dir, "")
	assert.ErrorContains(t, err, "c_broken.yaml")
}

func TestLoadDir_Testdata(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios", "")
	require.NoError(t, err)

	var names []string
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"four_hub_cycle", "hop_quota", "queue_dispatch", "railcars_and_fees", "relay_line"}, names)
}
