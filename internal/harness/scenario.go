package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/railyard/internal/directory"
)

// Scenario describes a yard of hubs, the steps driven through it, and what
// the resulting fact log and ledger must look like.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fees are set by the directory and registry admins before any hub is
	// built.
	Fees Fees `yaml:"fees,omitempty"`

	// MaxHops overrides the engine hop quota. Zero keeps the default.
	MaxHops int `yaml:"max_hops,omitempty"`

	// Hubs are built in order, one chain each. A hub's directory name is
	// its key in the scenario.
	Hubs []HubSpec `yaml:"hubs"`

	// Edges are added after every hub exists.
	Edges []EdgeSpec `yaml:"edges,omitempty"`

	// Steps are run in order, one or more chains each. Facts emitted by
	// setup are not part of the trace.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final ledger.
	Assertions []Assertion `yaml:"assertions"`
}

// Fees configures the payment minimums of the core.
type Fees struct {
	Registration uint64 `yaml:"registration,omitempty"`
	Naming       uint64 `yaml:"naming,omitempty"`
	Creation     uint64 `yaml:"creation,omitempty"`
}

// Hub kinds.
const (
	KindRelay = "relay"
	KindQueue = "queue"
)

// HubSpec declares one reference hub.
type HubSpec struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Address string `yaml:"address,omitempty"` // defaults to "hub-<name>"
	Admin   string `yaml:"admin,omitempty"`   // defaults to the deployer

	AllowAll bool     `yaml:"allow_all,omitempty"`
	Allowed  []string `yaml:"allowed,omitempty"` // earlier hubs only

	// Next is the name of the hub arrivals go to. Empty means the first
	// output.
	Next string `yaml:"next,omitempty"`

	// relay
	Terminal  bool   `yaml:"terminal,omitempty"`
	LaunchFee uint64 `yaml:"launch_fee,omitempty"`

	// queue
	Interval string `yaml:"interval,omitempty"`
	JoinFee  uint64 `yaml:"join_fee,omitempty"`
	Batch    int    `yaml:"batch,omitempty"`
}

// address returns the hub's ledger identity.
func (h HubSpec) address() string {
	if h.Address != "" {
		return h.Address
	}
	return "hub-" + h.Name
}

// EdgeSpec adds from → each of to.
type EdgeSpec struct {
	From string   `yaml:"from"`
	To   []string `yaml:"to"`
}

// Step actions.
const (
	ActionLaunch        = "launch"
	ActionJoin          = "join"
	ActionDispatch      = "dispatch"
	ActionAdvance       = "advance"
	ActionConnect       = "connect"
	ActionDisconnect    = "disconnect"
	ActionAllowAll      = "allow_all"
	ActionSetInput      = "set_input_active"
	ActionCreateRailcar = "create_railcar"
	ActionJoinRailcar   = "join_railcar"
	ActionWithdraw      = "withdraw"
)

// Step is one action against the yard. Which fields apply depends on Action.
type Step struct {
	Action string `yaml:"action"`

	// Hub is the scenario name of the hub acted on.
	Hub string `yaml:"hub,omitempty"`

	// Caller is the external identity of the chain. Defaults to the
	// deployer.
	Caller string `yaml:"caller,omitempty"`

	// Value is the payment accompanying the call.
	Value uint64 `yaml:"value,omitempty"`

	Participants []string `yaml:"participants,omitempty"` // launch
	Targets      []string `yaml:"targets,omitempty"`      // connect, disconnect, set_input_active
	Allow        bool     `yaml:"allow,omitempty"`        // allow_all, set_input_active
	Duration     string   `yaml:"duration,omitempty"`     // advance
	Limit        uint64   `yaml:"limit,omitempty"`        // create_railcar
	Railcar      uint64   `yaml:"railcar,omitempty"`      // join_railcar
	To           string   `yaml:"to,omitempty"`           // withdraw
	Drivers      int      `yaml:"drivers,omitempty"`      // dispatch, defaults to 1

	// Expect describes the outcome. Nil means the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error code, e.g. NOT_AUTHORIZED.
	Error string `yaml:"error,omitempty"`

	// Kind is the expected error kind, e.g. Payment.
	Kind string `yaml:"kind,omitempty"`

	// Dispatched is the number of drivers expected to dispatch.
	Dispatched *int `yaml:"dispatched,omitempty"`
}

func (e *ExpectClause) failure() bool {
	return e != nil && (e.Error != "" || e.Kind != "")
}

// Assertion validates the trace or the final ledger.
type Assertion struct {
	// Type selects the check:
	//   - "fact_count": facts of Kind (from Source, if set) appear Count times
	//   - "fact_order": the first fact of each of Kinds appears in order
	//   - "fact_contains": some fact of Kind from Source carries Attrs
	//   - "balance": Account holds Amount
	//   - "members": railcar Railcar seats exactly Members, in order
	//   - "edges": Hub's outputs and inputs are exactly Outputs and Inputs
	//   - "queue_length": Hub has Count waiting participants
	Type string `yaml:"type"`

	Kind   string         `yaml:"kind,omitempty"`
	Kinds  []string       `yaml:"kinds,omitempty"`
	Source string         `yaml:"source,omitempty"`
	Attrs  map[string]any `yaml:"attrs,omitempty"`
	Count  int            `yaml:"count,omitempty"`

	Account string `yaml:"account,omitempty"`
	Amount  uint64 `yaml:"amount,omitempty"`

	Railcar uint64   `yaml:"railcar,omitempty"`
	Members []string `yaml:"members,omitempty"`

	Hub     string   `yaml:"hub,omitempty"`
	Outputs []string `yaml:"outputs,omitempty"`
	Inputs  []string `yaml:"inputs,omitempty"`
}

// Assertion type constants.
const (
	AssertFactCount    = "fact_count"
	AssertFactOrder    = "fact_order"
	AssertFactContains = "fact_contains"
	AssertBalance      = "balance"
	AssertMembers      = "members"
	AssertEdges        = "edges"
	AssertQueueLength  = "queue_length"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir whose file name matches the
// glob filter (empty matches all), sorted by file name.
func LoadDir(dir, filter string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			ok, err := filepath.Match(filter, name)
			if err != nil {
				return nil, fmt.Errorf("bad filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and that every
// hub reference resolves.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Hubs) == 0 {
		return fmt.Errorf("hubs list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	kinds := make(map[string]string, len(s.Hubs))
	for i, h := range s.Hubs {
		if !directory.ValidName(h.Name) {
			return fmt.Errorf("hubs[%d]: name %q is not a valid directory name", i, h.Name)
		}
		if _, dup := kinds[h.Name]; dup {
			return fmt.Errorf("hubs[%d]: duplicate hub %q", i, h.Name)
		}
		switch h.Kind {
		case KindRelay:
		case KindQueue:
			if h.Interval != "" {
				if _, err := time.ParseDuration(h.Interval); err != nil {
					return fmt.Errorf("hubs[%d]: interval: %w", i, err)
				}
			}
		default:
			return fmt.Errorf("hubs[%d]: unknown kind %q", i, h.Kind)
		}
		for _, a := range h.Allowed {
			if _, ok := kinds[a]; !ok {
				return fmt.Errorf("hubs[%d]: allowed hub %q must be declared earlier", i, a)
			}
		}
		kinds[h.Name] = h.Kind
	}
	for i, h := range s.Hubs {
		if h.Next != "" {
			if _, ok := kinds[h.Next]; !ok {
				return fmt.Errorf("hubs[%d]: unknown next hub %q", i, h.Next)
			}
		}
	}

	for i, e := range s.Edges {
		if err := requireHubs(kinds, append([]string{e.From}, e.To...)...); err != nil {
			return fmt.Errorf("edges[%d]: %w", i, err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(kinds, step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(kinds, a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func requireHubs(kinds map[string]string, names ...string) error {
	for _, n := range names {
		if _, ok := kinds[n]; !ok {
			return fmt.Errorf("unknown hub %q", n)
		}
	}
	return nil
}

func requireKind(kinds map[string]string, name, kind string) error {
	if err := requireHubs(kinds, name); err != nil {
		return err
	}
	if kinds[name] != kind {
		return fmt.Errorf("hub %q is a %s, not a %s", name, kinds[name], kind)
	}
	return nil
}

func validateStep(kinds map[string]string, step Step) error {
	switch step.Action {
	case ActionLaunch:
		if err := requireKind(kinds, step.Hub, KindRelay); err != nil {
			return err
		}
	case ActionJoin, ActionDispatch:
		if err := requireKind(kinds, step.Hub, KindQueue); err != nil {
			return err
		}
		if step.Drivers < 0 {
			return fmt.Errorf("drivers must be non-negative")
		}
	case ActionAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
	case ActionConnect, ActionDisconnect, ActionSetInput:
		if len(step.Targets) == 0 {
			return fmt.Errorf("targets list is required for %s", step.Action)
		}
		if err := requireHubs(kinds, append([]string{step.Hub}, step.Targets...)...); err != nil {
			return err
		}
	case ActionAllowAll, ActionWithdraw:
		if err := requireHubs(kinds, step.Hub); err != nil {
			return err
		}
	case ActionCreateRailcar, ActionJoinRailcar:
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	if step.Expect != nil && step.Expect.Dispatched != nil && step.Action != ActionDispatch {
		return fmt.Errorf("expect.dispatched only applies to dispatch")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(kinds map[string]string, a Assertion) error {
	switch a.Type {
	case AssertFactCount, AssertFactContains:
		if a.Kind == "" {
			return fmt.Errorf("kind is required for %s", a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case AssertFactOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("kinds list is required for fact_order")
		}
	case AssertBalance:
		if a.Account == "" {
			return fmt.Errorf("account is required for balance")
		}
	case AssertMembers:
		if a.Railcar == 0 {
			return fmt.Errorf("railcar is required for members")
		}
	case AssertEdges:
		if err := requireHubs(kinds, append(append([]string{a.Hub}, a.Outputs...), a.Inputs...)...); err != nil {
			return err
		}
	case AssertQueueLength:
		if err := requireKind(kinds, a.Hub, KindQueue); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
