package model

// Task is one computation over a model state: the System plus the
// positional and keyword arguments the compute function will receive.
// The whole value must survive a JSON round trip so it can be shipped
// to worker processes.
type Task struct {
	System *System        `json:"system"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// System is the model state handed to the physics engine. The dispatch
// layer only cares about its synthetic datasets; everything else rides
// along opaquely in Params.
type System struct {
	Name   string         `json:"name"`
	Bodies []*Body        `json:"bodies"`
	Params map[string]any `json:"params,omitempty"`
}

// Body is one component of the system, carrying its synthetic datasets
// in a fixed order. Dataset order is significant: replicas are merged
// by walking primary and replica in lockstep.
type Body struct {
	Name string     `json:"name"`
	Syn  []*DataSet `json:"syn"`
}

// DataSet holds the synthetic output for one observational reference.
// Columns names the Series fields that are merge-eligible; Series not
// listed there, and all Scalars, are left alone when replicas are
// folded together.
type DataSet struct {
	Ref     string               `json:"ref"`
	Kind    string               `json:"kind"` // e.g. "lcsyn", "rvsyn", "orbsyn"
	Columns []string             `json:"columns"`
	Series  map[string][]float64 `json:"series"`
	Scalars map[string]float64   `json:"scalars,omitempty"`
}

// HasColumn reports whether name is a merge-eligible column.
func (d *DataSet) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// WalkSyn returns every synthetic dataset of the system in traversal
// order: bodies in declaration order, datasets in their stored order.
// This order defines the lockstep walk used by the merger.
func (s *System) WalkSyn() []*DataSet {
	var out []*DataSet
	for _, b := range s.Bodies {
		out = append(out, b.Syn...)
	}
	return out
}

// LTTRef is the reference under which light-travel-time placeholders
// are stored.
const LTTRef = "ltt"

// EnsureLTTPlaceholders adds an empty "orbsyn" dataset with ref "ltt"
// to every body that does not already carry one. Workers fill these in;
// without a structurally matching placeholder on the primary, their
// results could not be merged back.
func (s *System) EnsureLTTPlaceholders() {
	for _, b := range s.Bodies {
		found := false
		for _, d := range b.Syn {
			if d.Kind == "orbsyn" && d.Ref == LTTRef {
				found = true
				break
			}
		}
		if !found {
			b.Syn = append(b.Syn, &DataSet{
				Ref:     LTTRef,
				Kind:    "orbsyn",
				Columns: []string{"time", "delay"},
				Series:  map[string][]float64{"time": {}, "delay": {}},
			})
		}
	}
}

// WantsLTT reports whether the caller asked for light-travel-time
// synthetics via the "ltt" keyword argument.
func (t *Task) WantsLTT() bool {
	v, ok := t.Kwargs["ltt"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
