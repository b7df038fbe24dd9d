package index

import "github.com/aleksaelezovic/trindex/pkg/rdf"

// Op is the kind of an index update
type Op int

const (
	OpAdd Op = iota
	OpRemove
)

func (o Op) String() string {
	if o == OpRemove {
		return "remove"
	}
	return "add"
}

// Action is one queued add or remove of a triple
type Action struct {
	Triple   rdf.Triple
	IsDelete bool
}

func (a Action) Op() Op {
	if a.IsDelete {
		return OpRemove
	}
	return OpAdd
}

func newActions(ts []rdf.Triple, isDelete bool) []Action {
	actions := make([]Action, len(ts))
	for i, t := range ts {
		actions[i] = Action{Triple: t, IsDelete: isDelete}
	}
	return actions
}
