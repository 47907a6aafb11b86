package workflow

import (
	"fmt"
	"strings"
)

// StageSpec declares one pipeline stage: the unit that computes it and
// the stages that must have succeeded before it may run.
type StageSpec struct {
	Name     string
	Unit     string
	Requires []string
}

// StageOrder is the canonical feasibility pipeline sequence.
var StageOrder = []string{"survey", "layout", "simulation", "report"}

var specs = map[string]StageSpec{
	"survey":     {Name: "survey", Unit: "survey"},
	"layout":     {Name: "layout", Unit: "layout", Requires: []string{"survey"}},
	"simulation": {Name: "simulation", Unit: "simulation", Requires: []string{"survey", "layout"}},
	"report":     {Name: "report", Unit: "report", Requires: []string{"survey"}},
}

// Spec returns the stage spec for a pipeline stage name.
func Spec(name string) (StageSpec, bool) {
	s, ok := specs[name]
	return s, ok
}

// MissingPrerequisiteError reports a stage requested before the stages
// it depends on have completed successfully. Nothing is invoked and
// nothing is persisted when this is returned.
type MissingPrerequisiteError struct {
	Stage   string
	Missing []string
}

func (e *MissingPrerequisiteError) Error() string {
	return fmt.Sprintf("stage %s requires %s to complete successfully first",
		e.Stage, strings.Join(e.Missing, ", "))
}
