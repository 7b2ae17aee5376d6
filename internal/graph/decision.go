package graph

import (
	"encoding/json"
	"strings"

	"github.com/rendis/timeline/pkg/schema"
)

// DecisionOption is one branch of a decision point.
type DecisionOption struct {
	ActionID string `json:"actionId"`
	Label    string `json:"label"`
}

// DecisionSpec carries the construction-time inputs of a decision point.
type DecisionSpec struct {
	ID          string
	Name        string
	Description string
	X, Y        float64
	Options     []DecisionOption
}

// DecisionPoint is a branching gate resolved by an external actor.
type DecisionPoint struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	X              float64               `json:"x"`
	Y              float64               `json:"y"`
	Options        []DecisionOption      `json:"options"`
	Status         schema.DecisionStatus `json:"status"`
	SelectedOption *string               `json:"selectedOption"`
}

func defaultDecision() DecisionPoint {
	return DecisionPoint{
		Options: []DecisionOption{},
		Status:  schema.DecisionStatusPending,
	}
}

// NewDecisionPoint validates the spec and returns a pending decision point.
func NewDecisionPoint(spec DecisionSpec) (*DecisionPoint, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "decision point id is required")
	}
	d := defaultDecision()
	d.ID = spec.ID
	d.Name = spec.Name
	d.Description = spec.Description
	d.X, d.Y = spec.X, spec.Y
	if len(spec.Options) > 0 {
		d.Options = append([]DecisionOption(nil), spec.Options...)
	}
	return &d, nil
}

// UnmarshalJSON applies construction defaults before the saved fields.
func (d *DecisionPoint) UnmarshalJSON(data []byte) error {
	type plain DecisionPoint
	p := plain(defaultDecision())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Options == nil {
		p.Options = []DecisionOption{}
	}
	if p.Status == "" {
		p.Status = schema.DecisionStatusPending
	}
	*d = DecisionPoint(p)
	return nil
}

// Position returns the canvas position.
func (d *DecisionPoint) Position() Position { return Position{X: d.X, Y: d.Y} }

// Activate opens the gate, clearing any choice left from a previous pass.
func (d *DecisionPoint) Activate() {
	d.Status = schema.DecisionStatusActive
	d.SelectedOption = nil
}

// HasOption reports whether actionID is one of the option targets.
func (d *DecisionPoint) HasOption(actionID string) bool {
	for _, o := range d.Options {
		if o.ActionID == actionID {
			return true
		}
	}
	return false
}

// SelectOption records the choice and completes the decision. It returns
// false without changes unless the decision is active.
func (d *DecisionPoint) SelectOption(actionID string) bool {
	if d.Status != schema.DecisionStatusActive {
		return false
	}
	choice := actionID
	d.SelectedOption = &choice
	d.Status = schema.DecisionStatusCompleted
	return true
}

// Selected returns the selected option target, or "" when none.
func (d *DecisionPoint) Selected() string {
	if d.SelectedOption == nil {
		return ""
	}
	return *d.SelectedOption
}

// Reset returns the decision to pending with no selection.
func (d *DecisionPoint) Reset() {
	d.Status = schema.DecisionStatusPending
	d.SelectedOption = nil
}

// Clone returns a deep copy.
func (d *DecisionPoint) Clone() *DecisionPoint {
	c := *d
	c.Options = append([]DecisionOption{}, d.Options...)
	if d.SelectedOption != nil {
		s := *d.SelectedOption
		c.SelectedOption = &s
	}
	return &c
}

// Map returns the decision as plain data keyed by JSON field names.
func (d *DecisionPoint) Map() map[string]any {
	return toMap(d)
}
