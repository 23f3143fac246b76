// Package rl implements Stage 3: frozen-policy local refinement via
// tabular Q-learning (spec §4.6). The policy is loaded read-only per
// semester; no Q-value is ever updated during a generation run.
package rl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Policy is one semester's frozen Q-table: state key -> action index ->
// Q-value. Loaded once, shared read-only across every refinement call in
// the run.
type Policy struct {
	Semester int                `json:"semester"`
	QTable   map[string][]float64 `json:"q_table"`
}

// LoadPolicy reads the Q-table for a semester from policyDir/<semester>.json.
// A missing file is not an error: it signals "no policy for this semester",
// and Stage 3 becomes a no-op per spec §4.6.
func LoadPolicy(policyDir string, semester int) (*Policy, error) {
	if policyDir == "" {
		return nil, nil
	}
	path := filepath.Join(policyDir, fmt.Sprintf("%d.json", semester))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load rl policy: %w", err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse rl policy: %w", err)
	}
	return &p, nil
}

// QValue returns the Q-value for (state, actionIndex), 0 if the state or
// action index is unknown to the table (an unseen state never guides a
// swap towards exploitation it hasn't earned).
func (p *Policy) QValue(state string, actionIndex int) float64 {
	if p == nil {
		return 0
	}
	values, ok := p.QTable[state]
	if !ok || actionIndex >= len(values) {
		return 0
	}
	return values[actionIndex]
}
