package config

import "strings"

// Validate performs the structural checks that do not require matrix
// expansion: axis shape, stage uniqueness, and hook presence. Value-level
// checks on include/exclude selectors live in the matrix package, next to
// expansion.
func (m *Model) Validate() error {
	if len(m.Matrix.Axes) == 0 {
		return Errorf("matrix declares no axes")
	}

	seenAxes := make(map[string]struct{}, len(m.Matrix.Axes))
	for _, axis := range m.Matrix.Axes {
		if strings.TrimSpace(axis.Name) == "" {
			return Errorf("axis with empty name")
		}
		if _, dup := seenAxes[axis.Name]; dup {
			return Errorf("axis %q declared twice", axis.Name)
		}
		seenAxes[axis.Name] = struct{}{}
		if len(axis.Values) == 0 {
			return Errorf("axis %q has no values", axis.Name)
		}
		seenValues := make(map[string]struct{}, len(axis.Values))
		for _, v := range axis.Values {
			if _, dup := seenValues[v]; dup {
				return Errorf("axis %q repeats value %q", axis.Name, v)
			}
			seenValues[v] = struct{}{}
		}
	}

	if len(m.Stages) == 0 {
		return Errorf("pipeline declares no stages")
	}
	seenStages := make(map[string]struct{}, len(m.Stages))
	for _, stage := range m.Stages {
		if strings.TrimSpace(stage.Name) == "" {
			return Errorf("stage with empty name")
		}
		if _, dup := seenStages[stage.Name]; dup {
			return Errorf("stage %q declared twice", stage.Name)
		}
		seenStages[stage.Name] = struct{}{}
		if len(stage.Hooks.Script) == 0 {
			return Errorf("stage %q has no script commands", stage.Name)
		}
		for axisName := range stage.Pin {
			if _, ok := seenAxes[axisName]; !ok {
				return Errorf("stage %q pins unknown axis %q", stage.Name, axisName)
			}
		}
	}

	return nil
}
