package matrix

import (
	"github.com/Masterminds/semver/v3"
	"github.com/vk/matrixci/internal/config"
	"github.com/vk/matrixci/internal/job"
)

// Expand produces the deterministic ordered combination set for the given
// matrix: the full cross-product in axis-declaration order (outer axis
// varies slowest), minus combinations matching an exclude rule, plus
// include-rule combinations not already present, preserving first-seen
// order. Declaration problems are reported as *config.Error.
func Expand(m config.Matrix) ([]job.Combination, error) {
	if err := validateSelectors(m); err != nil {
		return nil, err
	}

	combos := crossProduct(m.Axes)

	if len(m.Exclude) > 0 {
		kept := combos[:0]
		for _, c := range combos {
			if !matchesAny(c, m.Exclude) {
				kept = append(kept, c)
			}
		}
		combos = kept
	}

	for _, sel := range m.Include {
		c, err := combinationFromSelector(m, sel)
		if err != nil {
			return nil, err
		}
		if !contains(combos, c) {
			combos = append(combos, c)
		}
	}

	return combos, nil
}

// crossProduct enumerates every axis-value combination with the first
// declared axis varying slowest.
func crossProduct(axes []config.Axis) []job.Combination {
	total := 1
	for _, a := range axes {
		total *= len(a.Values)
	}

	combos := make([]job.Combination, 0, total)
	indices := make([]int, len(axes))
	for {
		c := make(job.Combination, len(axes))
		for i, a := range axes {
			c[i] = job.Pair{Axis: a.Name, Value: a.Values[indices[i]]}
		}
		combos = append(combos, c)

		// Advance the innermost index first.
		i := len(axes) - 1
		for ; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(axes[i].Values) {
				break
			}
			indices[i] = 0
		}
		if i < 0 {
			return combos
		}
	}
}

// combinationFromSelector materializes an include rule into a full
// combination: axes the rule leaves out default to their first declared
// value.
func combinationFromSelector(m config.Matrix, sel config.Selector) (job.Combination, error) {
	c := make(job.Combination, len(m.Axes))
	for i, a := range m.Axes {
		v, ok := sel[a.Name]
		if !ok {
			v = a.Values[0]
		}
		c[i] = job.Pair{Axis: a.Name, Value: v}
	}
	for i, a := range m.Axes {
		if declaredValue(a, c[i].Value) {
			continue
		}
		// Widened value: permitted only when the combination is tagged
		// tolerable or the value pins a concrete toolchain version.
		if matchesAny(c, m.AllowFailures) || isPinnedVersion(c[i].Value) {
			continue
		}
		return nil, config.Errorf("include rule references undeclared value %q on axis %q", c[i].Value, a.Name)
	}
	return c, nil
}

// isPinnedVersion reports whether the value parses as a semantic version,
// i.e. an explicit toolchain pin rather than a channel name.
func isPinnedVersion(v string) bool {
	_, err := semver.NewVersion(v)
	return err == nil
}

// validateSelectors checks that exclude and allow-failure rules reference
// declared axes and declared values. Include rules are validated during
// materialization, where the widening exception applies.
func validateSelectors(m config.Matrix) error {
	axes := make(map[string]config.Axis, len(m.Axes))
	for _, a := range m.Axes {
		axes[a.Name] = a
	}

	check := func(kind string, sels []config.Selector, valuesMustExist bool) error {
		for _, sel := range sels {
			for name, v := range sel {
				a, ok := axes[name]
				if !ok {
					return config.Errorf("%s rule references unknown axis %q", kind, name)
				}
				if valuesMustExist && !declaredValue(a, v) && !isPinnedVersion(v) {
					return config.Errorf("%s rule references undeclared value %q on axis %q", kind, v, name)
				}
			}
		}
		return nil
	}

	if err := check("exclude", m.Exclude, true); err != nil {
		return err
	}
	// Allow-failure selectors may name widened include values, so only the
	// axis names are checked.
	if err := check("allow_failures", m.AllowFailures, false); err != nil {
		return err
	}
	return check("include", m.Include, false)
}

func declaredValue(a config.Axis, v string) bool {
	for _, dv := range a.Values {
		if dv == v {
			return true
		}
	}
	return false
}

func matchesAny(c job.Combination, sels []config.Selector) bool {
	for _, sel := range sels {
		if c.Matches(sel) {
			return true
		}
	}
	return false
}

func contains(combos []job.Combination, c job.Combination) bool {
	for _, existing := range combos {
		if equal(existing, c) {
			return true
		}
	}
	return false
}

func equal(a, b job.Combination) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
