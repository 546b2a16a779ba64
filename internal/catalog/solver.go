package catalog

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

const tupleSeparator = "\x1f"

// AxisOptions is the solver's view of one axis: its identity and the ordered
// set of option values it offers.
type AxisOptions struct {
	AxisID  uuid.UUID
	Options []string
}

// OptionState reports whether picking Value for the next axis can still lead
// to a combination that does not exist yet.
type OptionState struct {
	Value string `json:"value"`
	Valid bool   `json:"valid"`
}

// ValidCompletionsExist reports whether prefix (one value per leading axis,
// in axis order) can be extended to a full tuple that exactly matches none of
// the existing tuples. existing holds full tuples in the same axis order.
func ValidCompletionsExist(axes []AxisOptions, prefix []string, existing [][]string) bool {
	if len(prefix) > len(axes) {
		return false
	}
	taken := make(map[string]struct{}, len(existing))
	for _, tuple := range existing {
		if len(tuple) != len(axes) {
			continue
		}
		taken[tupleKey(tuple)] = struct{}{}
	}

	current := make([]string, len(prefix), len(axes))
	copy(current, prefix)
	return completes(axes, current, taken)
}

// ValidOptions evaluates every option of the axis following prefix.
func ValidOptions(axes []AxisOptions, prefix []string, existing [][]string) []OptionState {
	if len(prefix) >= len(axes) {
		return nil
	}
	next := axes[len(prefix)]
	states := make([]OptionState, 0, len(next.Options))
	for _, opt := range next.Options {
		candidate := append(append([]string{}, prefix...), opt)
		states = append(states, OptionState{
			Value: opt,
			Valid: ValidCompletionsExist(axes, candidate, existing),
		})
	}
	return states
}

func completes(axes []AxisOptions, current []string, taken map[string]struct{}) bool {
	depth := len(current)
	if depth == len(axes) {
		_, exists := taken[tupleKey(current)]
		return !exists
	}
	if fewerTakenThanSlots(axes, current, taken) {
		return true
	}
	for _, opt := range axes[depth].Options {
		if completes(axes, append(current, opt), taken) {
			return true
		}
	}
	return false
}

// fewerTakenThanSlots is a counting shortcut: when fewer distinct existing
// tuples share the prefix than there are completions, one must be free. Any
// remaining axis without options leaves no completions at all.
func fewerTakenThanSlots(axes []AxisOptions, prefix []string, taken map[string]struct{}) bool {
	rest := axes[len(prefix):]
	for _, axis := range rest {
		if len(axis.Options) == 0 {
			return false
		}
	}
	slots := 1
	for _, axis := range rest {
		slots *= len(axis.Options)
		if slots > len(taken) {
			return true
		}
	}
	head := tupleKey(prefix)
	matching := 0
	for key := range taken {
		if len(prefix) == 0 || strings.HasPrefix(key, head+tupleSeparator) {
			matching++
		}
	}
	return matching < slots
}

func tupleKey(values []string) string {
	return strings.Join(values, tupleSeparator)
}

// AxisValue pairs an axis with the chosen option.
type AxisValue struct {
	AxisID uuid.UUID `json:"axis_id"`
	Value  string    `json:"value"`
}

// VariantKey derives the canonical identity string of a tuple: axis/value
// pairs ordered by axis position and joined with "|".
func VariantKey(values []AxisValue, positions map[uuid.UUID]int) string {
	ordered := orderValues(values, positions)
	parts := make([]string, len(ordered))
	for i, v := range ordered {
		parts[i] = v.AxisID.String() + "=" + v.Value
	}
	return strings.Join(parts, "|")
}

func orderValues(values []AxisValue, positions map[uuid.UUID]int) []AxisValue {
	ordered := append([]AxisValue{}, values...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return positions[ordered[i].AxisID] < positions[ordered[j].AxisID]
	})
	return ordered
}
