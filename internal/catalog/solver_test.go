package catalog

import (
	"testing"

	"github.com/google/uuid"
)

func sizeColorAxes() []AxisOptions {
	return []AxisOptions{
		{AxisID: uuid.New(), Options: []string{"Red", "Blue"}},
		{AxisID: uuid.New(), Options: []string{"S", "M"}},
	}
}

func TestValidCompletionsExist(t *testing.T) {
	axes := sizeColorAxes()

	cases := []struct {
		name     string
		prefix   []string
		existing [][]string
		want     bool
	}{
		{name: "empty catalog", prefix: nil, existing: nil, want: true},
		{name: "prefix with free sibling", prefix: []string{"Red"}, existing: [][]string{{"Red", "S"}}, want: true},
		{name: "prefix exhausted", prefix: []string{"Red"}, existing: [][]string{{"Red", "S"}, {"Red", "M"}}, want: false},
		{name: "other prefix free", prefix: []string{"Blue"}, existing: [][]string{{"Red", "S"}, {"Red", "M"}}, want: true},
		{name: "full tuple taken", prefix: []string{"Red", "S"}, existing: [][]string{{"Red", "S"}}, want: false},
		{name: "full tuple free", prefix: []string{"Red", "M"}, existing: [][]string{{"Red", "S"}}, want: true},
		{name: "everything taken", prefix: nil, existing: [][]string{{"Red", "S"}, {"Red", "M"}, {"Blue", "S"}, {"Blue", "M"}}, want: false},
		{name: "duplicate existing rows count once", prefix: []string{"Red"}, existing: [][]string{{"Red", "S"}, {"Red", "S"}}, want: true},
		{name: "prefix too long", prefix: []string{"Red", "S", "X"}, existing: nil, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidCompletionsExist(axes, tc.prefix, tc.existing); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestValidCompletionsExistEmptyAxis(t *testing.T) {
	axes := []AxisOptions{
		{AxisID: uuid.New(), Options: []string{"Red"}},
		{AxisID: uuid.New(), Options: nil},
	}
	if ValidCompletionsExist(axes, nil, nil) {
		t.Fatal("an axis without options admits no completion")
	}
}

func TestEmptyTrailingAxisAgreesWithValidOptions(t *testing.T) {
	axes := []AxisOptions{
		{AxisID: uuid.New(), Options: []string{"Red", "Blue"}},
		{AxisID: uuid.New(), Options: nil},
	}
	if ValidCompletionsExist(axes, nil, nil) {
		t.Fatal("expected no completion with an empty trailing axis")
	}
	for _, state := range ValidOptions(axes, nil, nil) {
		if state.Valid {
			t.Fatalf("option %s should be invalid", state.Value)
		}
	}
}

func TestValidCompletionsExistWideSearch(t *testing.T) {
	axes := []AxisOptions{
		{AxisID: uuid.New(), Options: []string{"a", "b", "c"}},
		{AxisID: uuid.New(), Options: []string{"1", "2", "3"}},
		{AxisID: uuid.New(), Options: []string{"x", "y"}},
	}
	var existing [][]string
	for _, a := range axes[0].Options {
		for _, n := range axes[1].Options {
			for _, l := range axes[2].Options {
				if a == "c" && n == "3" && l == "y" {
					continue
				}
				existing = append(existing, []string{a, n, l})
			}
		}
	}
	if !ValidCompletionsExist(axes, nil, existing) {
		t.Fatal("expected the single free tuple to be found")
	}
	if ValidCompletionsExist(axes, []string{"b"}, existing) {
		t.Fatal("expected prefix b to be exhausted")
	}
	if !ValidCompletionsExist(axes, []string{"c", "3"}, existing) {
		t.Fatal("expected prefix c/3 to have the free tuple")
	}
}

func TestValidOptions(t *testing.T) {
	axes := sizeColorAxes()
	existing := [][]string{{"Red", "S"}, {"Red", "M"}, {"Blue", "S"}}

	states := ValidOptions(axes, nil, existing)
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	if states[0].Value != "Red" || states[0].Valid {
		t.Fatalf("expected Red to be exhausted, got %+v", states[0])
	}
	if states[1].Value != "Blue" || !states[1].Valid {
		t.Fatalf("expected Blue to be selectable, got %+v", states[1])
	}

	next := ValidOptions(axes, []string{"Blue"}, existing)
	if next[0].Valid || !next[1].Valid {
		t.Fatalf("expected only M to remain for Blue, got %+v", next)
	}

	if ValidOptions(axes, []string{"Blue", "M"}, existing) != nil {
		t.Fatal("expected no next axis for a full tuple")
	}
}

func TestVariantKeyOrdersByPosition(t *testing.T) {
	color, size := uuid.New(), uuid.New()
	positions := map[uuid.UUID]int{color: 0, size: 1}

	a := VariantKey([]AxisValue{{AxisID: size, Value: "S"}, {AxisID: color, Value: "Red"}}, positions)
	b := VariantKey([]AxisValue{{AxisID: color, Value: "Red"}, {AxisID: size, Value: "S"}}, positions)
	if a != b {
		t.Fatalf("expected order-independent key, got %q and %q", a, b)
	}
	want := color.String() + "=Red|" + size.String() + "=S"
	if a != want {
		t.Fatalf("expected %q, got %q", want, a)
	}
}
