package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionNightTable(t *testing.T) {
	cases := []struct {
		name    string
		current Status
		reason  string
		power   float64
		want    Result
	}{
		{"fault stays without power", StatusFault, "error code: 567", 0, Result{StatusFault, "error code: 567"}},
		{"fault recovers with power", StatusFault, "no production", 120, Result{StatusHealthy, ""}},
		{"dormant stays without power", StatusDormant, ReasonNightNoProduction, 0, Result{StatusDormant, ReasonNightNoProduction}},
		{"dormant wakes with power", StatusDormant, ReasonNightNoProduction, 3.5, Result{StatusHealthy, ""}},
		{"healthy keeps reason with power", StatusHealthy, "", 40, Result{StatusHealthy, ""}},
		{"healthy sleeps without power", StatusHealthy, "", 0, Result{StatusDormant, ReasonNightNoProduction}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Transition(Input{Current: tc.current, Reason: tc.reason, Power: tc.power, Night: true})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTransitionDay(t *testing.T) {
	assert.Equal(t, Result{StatusHealthy, ""},
		Transition(Input{Current: StatusFault, Reason: "no production", Power: 10}))
	assert.Equal(t, Result{StatusFault, ReasonNoProduction},
		Transition(Input{Current: StatusHealthy}))
	assert.Equal(t, Result{StatusFault, "error code: 567"},
		Transition(Input{Current: StatusDormant, CriticalCode: "567"}))
	// critical codes are ignored while producing
	assert.Equal(t, Result{StatusHealthy, ""},
		Transition(Input{Current: StatusHealthy, Power: 1, CriticalCode: "567"}))
}

func TestTransitionUnknownCurrentTreatedAsHealthy(t *testing.T) {
	got := Transition(Input{Current: "purple", Night: true})
	assert.Equal(t, Result{StatusDormant, ReasonNightNoProduction}, got)

	got = Transition(Input{Current: "", Night: true, Power: 2})
	assert.Equal(t, StatusHealthy, got.Status)
}

func TestNeedsFaultLookup(t *testing.T) {
	assert.True(t, NeedsFaultLookup(false, 0))
	assert.False(t, NeedsFaultLookup(false, 5))
	assert.False(t, NeedsFaultLookup(true, 0))
}

func TestFirstCriticalCodeKeepsProviderOrder(t *testing.T) {
	colours := map[string]string{"101": "yellow", "567": "red", "900": "Critical"}
	events := []FaultEvent{{Code: "101"}, {Code: ""}, {Code: "900"}, {Code: "567"}}

	code, ok := FirstCriticalCode(events, colours)
	assert.True(t, ok)
	assert.Equal(t, "900", code)

	_, ok = FirstCriticalCode([]FaultEvent{{Code: "101"}, {Code: "unknown"}}, colours)
	assert.False(t, ok)
}

func TestResultChanged(t *testing.T) {
	r := Result{Status: StatusFault, Reason: ReasonNoProduction}
	assert.False(t, r.Changed(StatusFault, ReasonNoProduction))
	assert.True(t, r.Changed(StatusFault, "error code: 1"))
	assert.True(t, r.Changed(StatusHealthy, ReasonNoProduction))
}

func TestParseStatusLegacyLabels(t *testing.T) {
	for raw, want := range map[string]Status{"green": StatusHealthy, "RED": StatusFault, "moon": StatusDormant, "dormant": StatusDormant} {
		got, ok := ParseStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseStatus("amber")
	assert.False(t, ok)
	assert.False(t, Status("Fault").Valid())
	assert.True(t, StatusFault.Valid())
}
