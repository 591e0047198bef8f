package status

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeSortsAndCountsUnknownAsDormant(t *testing.T) {
	c := Compose([]DeviceStatusRecord{
		{DeviceID: "d3", Status: StatusHealthy},
		{DeviceID: "d1", Status: StatusHealthy},
		{DeviceID: "d2", Status: "weird"},
		{DeviceID: "", Status: StatusFault},
	})
	assert.Equal(t, []string{"d1", "d3"}, c.Healthy)
	assert.Equal(t, []string{"d2"}, c.Dormant)
	assert.Empty(t, c.Fault)
	assert.Equal(t, 3, c.DeviceCount)
	assert.Equal(t, StatusHealthy, c.Aggregate)
}

func TestAggregateInvariantRandomCompositions(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []Status{StatusHealthy, StatusFault, StatusDormant}

	for i := 0; i < 500; i++ {
		n := rng.Intn(12)
		devices := make([]DeviceStatusRecord, 0, n)
		for j := 0; j < n; j++ {
			devices = append(devices, DeviceStatusRecord{
				DeviceID: fmt.Sprintf("dev-%d", j),
				SiteID:   "site",
				Status:   statuses[rng.Intn(len(statuses))],
			})
		}
		c := Compose(devices)

		assert.Equal(t, n, len(c.Healthy)+len(c.Fault)+len(c.Dormant))
		switch {
		case len(c.Fault) > 0:
			assert.Equal(t, StatusFault, c.Aggregate)
		case len(c.Dormant) > 0 && len(c.Healthy) == 0:
			assert.Equal(t, StatusDormant, c.Aggregate)
		default:
			assert.Equal(t, StatusHealthy, c.Aggregate)
		}

		record := c.Record("site")
		rng.Shuffle(len(record.Healthy), func(a, b int) {
			record.Healthy[a], record.Healthy[b] = record.Healthy[b], record.Healthy[a]
		})
		assert.True(t, c.Matches(&record))
	}
}

func TestMatchesDetectsDifferences(t *testing.T) {
	c := Compose([]DeviceStatusRecord{{DeviceID: "a", Status: StatusFault}, {DeviceID: "b", Status: StatusHealthy}})
	assert.False(t, c.Matches(nil))

	stored := c.Record("s")
	stored.Fault = []string{"b"}
	stored.Healthy = []string{"a"}
	assert.False(t, c.Matches(&stored))

	stored = c.Record("s")
	stored.Status = StatusHealthy
	assert.False(t, c.Matches(&stored))
}

func TestAggregateOfEmptySiteIsHealthy(t *testing.T) {
	assert.Equal(t, StatusHealthy, AggregateOf(0, 0, 0))
	assert.Equal(t, StatusDormant, AggregateOf(0, 0, 2))
	assert.Equal(t, StatusHealthy, AggregateOf(1, 0, 2))
}

func TestStoredLabelsParseBackToStatus(t *testing.T) {
	for _, s := range []Status{StatusHealthy, StatusFault, StatusDormant} {
		labels := s.StoredLabels()
		assert.Equal(t, string(s), labels[0])
		for _, label := range labels {
			parsed, ok := ParseStatus(label)
			assert.True(t, ok, label)
			assert.Equal(t, s, parsed, label)
		}
	}
	assert.Contains(t, StatusFault.StoredLabels(), "red")
}
