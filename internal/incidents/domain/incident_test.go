package incidents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusDismissed, StatusEscalated}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusDismissed}: true,
		{StatusPending, StatusEscalated}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, Incident{Status: StatusPending}.Terminal())
	assert.True(t, Incident{Status: StatusDismissed}.Terminal())
	assert.True(t, Incident{Status: StatusEscalated}.Terminal())
}

func TestValidate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	valid := Incident{ID: "i", DeviceID: "d", SiteID: "s", RecipientID: "r", CreatedAt: now, Deadline: now.Add(time.Hour)}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.RecipientID = ""
	assert.Error(t, missing.Validate())

	backwards := valid
	backwards.Deadline = now.Add(-time.Minute)
	assert.Error(t, backwards.Validate())
}
