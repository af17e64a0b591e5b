package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gatherly/internal/models"
)

func TestResolve(t *testing.T) {
	event := &models.Event{ID: 1, OrganizerID: 10}

	tests := []struct {
		name     string
		actor    models.Actor
		teamRole string
		want     Decision
	}{
		{"admin", models.Actor{ID: 99, Role: models.RoleAdmin}, "", Decision{CanManage: true, CanManagePayments: true, Role: RoleAdmin}},
		{"organizer", models.Actor{ID: 10, Role: models.RoleUser}, "", Decision{CanManage: true, CanManagePayments: true, Role: RoleOrganizer}},
		{"team manager", models.Actor{ID: 11, Role: models.RoleUser}, TeamManager, Decision{CanManage: true, Role: RoleTeam}},
		{"check-in staff", models.Actor{ID: 12, Role: models.RoleUser}, TeamCheckIn, Decision{CanManage: true, Role: RoleTeam}},
		{"unknown team role", models.Actor{ID: 13, Role: models.RoleUser}, "volunteer", Decision{Role: RoleAttendee}},
		{"stranger", models.Actor{ID: 14, Role: models.RoleUser}, "", Decision{Role: RoleAttendee}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.actor, event, tt.teamRole))
		})
	}
}

func TestResolveWithoutEvent(t *testing.T) {
	assert.False(t, Resolve(models.Actor{ID: 1}, nil, "").CanManage)
	assert.True(t, Resolve(models.Actor{ID: 1, Role: models.RoleAdmin}, nil, "").CanManage)
}

func TestOnlyAdminAndOrganizerManagePayments(t *testing.T) {
	event := &models.Event{ID: 1, OrganizerID: 10}

	assert.True(t, Resolve(models.Actor{ID: 99, Role: models.RoleAdmin}, event, "").CanManagePayments)
	assert.True(t, Resolve(models.Actor{ID: 10, Role: models.RoleUser}, event, "").CanManagePayments)
	assert.False(t, Resolve(models.Actor{ID: 11, Role: models.RoleUser}, event, TeamManager).CanManagePayments)
	assert.False(t, Resolve(models.Actor{ID: 12, Role: models.RoleUser}, event, TeamCheckIn).CanManagePayments)
}
