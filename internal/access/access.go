// Package access decides what an actor may do with an event.
package access

import "gatherly/internal/models"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RoleTeam      Role = "team"
	RoleAttendee  Role = "attendee"
)

// Team roles that carry management rights on the event.
const (
	TeamManager = "manager"
	TeamCheckIn = "checkin"
)

// Decision is the actor's capability on one event. Team members manage
// attendees but never move money.
type Decision struct {
	CanManage         bool
	CanManagePayments bool
	Role              Role
}

// Resolve returns the actor's capability on event. teamRole is the actor's
// role in the event's team, or "" when they are not a member.
func Resolve(actor models.Actor, event *models.Event, teamRole string) Decision {
	switch {
	case actor.IsAdmin():
		return Decision{CanManage: true, CanManagePayments: true, Role: RoleAdmin}
	case event != nil && event.OrganizerID == actor.ID:
		return Decision{CanManage: true, CanManagePayments: true, Role: RoleOrganizer}
	case teamRole == TeamManager || teamRole == TeamCheckIn:
		return Decision{CanManage: true, Role: RoleTeam}
	default:
		return Decision{Role: RoleAttendee}
	}
}
