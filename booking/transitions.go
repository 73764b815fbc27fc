package booking

import "github.com/warp/lodging-engine/core"

// =============================================================================
// TRANSITION TABLE
// =============================================================================
//
//   HOLD ──submit──▶ PENDING ──confirm──▶ CONFIRMED ──check_in──▶ CHECKED_IN ──check_out──▶ CHECKED_OUT
//    │ └────────────confirm─────────────▶    │
//    │                                       ├──no_show──▶ NO_SHOW
//    └── cancel / reject (HOLD, PENDING, CONFIRMED) ──▶ CANCELLED / REJECTED
//
// modify keeps the status. Everything not listed returns InvalidTransition.

// Action is a lifecycle operation checked against the table.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionConfirm  Action = "confirm"
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	ActionModify   Action = "modify"
	ActionCancel   Action = "cancel"
	ActionReject   Action = "reject"
	ActionNoShow   Action = "no_show"
)

// AllActions lists every action in the table.
var AllActions = []Action{
	ActionSubmit, ActionConfirm, ActionCheckIn, ActionCheckOut,
	ActionModify, ActionCancel, ActionReject, ActionNoShow,
}

var live = []core.BookingStatus{core.StatusHold, core.StatusPending, core.StatusConfirmed}

var allowedFrom = map[Action][]core.BookingStatus{
	ActionSubmit:   {core.StatusHold},
	ActionConfirm:  {core.StatusHold, core.StatusPending},
	ActionCheckIn:  {core.StatusConfirmed},
	ActionCheckOut: {core.StatusCheckedIn},
	ActionModify:   live,
	ActionCancel:   live,
	ActionReject:   live,
	ActionNoShow:   {core.StatusConfirmed},
}

// Allowed reports whether action may run from status.
func Allowed(status core.BookingStatus, action Action) bool {
	for _, s := range allowedFrom[action] {
		if s == status {
			return true
		}
	}
	return false
}

func checkTransition(b core.Booking, action Action) error {
	if !Allowed(b.Status, action) {
		return &core.TransitionError{BookingID: b.ID, From: b.Status, Action: string(action)}
	}
	return nil
}

func auditAction(a Action) core.AuditAction {
	switch a {
	case ActionSubmit:
		return core.AuditSubmit
	case ActionConfirm:
		return core.AuditConfirm
	case ActionCheckIn:
		return core.AuditCheckIn
	case ActionCheckOut:
		return core.AuditCheckOut
	case ActionModify:
		return core.AuditModify
	case ActionCancel:
		return core.AuditCancel
	case ActionReject:
		return core.AuditReject
	case ActionNoShow:
		return core.AuditNoShow
	}
	panic("unhandled booking action " + string(a))
}
