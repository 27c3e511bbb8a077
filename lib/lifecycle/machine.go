// Package lifecycle holds the status workflows of requests, legacy service
// requests and appointments. Everything here is pure: functions validate the
// current state, then mutate the struct they are given. Persisting the result
// (and locking the row beforehand) is the data layer's job.
package lifecycle

import (
	"slices"

	"homecare/lib/models"
)

// Action names a transition.
type Action string

const (
	ActionReview     Action = "review"
	ActionConfirm    Action = "confirm"
	ActionStart      Action = "start"
	ActionComplete   Action = "complete"
	ActionCancel     Action = "cancel"
	ActionNoShow     Action = "no_show"
	ActionReschedule Action = "reschedule"
)

type rule[S ~string] struct {
	from []S
	to   S
}

// Machine is a transition table for one status type.
type Machine[S ~string] struct {
	entity string
	rules  map[Action]rule[S]
	order  []Action
}

// Target returns the status that action leads to from the current status,
// or a ConflictError when the action is not allowed.
func (m Machine[S]) Target(id int64, from S, action Action) (S, error) {
	r, ok := m.rules[action]
	if !ok || !slices.Contains(r.from, from) {
		var zero S
		return zero, &models.ConflictError{Entity: m.entity, ID: id, Action: string(action), From: string(from)}
	}
	return r.to, nil
}

func (m Machine[S]) Can(from S, action Action) bool {
	r, ok := m.rules[action]
	return ok && slices.Contains(r.from, from)
}

// Available lists the actions allowed from a status, in a stable order.
func (m Machine[S]) Available(from S) []Action {
	out := []Action{}
	for _, a := range m.order {
		if m.Can(from, a) {
			out = append(out, a)
		}
	}
	return out
}

func except[S comparable](all []S, excluded ...S) []S {
	out := make([]S, 0, len(all))
	for _, s := range all {
		if !slices.Contains(excluded, s) {
			out = append(out, s)
		}
	}
	return out
}

// Requests: submitted -> reviewed -> in_progress -> completed, cancel from
// any open state.
var Requests = Machine[models.RequestStatus]{
	entity: "request",
	rules: map[Action]rule[models.RequestStatus]{
		ActionReview:   {from: []models.RequestStatus{models.RequestSubmitted}, to: models.RequestReviewed},
		ActionStart:    {from: []models.RequestStatus{models.RequestReviewed}, to: models.RequestInProgress},
		ActionComplete: {from: []models.RequestStatus{models.RequestInProgress}, to: models.RequestCompleted},
		ActionCancel: {
			from: except(models.RequestStatuses(), models.RequestCompleted, models.RequestCancelled),
			to:   models.RequestCancelled,
		},
	},
	order: []Action{ActionReview, ActionStart, ActionComplete, ActionCancel},
}

// Appointments: scheduled -> confirmed -> in_progress -> completed, with
// no-show from the two booked states, reschedule back to scheduled, and
// cancel from anything not completed or already cancelled.
var Appointments = Machine[models.AppointmentStatus]{
	entity: "appointment",
	rules: map[Action]rule[models.AppointmentStatus]{
		ActionConfirm:  {from: []models.AppointmentStatus{models.AppointmentScheduled}, to: models.AppointmentConfirmed},
		ActionStart:    {from: []models.AppointmentStatus{models.AppointmentConfirmed}, to: models.AppointmentInProgress},
		ActionComplete: {from: []models.AppointmentStatus{models.AppointmentInProgress}, to: models.AppointmentCompleted},
		ActionNoShow: {
			from: []models.AppointmentStatus{models.AppointmentScheduled, models.AppointmentConfirmed},
			to:   models.AppointmentNoShow,
		},
		ActionReschedule: {
			from: []models.AppointmentStatus{models.AppointmentScheduled, models.AppointmentConfirmed},
			to:   models.AppointmentScheduled,
		},
		ActionCancel: {
			from: except(models.AppointmentStatuses(), models.AppointmentCompleted, models.AppointmentCancelled),
			to:   models.AppointmentCancelled,
		},
	},
	order: []Action{ActionConfirm, ActionStart, ActionComplete, ActionNoShow, ActionReschedule, ActionCancel},
}

// ServiceRequests is the legacy v1 workflow.
var ServiceRequests = Machine[models.ServiceRequestStatus]{
	entity: "service request",
	rules: map[Action]rule[models.ServiceRequestStatus]{
		ActionConfirm:  {from: []models.ServiceRequestStatus{models.ServiceRequestPending}, to: models.ServiceRequestConfirmed},
		ActionStart:    {from: []models.ServiceRequestStatus{models.ServiceRequestConfirmed}, to: models.ServiceRequestInProgress},
		ActionComplete: {from: []models.ServiceRequestStatus{models.ServiceRequestInProgress}, to: models.ServiceRequestCompleted},
		ActionCancel: {
			from: except(models.ServiceRequestStatuses(), models.ServiceRequestCompleted, models.ServiceRequestCancelled),
			to:   models.ServiceRequestCancelled,
		},
	},
	order: []Action{ActionConfirm, ActionStart, ActionComplete, ActionCancel},
}
