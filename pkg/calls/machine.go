// Package calls owns the call-signaling lifecycle: one state machine per call
// record, one session per live call, and a manager that routes signaling
// frames between the two participants.
package calls

import (
	"fmt"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

// transitions is the legal transition table. Terminal states absorb: they have
// no outgoing edges, so an ended call can never be resurrected.
var transitions = map[models.CallStatus][]models.CallStatus{
	models.CallStatusCalling:  {models.CallStatusAccepted, models.CallStatusDeclined, models.CallStatusEnded},
	models.CallStatusAccepted: {models.CallStatusEnded},
	models.CallStatusDeclined: {},
	models.CallStatusEnded:    {},
}

// Machine validates call status transitions. Not safe for concurrent use; the
// owning Session serializes access.
type Machine struct {
	status models.CallStatus
}

func NewMachine() Machine {
	return Machine{status: models.CallStatusCalling}
}

func (m *Machine) Status() models.CallStatus {
	return m.status
}

func (m *Machine) CanTransition(to models.CallStatus) bool {
	for _, allowed := range transitions[m.status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the machine to the target status or fails with a typed
// error, leaving the state unchanged.
func (m *Machine) Transition(to models.CallStatus) error {
	if !m.CanTransition(to) {
		return apperrors.New(apperrors.CodeInvalidTransition,
			fmt.Sprintf("illegal call transition %s -> %s", m.status, to))
	}
	m.status = to
	return nil
}
