package calls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

func TestMachineStartsCalling(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, models.CallStatusCalling, m.Status())
}

func TestMachineTransitions(t *testing.T) {
	cases := []struct {
		from    models.CallStatus
		to      models.CallStatus
		allowed bool
	}{
		{models.CallStatusCalling, models.CallStatusAccepted, true},
		{models.CallStatusCalling, models.CallStatusDeclined, true},
		{models.CallStatusCalling, models.CallStatusEnded, true},
		{models.CallStatusAccepted, models.CallStatusEnded, true},
		{models.CallStatusAccepted, models.CallStatusDeclined, false},
		{models.CallStatusAccepted, models.CallStatusCalling, false},
		{models.CallStatusDeclined, models.CallStatusAccepted, false},
		{models.CallStatusDeclined, models.CallStatusEnded, false},
		{models.CallStatusEnded, models.CallStatusAccepted, false},
		{models.CallStatusEnded, models.CallStatusCalling, false},
	}

	for _, tc := range cases {
		m := Machine{status: tc.from}
		err := m.Transition(tc.to)
		if tc.allowed {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.to, m.Status())
		} else {
			require.Error(t, err, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.CodeOf(err))
			// State must be unchanged after a rejected transition.
			assert.Equal(t, tc.from, m.Status())
		}
	}
}

func TestMachineFullLifecycle(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(models.CallStatusAccepted))
	require.NoError(t, m.Transition(models.CallStatusEnded))
	assert.Error(t, m.Transition(models.CallStatusAccepted))
}
