package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

// CreateCall persists a new call record in the calling state. A failure here
// surfaces as SIGNALING_WRITE_FAILED and no signaling session is retained.
func (s *Store) CreateCall(call *models.Call) error {
	s.logger.Info("Creating call record",
		"caller_id", call.CallerID, "receiver_id", call.ReceiverID, "media_type", call.MediaType)

	call.ID = uuid.New().String()
	call.Status = models.CallStatusCalling
	call.CreatedAt = time.Now()

	query := `
		INSERT INTO calls (id, caller_id, receiver_id, media_type, status, offer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := s.DB.QueryRow(query,
		call.ID, call.CallerID, call.ReceiverID, call.MediaType,
		call.Status, []byte(call.Offer), call.CreatedAt,
	).Scan(&call.ID)
	if err != nil {
		s.logger.Error("Failed to create call record", "error", err)
		return apperrors.Wrap(apperrors.CodeSignalingWriteFailed, "could not persist call record", err)
	}
	return nil
}

func (s *Store) GetCall(callID string) (*models.Call, error) {
	query := `
		SELECT id, caller_id, receiver_id, media_type, status, offer, answer, created_at, ended_at
		FROM calls WHERE id = $1`

	call := &models.Call{}
	var offer, answer []byte
	err := s.DB.QueryRow(query, callID).Scan(
		&call.ID, &call.CallerID, &call.ReceiverID, &call.MediaType,
		&call.Status, &offer, &answer, &call.CreatedAt, &call.EndedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("call not found")
	}
	if err != nil {
		s.logger.Error("Failed to get call", "error", err, "call_id", callID)
		return nil, apperrors.StoreUnavailable(err)
	}
	call.Offer = json.RawMessage(offer)
	call.Answer = json.RawMessage(answer)
	return call, nil
}

// SetCallAnswer stores the answer and moves the record to accepted, guarded so
// only a live calling record can be answered.
func (s *Store) SetCallAnswer(callID string, answer json.RawMessage) error {
	result, err := s.DB.Exec(`
		UPDATE calls
		SET answer = $2, status = 'accepted'
		WHERE id = $1 AND status = 'calling'`,
		callID, []byte(answer))
	if err != nil {
		s.logger.Error("Failed to store call answer", "error", err, "call_id", callID)
		return apperrors.Wrap(apperrors.CodeSignalingWriteFailed, "could not persist answer", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.New(apperrors.CodeInvalidTransition, "call is not in calling state")
	}
	return nil
}

// MarkCallDeclined is terminal; only a live calling record can be declined.
func (s *Store) MarkCallDeclined(callID string) error {
	result, err := s.DB.Exec(`
		UPDATE calls
		SET status = 'declined', ended_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'calling'`,
		callID)
	if err != nil {
		s.logger.Error("Failed to decline call", "error", err, "call_id", callID)
		return apperrors.Wrap(apperrors.CodeSignalingWriteFailed, "could not persist decline", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.New(apperrors.CodeInvalidTransition, "call is not in calling state")
	}
	return nil
}

// MarkCallEnded moves a live call to ended. Returns false without error when
// the record is already terminal, which keeps end-call idempotent: the second
// application performs no write.
func (s *Store) MarkCallEnded(callID string) (bool, error) {
	result, err := s.DB.Exec(`
		UPDATE calls
		SET status = 'ended', ended_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('calling', 'accepted')`,
		callID)
	if err != nil {
		s.logger.Error("Failed to end call", "error", err, "call_id", callID)
		return false, apperrors.Wrap(apperrors.CodeSignalingWriteFailed, "could not persist call end", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// AddCallCandidate stores an ICE candidate under the id of the participant
// that discovered it.
func (s *Store) AddCallCandidate(callID, ownerID string, candidate json.RawMessage) (*models.CallCandidate, error) {
	c := &models.CallCandidate{
		ID:        uuid.New().String(),
		CallID:    callID,
		OwnerID:   ownerID,
		Candidate: candidate,
		CreatedAt: time.Now(),
	}

	_, err := s.DB.Exec(`
		INSERT INTO call_candidates (id, call_id, owner_id, candidate, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.CallID, c.OwnerID, []byte(c.Candidate), c.CreatedAt)
	if err != nil {
		s.logger.Error("Failed to store call candidate", "error", err, "call_id", callID)
		return nil, apperrors.Wrap(apperrors.CodeSignalingWriteFailed, "could not persist candidate", err)
	}
	return c, nil
}

// GetCallCandidates returns candidates discovered by ownerID, oldest first.
func (s *Store) GetCallCandidates(callID, ownerID string) ([]models.CallCandidate, error) {
	rows, err := s.DB.Query(`
		SELECT id, call_id, owner_id, candidate, created_at
		FROM call_candidates
		WHERE call_id = $1 AND owner_id = $2
		ORDER BY created_at ASC`,
		callID, ownerID)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var candidates []models.CallCandidate
	for rows.Next() {
		var c models.CallCandidate
		var raw []byte
		if err := rows.Scan(&c.ID, &c.CallID, &c.OwnerID, &raw, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Candidate = json.RawMessage(raw)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ListCallsForUser returns call history where the user was either side.
func (s *Store) ListCallsForUser(userID string, limit int) ([]models.Call, error) {
	query := `
		SELECT id, caller_id, receiver_id, media_type, status, created_at, ended_at
		FROM calls
		WHERE caller_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.DB.Query(query, userID, limit)
	if err != nil {
		s.logger.Error("Failed to list calls", "error", err, "user_id", userID)
		return nil, apperrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var calls []models.Call
	for rows.Next() {
		var c models.Call
		err := rows.Scan(&c.ID, &c.CallerID, &c.ReceiverID, &c.MediaType,
			&c.Status, &c.CreatedAt, &c.EndedAt)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}
