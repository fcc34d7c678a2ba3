package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/communityz/backend/pkg/apperrors"
	"github.com/communityz/backend/pkg/models"
)

// GetRelationState loads the edge context for a user pair in one round trip.
func (s *Store) GetRelationState(a, b string) (models.RelationState, error) {
	var rel models.RelationState

	query := `
		SELECT
			EXISTS (SELECT 1 FROM friends WHERE user_id = $1 AND friend_id = $2),
			EXISTS (SELECT 1 FROM blocks
				WHERE (blocker_id = $1 AND blocked_id = $2)
				OR (blocker_id = $2 AND blocked_id = $1)),
			EXISTS (SELECT 1 FROM friend_requests
				WHERE status = 'pending'
				AND ((sender_id = $1 AND receiver_id = $2)
					OR (sender_id = $2 AND receiver_id = $1)))`

	err := s.DB.QueryRow(query, a, b).Scan(&rel.Friends, &rel.BlockedEither, &rel.PendingRequest)
	if err != nil {
		s.logger.Error("Failed to load relation state", "error", err)
		return rel, apperrors.StoreUnavailable(err)
	}
	return rel, nil
}

func (s *Store) CreateFriendRequest(senderID, receiverID string) (*models.FriendRequest, error) {
	s.logger.Info("Creating friend request", "sender_id", senderID, "receiver_id", receiverID)

	req := &models.FriendRequest{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendRequestPending,
		CreatedAt:  time.Now(),
	}

	query := `
		INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.DB.QueryRow(query,
		req.ID, req.SenderID, req.ReceiverID, req.Status, req.CreatedAt,
	).Scan(&req.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, apperrors.AlreadyExists("a pending friend request already exists")
		}
		s.logger.Error("Failed to create friend request", "error", err)
		return nil, apperrors.StoreUnavailable(err)
	}
	return req, nil
}

func (s *Store) GetFriendRequest(requestID string) (*models.FriendRequest, error) {
	query := `
		SELECT id, sender_id, receiver_id, status, created_at, resolved_at
		FROM friend_requests WHERE id = $1`

	req := &models.FriendRequest{}
	err := s.DB.QueryRow(query, requestID).Scan(
		&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &req.ResolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("friend request not found")
	}
	if err != nil {
		s.logger.Error("Failed to get friend request", "error", err, "request_id", requestID)
		return nil, apperrors.StoreUnavailable(err)
	}
	return req, nil
}

// AcceptFriendRequest marks the request accepted and writes both friend edges.
// All three writes commit in one transaction: a partial failure rolls back
// rather than leaving a one-sided friendship.
func (s *Store) AcceptFriendRequest(requestID string) (*models.FriendRequest, error) {
	s.logger.Info("Accepting friend request", "request_id", requestID)

	tx, err := s.DB.Begin()
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	defer tx.Rollback()

	now := time.Now()

	req := &models.FriendRequest{}
	err = tx.QueryRow(`
		UPDATE friend_requests
		SET status = 'accepted', resolved_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING id, sender_id, receiver_id, status, created_at, resolved_at`,
		requestID, now,
	).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &req.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.FailedPrecondition("friend request is not pending")
	}
	if err != nil {
		s.logger.Error("Failed to accept friend request", "error", err, "request_id", requestID)
		return nil, apperrors.StoreUnavailable(err)
	}

	// Both directions share the acceptance timestamp.
	_, err = tx.Exec(`
		INSERT INTO friends (user_id, friend_id, created_at)
		VALUES ($1, $2, $3), ($2, $1, $3)
		ON CONFLICT (user_id, friend_id) DO NOTHING`,
		req.SenderID, req.ReceiverID, now)
	if err != nil {
		s.logger.Error("Failed to write friend edges", "error", err, "request_id", requestID)
		return nil, apperrors.StoreUnavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	s.logger.Info("Friend request accepted",
		"request_id", requestID, "sender_id", req.SenderID, "receiver_id", req.ReceiverID)
	return req, nil
}

func (s *Store) DeclineFriendRequest(requestID string) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	err := s.DB.QueryRow(`
		UPDATE friend_requests
		SET status = 'declined', resolved_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending'
		RETURNING id, sender_id, receiver_id, status, created_at, resolved_at`,
		requestID,
	).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &req.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.FailedPrecondition("friend request is not pending")
	}
	if err != nil {
		s.logger.Error("Failed to decline friend request", "error", err, "request_id", requestID)
		return nil, apperrors.StoreUnavailable(err)
	}
	return req, nil
}

// ListPendingRequests returns requests addressed to receiverID with sender
// details attached.
func (s *Store) ListPendingRequests(receiverID string) ([]models.FriendRequest, error) {
	query := `
		SELECT r.id, r.sender_id, r.receiver_id, r.status, r.created_at, r.resolved_at,
			u.id, u.username, u.display_name, u.avatar_url
		FROM friend_requests r
		JOIN users u ON r.sender_id = u.id
		WHERE r.receiver_id = $1 AND r.status = 'pending'
		ORDER BY r.created_at DESC`

	rows, err := s.DB.Query(query, receiverID)
	if err != nil {
		s.logger.Error("Failed to list pending requests", "error", err, "receiver_id", receiverID)
		return nil, apperrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		var req models.FriendRequest
		sender := &models.User{}
		err := rows.Scan(
			&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &req.ResolvedAt,
			&sender.ID, &sender.Username, &sender.DisplayName, &sender.AvatarURL,
		)
		if err != nil {
			return nil, err
		}
		req.Sender = sender
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (s *Store) ListFriends(userID string) ([]models.User, error) {
	query := `
		SELECT u.id, u.email, u.username, u.display_name, u.avatar_url, u.password_hash,
			u.online, u.last_seen, u.created_at, u.updated_at,
			u.notifications, u.show_online, u.read_receipts
		FROM friends f
		JOIN users u ON f.friend_id = u.id
		WHERE f.user_id = $1
		ORDER BY u.display_name`

	rows, err := s.DB.Query(query, userID)
	if err != nil {
		s.logger.Error("Failed to list friends", "error", err, "user_id", userID)
		return nil, apperrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var friends []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = ""
		friends = append(friends, *user)
	}
	return friends, rows.Err()
}

func (s *Store) GetFriendIDs(userID string) ([]string, error) {
	rows, err := s.DB.Query(`SELECT friend_id FROM friends WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BlockUser writes the block edge and removes any friendship, both directions,
// in one transaction.
func (s *Store) BlockUser(blockerID, blockedID string) error {
	s.logger.Info("Blocking user", "blocker_id", blockerID, "blocked_id", blockedID)

	tx, err := s.DB.Begin()
	if err != nil {
		return apperrors.StoreUnavailable(err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO blocks (blocker_id, blocked_id)
		VALUES ($1, $2)
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING`,
		blockerID, blockedID)
	if err != nil {
		s.logger.Error("Failed to insert block edge", "error", err)
		return apperrors.StoreUnavailable(err)
	}

	_, err = tx.Exec(`
		DELETE FROM friends
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)`,
		blockerID, blockedID)
	if err != nil {
		s.logger.Error("Failed to remove friend edges on block", "error", err)
		return apperrors.StoreUnavailable(err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

// UnblockUser removes the block edge only. Friendship is not restored.
func (s *Store) UnblockUser(blockerID, blockedID string) error {
	result, err := s.DB.Exec(`
		DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`,
		blockerID, blockedID)
	if err != nil {
		s.logger.Error("Failed to unblock user", "error", err)
		return apperrors.StoreUnavailable(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.NotFound("user is not blocked")
	}
	return nil
}

func (s *Store) ListBlockedUsers(blockerID string) ([]models.User, error) {
	query := `
		SELECT u.id, u.email, u.username, u.display_name, u.avatar_url, u.password_hash,
			u.online, u.last_seen, u.created_at, u.updated_at,
			u.notifications, u.show_online, u.read_receipts
		FROM blocks b
		JOIN users u ON b.blocked_id = u.id
		WHERE b.blocker_id = $1
		ORDER BY b.created_at DESC`

	rows, err := s.DB.Query(query, blockerID)
	if err != nil {
		s.logger.Error("Failed to list blocked users", "error", err, "blocker_id", blockerID)
		return nil, apperrors.StoreUnavailable(err)
	}
	defer rows.Close()

	var blocked []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = ""
		blocked = append(blocked, *user)
	}
	return blocked, rows.Err()
}

// IsBlockedEither reports whether a block edge exists in either direction.
func (s *Store) IsBlockedEither(a, b string) (bool, error) {
	var blocked bool
	err := s.DB.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2)
			OR (blocker_id = $2 AND blocked_id = $1))`,
		a, b).Scan(&blocked)
	if err != nil {
		return false, apperrors.StoreUnavailable(err)
	}
	return blocked, nil
}
