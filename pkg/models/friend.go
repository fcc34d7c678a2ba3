package models

import (
	"time"

	"github.com/communityz/backend/pkg/apperrors"
)

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

type FriendRequest struct {
	ID         string              `json:"id" db:"id"`
	SenderID   string              `json:"sender_id" db:"sender_id"`
	ReceiverID string              `json:"receiver_id" db:"receiver_id"`
	Status     FriendRequestStatus `json:"status" db:"status"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time          `json:"resolved_at,omitempty" db:"resolved_at"`
	Sender     *User               `json:"sender,omitempty" db:"-"`
}

// Resolved reports whether the request reached a terminal status.
func (r *FriendRequest) Resolved() bool {
	return r.Status != FriendRequestPending
}

type Friendship struct {
	UserID    string    `json:"user_id" db:"user_id"`
	FriendID  string    `json:"friend_id" db:"friend_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Block struct {
	BlockerID string    `json:"blocker_id" db:"blocker_id"`
	BlockedID string    `json:"blocked_id" db:"blocked_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type FriendRequestInput struct {
	ReceiverID string `json:"receiver_id"`
}

// RelationState is the loaded edge context for a user pair, used to decide
// whether a friend operation is legal.
type RelationState struct {
	Friends        bool
	BlockedEither  bool
	PendingRequest bool
}

// CanSendFriendRequest applies the friend-request admission policy.
func CanSendFriendRequest(rel RelationState) error {
	if rel.BlockedEither {
		return apperrors.New(apperrors.CodeBlocked, "cannot send a friend request while a block exists")
	}
	if rel.Friends {
		return apperrors.New(apperrors.CodeAlreadyFriends, "users are already friends")
	}
	if rel.PendingRequest {
		return apperrors.AlreadyExists("a pending friend request already exists")
	}
	return nil
}

// CanAcceptFriendRequest validates that viewer may accept req given the current
// edge state. A block created after the request was sent makes it unacceptable;
// the request itself remains on record.
func CanAcceptFriendRequest(req *FriendRequest, viewerID string, rel RelationState) error {
	if req.ReceiverID != viewerID {
		return apperrors.Forbidden("only the receiver can accept a friend request")
	}
	if req.Resolved() {
		return apperrors.FailedPrecondition("friend request is already resolved")
	}
	if rel.BlockedEither {
		return apperrors.New(apperrors.CodeBlocked, "cannot accept a friend request while a block exists")
	}
	return nil
}

// CanDeclineFriendRequest validates a decline. Declines are terminal; a resolved
// request cannot be reactivated or re-declined.
func CanDeclineFriendRequest(req *FriendRequest, viewerID string) error {
	if req.ReceiverID != viewerID {
		return apperrors.Forbidden("only the receiver can decline a friend request")
	}
	if req.Resolved() {
		return apperrors.FailedPrecondition("friend request is already resolved")
	}
	return nil
}
