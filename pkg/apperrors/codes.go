package apperrors

type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeInternal           Code = "INTERNAL"

	// Auth
	CodeEmailInUse    Code = "EMAIL_IN_USE"
	CodeUsernameTaken Code = "USERNAME_TAKEN"
	CodeWrongPassword Code = "WRONG_PASSWORD"
	CodeWeakPassword  Code = "WEAK_PASSWORD"
	CodeRateLimited   Code = "RATE_LIMITED"

	// Friend graph
	CodeAlreadyFriends Code = "ALREADY_FRIENDS"
	CodeBlocked        Code = "BLOCKED"

	// Chat and signaling
	CodeStoreUnavailable     Code = "STORE_UNAVAILABLE"
	CodeSignalingWriteFailed Code = "SIGNALING_WRITE_FAILED"
	CodeCallInProgress       Code = "CALL_IN_PROGRESS"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
)
