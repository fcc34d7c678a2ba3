package apperrors

import "net/http"

// HTTPStatus maps an error code to the status the REST layer returns.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthenticated, CodeWrongPassword:
		return http.StatusUnauthorized
	case CodePermissionDenied, CodeBlocked:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeEmailInUse, CodeUsernameTaken, CodeAlreadyFriends,
		CodeFailedPrecondition, CodeInvalidTransition, CodeCallInProgress:
		return http.StatusConflict
	case CodeWeakPassword:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeStoreUnavailable, CodeSignalingWriteFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
