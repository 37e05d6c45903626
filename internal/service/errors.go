package service

import (
	"errors"

	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/strava"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrNotConnected       = errors.New("strava account not connected")
	ErrRefreshFailed      = errors.New("strava token refresh failed")
	ErrForbidden          = errors.New("not allowed to access this resource")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageWriteFailed = errors.New("failed to store photo")
	ErrRemoteUpdateFailed = errors.New("failed to update activity on strava")
	ErrLinkFailed         = errors.New("failed to link strava account")
)

// Error kinds returned to API clients.
const (
	KindUnauthenticated    = "unauthenticated"
	KindNotConnected       = "not_connected"
	KindRefreshFailed      = "refresh_failed"
	KindRemoteError        = "remote_error"
	KindRemoteUpdateFailed = "remote_update_failed"
	KindForbidden          = "forbidden"
	KindNotFound           = "not_found"
	KindInvalidInput       = "invalid_input"
	KindStorageWriteFailed = "storage_write_failed"
	KindLinkFailed         = "link_failed"
	KindInternal           = "internal"
)

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	var remote *strava.RemoteError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrRemoteUpdateFailed):
		return KindRemoteUpdateFailed
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrRefreshFailed):
		return KindRefreshFailed
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound),
		errors.Is(err, repository.ErrActivityNotFound),
		errors.Is(err, repository.ErrPhotoNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrStorageWriteFailed):
		return KindStorageWriteFailed
	case errors.Is(err, ErrLinkFailed):
		return KindLinkFailed
	case errors.As(err, &remote):
		return KindRemoteError
	default:
		return KindInternal
	}
}
