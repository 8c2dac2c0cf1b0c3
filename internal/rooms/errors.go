package rooms

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room is full")
	ErrRoomEnded    = errors.New("room already ended")
	ErrRoomClosed   = errors.New("room is not accepting participants")
	ErrForbidden    = errors.New("operation not permitted")
	ErrNotMember    = errors.New("user is not a member of the group")
	ErrUserNotFound = errors.New("user not found")
)
