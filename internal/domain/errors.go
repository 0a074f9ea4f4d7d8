package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidBoardID     = errors.New("invalid board id")
	ErrInvalidParentID    = errors.New("invalid parent id")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidImportance  = errors.New("invalid importance")
	ErrInvalidCommentText = errors.New("invalid comment text")
	ErrInvalidKind        = errors.New("invalid notification kind")
	ErrNoRecipients       = errors.New("notification has no recipients")
)
