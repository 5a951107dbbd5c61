package action

import "errors"

var (
	ErrInvalidNoteID = errors.New("note id must be positive")
	ErrEmptyInfoHash = errors.New("info hash is empty")
	ErrEmptyURL      = errors.New("url is empty")
)
