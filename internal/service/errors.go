package service

import "errors"

var (
	ErrNoteNotFound    = errors.New("note not found")
	ErrSubNoteNotFound = errors.New("sub-note not found")
	ErrInvalidRequest  = errors.New("invalid request")
	// ErrOffline is returned by operations that cannot be queued and need
	// the remote to answer.
	ErrOffline = errors.New("notes service unreachable")
)
