package session

import "errors"

var (
	// ErrBusy means a request is already in flight for this session.
	ErrBusy = errors.New("session: request already in flight")
	// ErrAlreadyAnalyzed means the current URL was analyzed and has not
	// changed since.
	ErrAlreadyAnalyzed = errors.New("session: page already analyzed")
)
