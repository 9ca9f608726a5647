package realtime

import (
	"errors"
	"fmt"
)

// ErrChannelClosed is returned by Connect/Send/Retry after Close.
var ErrChannelClosed = errors.New("realtime: channel closed")

// ErrNotOpen is returned by Send when the connection is not open. Callers
// are expected to trigger Connect and retry; nothing is queued.
type ErrNotOpen struct {
	State State
}

func (e *ErrNotOpen) Error() string {
	return fmt.Sprintf("realtime: send while %s: connection not open", e.State)
}

// ErrParse reports an inbound frame that is not valid JSON. The channel
// stays up; the bad frame is surfaced to subscribers and dropped.
type ErrParse struct {
	Size int
}

func (e *ErrParse) Error() string {
	return fmt.Sprintf("realtime: inbound frame is not valid JSON (%d bytes)", e.Size)
}
