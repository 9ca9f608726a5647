// Package session coordinates activation edges, captured speech, channel
// traffic and page actions for one driven page context.
package session

// Session is the per-page state the dispatcher owns exclusively. It is
// reset on navigation and torn down with the page.
type Session struct {
	URL          string
	Activated    bool
	Recording    bool
	Conversation bool
	Analyzed     bool
	// Options maps spoken labels to URLs while in conversation mode.
	Options map[string]string
}

// Reset returns the session to its post-load state for a new URL.
func (s *Session) Reset(url string) {
	s.URL = url
	s.Activated = false
	s.Recording = false
	s.Conversation = false
	s.Analyzed = false
	s.Options = nil
}

// Info is a read-only copy of session state for status surfaces.
type Info struct {
	URL          string
	State        string
	Activated    bool
	Recording    bool
	Conversation bool
	Analyzed     bool
	OptionLabels []string
}
