package tracking

import "net/http"

// Tracking receives analytics events from the finder. Emission is
// fire-and-forget everywhere: implementations log failures and never
// propagate them into the request flow.
type Tracking interface {
	TrackSession(sessionId int, r *http.Request)
	TrackSearch(sessionId int, signature string, results int, r *http.Request)
	TrackResourceView(sessionId int, resourceId string)
	WizardStarted(sessionId int)
	WizardStepOpened(sessionId int, step int)
	WizardCompleted(sessionId int)
}

// Noop drops every event, used when no broker is configured.
type Noop struct{}

func (Noop) TrackSession(int, *http.Request)             {}
func (Noop) TrackSearch(int, string, int, *http.Request) {}
func (Noop) TrackResourceView(int, string)               {}
func (Noop) WizardStarted(int)                           {}
func (Noop) WizardStepOpened(int, int)                   {}
func (Noop) WizardCompleted(int)                         {}
