package tracking

import (
	"log"
	"net/http"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vetnav/resource-finder/pkg/messaging"
)

const analyticsTopic = "finder_events"

// Event codes on the analytics stream.
const (
	eventSession uint16 = iota
	eventSearch
	eventResourceView
	eventWizardStarted
	eventWizardStepOpened
	eventWizardCompleted
)

// RabbitTracking publishes analytics events to the broker. Every send is
// best effort; errors are logged and swallowed so tracking can never
// block or fail the caller.
type RabbitTracking struct {
	connection *amqp.Connection
}

func NewRabbitTracking(url string) (*RabbitTracking, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := messaging.DeclareTopic(ch, "global", analyticsTopic); err != nil {
		conn.Close()
		return nil, err
	}
	return &RabbitTracking{connection: conn}, nil
}

func (t *RabbitTracking) Close() error {
	return t.connection.Close()
}

func (t *RabbitTracking) send(data any) {
	if err := messaging.Publish(t.connection, "global", analyticsTopic, data); err != nil {
		log.Printf("error sending tracking event: %v", err)
	}
}

type baseEvent struct {
	SessionId int    `json:"session_id"`
	Event     uint16 `json:"event"`
}

type sessionEvent struct {
	baseEvent
	UserAgent string `json:"user_agent,omitempty"`
	Ip        string `json:"ip,omitempty"`
	Language  string `json:"language,omitempty"`
}

type searchEvent struct {
	baseEvent
	Signature string `json:"signature"`
	Results   int    `json:"noi"`
	Referer   string `json:"referer,omitempty"`
}

type resourceEvent struct {
	baseEvent
	ResourceId string `json:"resource_id"`
}

type wizardEvent struct {
	baseEvent
	Step int `json:"step,omitempty"`
}

func (t *RabbitTracking) TrackSession(sessionId int, r *http.Request) {
	ip := r.Header.Get("X-Real-Ip")
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	t.send(sessionEvent{
		baseEvent: baseEvent{Event: eventSession, SessionId: sessionId},
		UserAgent: r.UserAgent(),
		Ip:        ip,
		Language:  r.Header.Get("Accept-Language"),
	})
}

func (t *RabbitTracking) TrackSearch(sessionId int, signature string, results int, r *http.Request) {
	referer := ""
	if r != nil {
		referer = r.Header.Get("Referer")
	}
	t.send(searchEvent{
		baseEvent: baseEvent{Event: eventSearch, SessionId: sessionId},
		Signature: signature,
		Results:   results,
		Referer:   referer,
	})
}

func (t *RabbitTracking) TrackResourceView(sessionId int, resourceId string) {
	t.send(resourceEvent{
		baseEvent:  baseEvent{Event: eventResourceView, SessionId: sessionId},
		ResourceId: resourceId,
	})
}

func (t *RabbitTracking) WizardStarted(sessionId int) {
	t.send(wizardEvent{baseEvent: baseEvent{Event: eventWizardStarted, SessionId: sessionId}})
}

func (t *RabbitTracking) WizardStepOpened(sessionId int, step int) {
	t.send(wizardEvent{
		baseEvent: baseEvent{Event: eventWizardStepOpened, SessionId: sessionId},
		Step:      step,
	})
}

func (t *RabbitTracking) WizardCompleted(sessionId int) {
	t.send(wizardEvent{baseEvent: baseEvent{Event: eventWizardCompleted, SessionId: sessionId}})
}
