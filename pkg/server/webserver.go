package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vetnav/resource-finder/pkg/geo"
	"github.com/vetnav/resource-finder/pkg/store"
	"github.com/vetnav/resource-finder/pkg/taxonomy"
	"github.com/vetnav/resource-finder/pkg/tracking"
	"github.com/vetnav/resource-finder/pkg/types"
	"github.com/vetnav/resource-finder/pkg/wizard"
)

// FeedbackSubmitter forwards user feedback to the backend.
type FeedbackSubmitter interface {
	SubmitFeedback(ctx context.Context, fb types.Feedback) error
}

// WebServer exposes the finder over HTTP. Each browser session gets its
// own filter store and wizard store, so request classes and supersession
// are scoped per session.
type WebServer struct {
	Catalog   store.Catalog
	TagSource taxonomy.Source
	Geocoder  geo.Geocoder
	Feedback  FeedbackSubmitter
	Tracking  tracking.Tracking
	Redis     *redis.Client

	// SessionTTL controls how long idle session state is kept. Zero
	// means the default of one hour.
	SessionTTL time.Duration

	mu       sync.Mutex
	sessions map[int]*session
	stop     chan struct{}
	stopOnce sync.Once
}

type session struct {
	store    *store.SessionStore
	wizard   *wizard.Store
	lastSeen time.Time
}

func (ws *WebServer) trk() tracking.Tracking {
	if ws.Tracking == nil {
		return tracking.Noop{}
	}
	return ws.Tracking
}

func (ws *WebServer) ttl() time.Duration {
	if ws.SessionTTL <= 0 {
		return time.Hour
	}
	return ws.SessionTTL
}

// getSession returns the state owned by a session id, creating it on
// first use.
func (ws *WebServer) getSession(sessionId int) *session {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.sessions == nil {
		ws.sessions = make(map[int]*session)
	}
	if ws.stop == nil {
		ws.stop = make(chan struct{})
		go ws.cleanupLoop(time.Minute)
	}
	s, ok := ws.sessions[sessionId]
	if !ok {
		st := store.NewSessionStore(sessionId, ws.Catalog, ws.Geocoder, ws.TagSource)
		if ws.Redis != nil {
			st.TagCache().WithRedis(ws.Redis)
		}
		s = &session{
			store:  st,
			wizard: wizard.NewStore(sessionId, ws.trk()),
		}
		ws.sessions[sessionId] = s
	}
	s.lastSeen = time.Now()
	return s
}

func (ws *WebServer) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-ws.ttl())
			ws.mu.Lock()
			for id, s := range ws.sessions {
				if s.lastSeen.Before(cutoff) {
					s.store.Close()
					delete(ws.sessions, id)
				}
			}
			ws.mu.Unlock()
		case <-ws.stop:
			return
		}
	}
}

// Stop ends the session janitor.
func (ws *WebServer) Stop() {
	ws.stopOnce.Do(func() {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.stop != nil {
			close(ws.stop)
		}
	})
}

// Handler builds the route table.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", ws.HandleSearch)
	mux.HandleFunc("GET /api/search/count", ws.HandleCount)
	mux.HandleFunc("GET /api/resource/{id}", ws.HandleResource)
	mux.HandleFunc("GET /api/tags", ws.HandleTags)
	mux.HandleFunc("GET /api/geocode", ws.HandleGeocode)
	mux.HandleFunc("POST /api/location/device", ws.HandleDeviceLocation)
	mux.HandleFunc("POST /api/location/failure", ws.HandleDeviceFailure)
	mux.HandleFunc("POST /api/feedback", ws.HandleFeedback)
	mux.HandleFunc("GET /api/wizard", ws.HandleWizard)
	mux.HandleFunc("POST /api/wizard/step", ws.HandleWizardStep)
	mux.HandleFunc("OPTIONS /api/", ws.HandleOptions)
	return mux
}
