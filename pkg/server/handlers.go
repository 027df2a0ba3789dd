package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vetnav/resource-finder/pkg/client"
	"github.com/vetnav/resource-finder/pkg/common"
	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/store"
	"github.com/vetnav/resource-finder/pkg/types"
	"github.com/vetnav/resource-finder/pkg/wizard"
)

var (
	noSearches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finder_searches_total",
		Help: "The total number of processed searches",
	})
	noTagFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finder_tag_fetches_total",
		Help: "The total number of tag taxonomy requests",
	})
	noWizardUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finder_wizard_updates_total",
		Help: "The total number of wizard state updates",
	})
)

// SearchResponse is the payload the presentation layer renders.
type SearchResponse struct {
	*store.SearchResult
	ActiveFilters int    `json:"active_filters"`
	Message       string `json:"message,omitempty"`
}

// HandleSearch decodes the address-bar query into the session's filter
// store, runs the orchestrated search and responds with the sectioned
// result. A superseded search produces no body at all.
func (ws *WebServer) HandleSearch(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		noSearches.Inc()
		s := ws.getSession(sessionId)
		state := s.store.Restore(filter.Decode(r.URL.Query()))

		result, err := s.store.Search(r.Context())
		if store.IsSuperseded(err) {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}
		if err != nil {
			return common.WriteError(w, http.StatusBadGateway, "The resource list could not be loaded. Try again.")
		}
		go ws.trk().TrackSearch(sessionId, state.Signature(), result.Total, r)
		return enc.Encode(SearchResponse{
			SearchResult:  result,
			ActiveFilters: state.ActiveFilterCount(),
			Message:       s.store.Message(),
		})
	})(w, r)
}

// HandleCount serves the live result-count badge while filters are being
// edited.
func (ws *WebServer) HandleCount(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		s := ws.getSession(sessionId)
		s.store.Restore(filter.Decode(r.URL.Query()))

		count, err := s.store.Count(r.Context())
		if store.IsSuperseded(err) {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}
		if err != nil {
			return common.WriteError(w, http.StatusBadGateway, "The result count could not be loaded.")
		}
		return enc.Encode(map[string]int{"count": count})
	})(w, r)
}

func (ws *WebServer) HandleResource(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		s := ws.getSession(sessionId)
		id := r.PathValue("id")
		resource, err := s.store.Detail(r.Context(), id)
		if store.IsSuperseded(err) {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}
		if err != nil {
			var se *client.StatusError
			if errors.As(err, &se) && se.Code == http.StatusNotFound {
				return common.WriteError(w, http.StatusNotFound, "Resource not found.")
			}
			return common.WriteError(w, http.StatusBadGateway, "The resource could not be loaded. Try again.")
		}
		go ws.trk().TrackResourceView(sessionId, id)
		return enc.Encode(resource)
	})(w, r)
}

// HandleTags serves the tag panel vocabulary for the active category,
// cached per (category, scope key).
func (ws *WebServer) HandleTags(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		noTagFetches.Inc()
		s := ws.getSession(sessionId)
		state := s.store.Restore(filter.Decode(r.URL.Query()))
		if state.Category == "" {
			return enc.Encode([]types.TagGroup{})
		}
		groups, err := s.store.Tags(r.Context())
		if store.IsSuperseded(err) {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}
		if err != nil {
			return common.WriteError(w, http.StatusBadGateway, "Tags could not be loaded. Try again.")
		}
		return enc.Encode(groups)
	})(w, r)
}

// HandleGeocode handles keystroke-driven ZIP entry: the input is
// validated, and once it has settled the resolved reference point comes
// back with the rewritten canonical query. A superseded keystroke
// produces no body at all.
func (ws *WebServer) HandleGeocode(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		s := ws.getSession(sessionId)
		ref, err := s.store.GeocodeZip(r.Context(), r.URL.Query().Get("zip"))
		if errors.Is(err, store.ErrBadZip) {
			return common.WriteError(w, http.StatusBadRequest, "Enter a 5-digit ZIP code.")
		}
		if store.IsSuperseded(err) {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}
		if err != nil {
			return common.WriteError(w, http.StatusBadGateway, "The ZIP code could not be located. Try again.")
		}
		return enc.Encode(map[string]any{
			"query":     s.store.Query(),
			"reference": ref,
		})
	})(w, r)
}

// HandleDeviceLocation applies coordinates delivered by the platform and
// returns the rewritten canonical query.
func (ws *WebServer) HandleDeviceLocation(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		s := ws.getSession(sessionId)
		lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
		if errLat != nil || errLng != nil {
			return common.WriteError(w, http.StatusBadRequest, "Invalid coordinates.")
		}
		state := s.store.ReportDeviceLocation(lat, lng)
		return enc.Encode(map[string]any{
			"query":          filter.EncodeQuery(state),
			"active_filters": state.ActiveFilterCount(),
		})
	})(w, r)
}

// HandleDeviceFailure downgrades to no location and returns the
// user-facing message; ZIP entry remains available.
func (ws *WebServer) HandleDeviceFailure(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		s := ws.getSession(sessionId)
		state, msg := s.store.ReportDeviceFailure(r.URL.Query().Get("kind"))
		return enc.Encode(map[string]any{
			"query":   filter.EncodeQuery(state),
			"message": msg,
		})
	})(w, r)
}

func (ws *WebServer) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		var fb types.Feedback
		if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
			return common.WriteError(w, http.StatusBadRequest, "Invalid feedback payload.")
		}
		if fb.Message == "" {
			return common.WriteError(w, http.StatusBadRequest, "Feedback message is required.")
		}
		if ws.Feedback == nil {
			return common.WriteError(w, http.StatusNotImplemented, "Feedback is not available.")
		}
		if err := ws.Feedback.SubmitFeedback(r.Context(), fb); err != nil {
			return common.WriteError(w, http.StatusBadGateway, "Feedback could not be submitted. Try again.")
		}
		w.WriteHeader(http.StatusAccepted)
		return enc.Encode(map[string]string{"status": "accepted"})
	})(w, r)
}

// HandleWizard decodes the wizard's own query string, merges it into the
// session's wizard store (emitting lifecycle events as needed) and
// responds with the canonical encoding and completion status.
func (ws *WebServer) HandleWizard(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		noWizardUpdates.Inc()
		s := ws.getSession(sessionId)
		state := s.wizard.Replace(wizard.Decode(r.URL.Query()))
		return enc.Encode(map[string]any{
			"query":    wizard.EncodeQuery(state),
			"state":    state,
			"complete": state.Complete(),
		})
	})(w, r)
}

// HandleWizardStep records a section being expanded.
func (ws *WebServer) HandleWizardStep(w http.ResponseWriter, r *http.Request) {
	common.JsonHandler(ws.trk(), func(w http.ResponseWriter, r *http.Request, sessionId int, enc *json.Encoder) error {
		s := ws.getSession(sessionId)
		step, err := strconv.Atoi(r.URL.Query().Get("index"))
		if err != nil || step < 0 {
			return common.WriteError(w, http.StatusBadRequest, "Invalid step index.")
		}
		s.wizard.StepOpened(step)
		w.WriteHeader(http.StatusAccepted)
		return enc.Encode(map[string]string{"status": "recorded"})
	})(w, r)
}

func (ws *WebServer) HandleOptions(w http.ResponseWriter, r *http.Request) {
	common.RespondToOptions(w, r)
}
