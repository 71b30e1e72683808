// Package bridgetest runs an in-memory Bridge server for tests.
package bridgetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sagebionetworks/bridgesdk/internal/bridge"
)

// Route keys accepted by Fail and Calls.
const (
	RouteReportsByDate = "GET /v3/users/self/reports/{identifier}"
	RouteReportsPage   = "GET /v4/users/self/reports/{identifier}"
	RouteSaveReport    = "POST /v4/users/self/reports/{identifier}"
	RouteActivities    = "GET /v4/activities"
	RouteUpdate        = "POST /v3/activities"
	RouteAppConfig     = "GET /v1/apps/{appId}/appconfig"
	RouteSurvey        = "GET /v3/surveys/{guid}/revisions/{createdOn}"
)

const (
	AppID   = "test-app"
	Session = "test-session"
)

type failure struct {
	status  int
	message string
	left    int
}

// Window is one activity request's time range.
type Window struct {
	Start time.Time
	End   time.Time
}

type Server struct {
	URL string

	mu         sync.Mutex
	reports    map[string][]bridge.ReportData
	saved      map[string][]bridge.ReportData
	activities []bridge.ScheduledActivity
	updates    [][]bridge.ActivityUpdate
	appConfig  json.RawMessage
	surveys    map[string]json.RawMessage
	failures   map[string]*failure
	calls      map[string]int
	windows    []Window
	delay      time.Duration
}

// New starts a server and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		reports:   map[string][]bridge.ReportData{},
		saved:     map[string][]bridge.ReportData{},
		surveys:   map[string]json.RawMessage{},
		failures:  map[string]*failure{},
		calls:     map[string]int{},
		appConfig: json.RawMessage(`{}`),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, s.requireSession)
	s.route(r, http.MethodGet, "/v3/users/self/reports/{identifier}", RouteReportsByDate, s.getReportsByDate)
	s.route(r, http.MethodGet, "/v4/users/self/reports/{identifier}", RouteReportsPage, s.getReportsPage)
	s.route(r, http.MethodPost, "/v4/users/self/reports/{identifier}", RouteSaveReport, s.saveReport)
	s.route(r, http.MethodGet, "/v4/activities", RouteActivities, s.getActivities)
	s.route(r, http.MethodPost, "/v3/activities", RouteUpdate, s.updateActivities)
	s.route(r, http.MethodGet, "/v1/apps/{appId}/appconfig", RouteAppConfig, s.getAppConfig)
	s.route(r, http.MethodGet, "/v3/surveys/{guid}/revisions/{createdOn}", RouteSurvey, s.getSurvey)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	s.URL = ts.URL
	return s
}

// Client returns a client pointed at the server with a valid session.
func (s *Server) Client(t testing.TB) *bridge.Client {
	t.Helper()
	c, err := bridge.NewClient(bridge.Options{BaseURL: s.URL, AppID: AppID, SessionToken: Session, PageSize: 2})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func (s *Server) AddReports(identifier string, items ...bridge.ReportData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[identifier] = append(s.reports[identifier], items...)
}

func (s *Server) AddActivities(items ...bridge.ScheduledActivity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, items...)
}

func (s *Server) SetAppConfig(raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appConfig = raw
}

func (s *Server) SetSurvey(guid string, createdOn time.Time, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveys[surveyKey(guid, createdOn.UTC().Format(time.RFC3339Nano))] = raw
}

// SetDelay slows every request, to hold a call in flight.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Fail makes the next n calls to route answer with status and message.
// n <= 0 fails until Reset.
func (s *Server) Fail(route string, status int, message string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = &failure{status: status, message: message, left: n}
}

func (s *Server) Reset(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) Saved(identifier string) []bridge.ReportData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bridge.ReportData(nil), s.saved[identifier]...)
}

func (s *Server) Updates() [][]bridge.ActivityUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]bridge.ActivityUpdate(nil), s.updates...)
}

// Windows lists activity request ranges in arrival order.
func (s *Server) Windows() []Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Window(nil), s.windows...)
}

func (s *Server) route(r chi.Router, method, pattern, key string, fn http.HandlerFunc) {
	r.MethodFunc(method, pattern, func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.calls[key]++
		delay := s.delay
		f := s.failures[key]
		var status int
		var message string
		if f != nil {
			status, message = f.status, f.message
			if f.left > 0 {
				f.left--
				if f.left == 0 {
					delete(s.failures, key)
				}
			}
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": message, "type": "BadRequestException"})
			return
		}
		fn(w, req)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Bridge-Session") != Session {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Not signed in.", "type": "NotAuthenticatedException"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getReportsByDate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	start := r.URL.Query().Get("startDate")
	end := r.URL.Query().Get("endDate")

	s.mu.Lock()
	var items []bridge.ReportData
	for _, it := range s.reports[id] {
		day := it.LocalDate
		if day == "" {
			day = it.Date
		}
		if day == "" && it.DateTime != nil {
			day = it.DateTime.Format("2006-01-02")
		}
		if day >= start && day <= end {
			items = append(items, it)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].LocalDate < items[j].LocalDate })
	writeJSON(w, http.StatusOK, bridge.ReportDataList{Items: nonNil(items), StartDate: start, EndDate: end})
}

func (s *Server) getReportsPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	q := r.URL.Query()
	start, err1 := time.Parse(time.RFC3339Nano, q.Get("startTime"))
	end, err2 := time.Parse(time.RFC3339Nano, q.Get("endTime"))
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad time range"})
		return
	}
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if pageSize <= 0 {
		pageSize = bridge.DefaultPageSize
	}
	offset := 0
	if k := q.Get("offsetKey"); k != "" {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad offsetKey"})
			return
		}
		offset = n
	}

	s.mu.Lock()
	var items []bridge.ReportData
	for _, it := range s.reports[id] {
		if it.DateTime == nil {
			continue
		}
		if !it.DateTime.Before(start) && it.DateTime.Before(end) {
			items = append(items, it)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].DateTime.Before(*items[j].DateTime) })
	if offset > len(items) {
		offset = len(items)
	}
	stop := min(offset+pageSize, len(items))
	out := bridge.ForwardCursorReportDataList{Items: nonNil(items[offset:stop]), PageSize: pageSize}
	if stop < len(items) {
		out.HasNext = true
		out.NextPageOffsetKey = strconv.Itoa(stop)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) saveReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")
	var in bridge.ReportData
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	s.saved[id] = append(s.saved[id], in)
	s.reports[id] = append(s.reports[id], in)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, bridge.Message{Message: "Report data saved."})
}

func (s *Server) getActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err1 := time.Parse(time.RFC3339Nano, q.Get("startTime"))
	end, err2 := time.Parse(time.RFC3339Nano, q.Get("endTime"))
	if err1 != nil || err2 != nil || !end.After(start) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad time range"})
		return
	}
	if end.Sub(start) > 14*24*time.Hour {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Date range cannot exceed 14 days"})
		return
	}

	s.mu.Lock()
	s.windows = append(s.windows, Window{Start: start, End: end})
	var items []bridge.ScheduledActivity
	for _, a := range s.activities {
		if !a.ScheduledOn.Before(start) && a.ScheduledOn.Before(end) {
			items = append(items, a)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, bridge.ScheduledActivityList{Items: nonNilActivities(items), StartTime: &start, EndTime: &end})
}

func (s *Server) updateActivities(w http.ResponseWriter, r *http.Request) {
	var in []bridge.ActivityUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	s.updates = append(s.updates, in)
	for _, u := range in {
		for i := range s.activities {
			if s.activities[i].GUID != u.GUID {
				continue
			}
			if u.StartedOn != nil {
				s.activities[i].StartedOn = u.StartedOn
			}
			if u.FinishedOn != nil {
				s.activities[i].FinishedOn = u.FinishedOn
			}
			if len(u.ClientData) > 0 {
				s.activities[i].ClientData = u.ClientData
			}
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, bridge.Message{Message: "Activities updated."})
}

func (s *Server) getAppConfig(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "appId") != AppID {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "App not found."})
		return
	}
	s.mu.Lock()
	raw := s.appConfig
	s.mu.Unlock()
	writeRaw(w, raw)
}

func (s *Server) getSurvey(w http.ResponseWriter, r *http.Request) {
	key := surveyKey(chi.URLParam(r, "guid"), chi.URLParam(r, "createdOn"))
	s.mu.Lock()
	raw, ok := s.surveys[key]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Survey not found."})
		return
	}
	writeRaw(w, raw)
}

func surveyKey(guid, createdOn string) string {
	return guid + "@" + createdOn
}

func nonNil(items []bridge.ReportData) []bridge.ReportData {
	if items == nil {
		return []bridge.ReportData{}
	}
	return items
}

func nonNilActivities(items []bridge.ScheduledActivity) []bridge.ScheduledActivity {
	if items == nil {
		return []bridge.ScheduledActivity{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
