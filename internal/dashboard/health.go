package dashboard

import (
	"net/http"
	"time"
)

type check struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthReport struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]check `json:"checks"`
}

const (
	healthOK      = "ok"
	healthWarning = "warning"
	healthError   = "error"
)

// handleHealth reports ok, warning or error. Only errors (missing generator
// key, inaccessible settings storage) turn the response into a 503.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := healthReport{Status: healthOK, Timestamp: time.Now().UTC(), Checks: map[string]check{}}

	if s.d.Session.Active() {
		rep.Checks["session"] = check{Status: healthOK, Message: "connected"}
	} else {
		rep.Checks["session"] = check{Status: healthWarning, Message: "waiting for connection"}
	}

	if s.d.Generator.HasKey() {
		rep.Checks["generator"] = check{Status: healthOK, Message: "API key configured"}
	} else {
		rep.Checks["generator"] = check{Status: healthError, Message: "API key missing"}
	}

	if err := s.d.Settings.Ping(r.Context()); err != nil {
		rep.Checks["filesystem"] = check{Status: healthError, Message: "settings storage inaccessible: " + err.Error()}
	} else {
		rep.Checks["filesystem"] = check{Status: healthOK, Message: "OK"}
	}

	for _, c := range rep.Checks {
		switch c.Status {
		case healthError:
			rep.Status = healthError
		case healthWarning:
			if rep.Status == healthOK {
				rep.Status = healthWarning
			}
		}
	}

	code := http.StatusOK
	if rep.Status == healthError {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}
