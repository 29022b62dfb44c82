package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

const (
	eventBuffer    = 64
	heartbeatEvery = 25 * time.Second
)

// handleEvents streams bus events as server-sent events. The current
// session status (and pending QR, if any) is sent first.
func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.d.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	events, unsubscribe := s.d.Bus.Subscribe(eventBuffer)
	defer unsubscribe()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	info := s.d.Session.Info()
	initial := []eventbus.Event{{Type: eventbus.TypeStatus, Time: time.Now(), Data: eventbus.StatusData{
		State:  string(info.State),
		Active: info.Active,
		Reason: info.Reason,
	}}}
	if info.QR != "" {
		initial = append(initial, eventbus.Event{Type: eventbus.TypeQR, Time: time.Now(), Data: eventbus.QRData{DataURL: info.QR}})
	}
	for _, e := range initial {
		if err := writeEvent(w, e); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		s.log.Debug("event stream flush unsupported", logx.Err(err))
		return
	}

	tick := time.NewTicker(heartbeatEvery)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, e); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, e eventbus.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, b)
	return err
}
