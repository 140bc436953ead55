package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/CodedInternet/goecat/comms"
	ecerr "github.com/CodedInternet/goecat/onboard/errors"
	"github.com/CodedInternet/goecat/onboard/journal"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	"github.com/go-chi/chi"
	"github.com/go-chi/render"
)

const DEFAULT_EVENT_LIMIT = 100

//---
// Payloads
//---

type StatusResponse struct {
	comms.StatePayload
	Safety comms.SafetyState `json:"safety"`
}

func newStatusResponse() StatusResponse {
	safety := comms.SAFETY_OK
	if ENV.Supervisor != nil {
		safety = ENV.Supervisor.State()
	}
	return StatusResponse{
		StatePayload: comms.NewStatePayload(ENV.Rig.Status()),
		Safety:       safety,
	}
}

// SafetyRequest sets the software safety switches or presses a panel button.
// Unset fields are left alone.
type SafetyRequest struct {
	Emergency *bool           `json:"emergency,omitempty"`
	Inhibit   *bool           `json:"inhibit,omitempty"`
	Button    comms.GuiButton `json:"button,omitempty"`
}

func (s *SafetyRequest) Bind(r *http.Request) error {
	if s.Emergency == nil && s.Inhibit == nil && s.Button == "" {
		return errors.New("nothing to change")
	}
	return nil
}

//---
// Views
//---

func StatusHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, newStatusResponse())
}

// LifecycleHandler requests the transition named in the url and reports the
// resulting lifecycle status.
func LifecycleHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := lifecycle.ParseTransition(chi.URLParam(r, "transition"))
	if !ok {
		render.Render(w, r, ErrNotFound)
		return
	}

	if err := ENV.Rig.Trigger(t); err != nil {
		switch err.(type) {
		case ecerr.IllegalTransition, ecerr.TransitionInProgress:
			render.Render(w, r, ErrConflict(err))
		default:
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, ENV.Rig.Lifecycle.Status())
		}
		return
	}

	render.JSON(w, r, ENV.Rig.Lifecycle.Status())
}

func SafetyHandler(w http.ResponseWriter, r *http.Request) {
	data := &SafetyRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	if data.Emergency != nil {
		ENV.Rig.SetEmergency(*data.Emergency)
	}
	if data.Inhibit != nil {
		ENV.Rig.SetInhibit(*data.Inhibit)
	}
	if data.Button != "" {
		if ENV.Supervisor == nil {
			render.Render(w, r, ErrConflict(errors.New("no safety supervisor")))
			return
		}
		if err := ENV.Supervisor.Press(data.Button); err != nil {
			render.Render(w, r, ErrInvalidRequest(err))
			return
		}
	}

	render.JSON(w, r, newStatusResponse())
}

// EventsHandler lists journal events, newest first. Optional query params
// are kind and limit.
func EventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := DEFAULT_EVENT_LIMIT
	if s := r.URL.Query().Get("limit"); s != "" {
		var err error
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			render.Render(w, r, ErrInvalidRequest(errors.New("limit must be a positive number")))
			return
		}
	}

	events, err := journal.Recent(ENV.DB, r.URL.Query().Get("kind"), limit)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, events)
}
