package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/Daskott/walkwithme/location"
	"github.com/Daskott/walkwithme/notify"
	"github.com/Daskott/walkwithme/server/models"
	"github.com/Daskott/walkwithme/trigger"
	"github.com/Daskott/walkwithme/walk"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type ResponsePayload struct {
	Errors  []string    `json:"errors"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

type WalkStatus struct {
	Snapshot   walk.Snapshot `json:"snapshot"`
	Escalation *Escalation   `json:"escalation,omitempty"`
}

type Escalation struct {
	AlertID     string           `json:"alert_id"`
	TriggeredAt time.Time        `json:"triggered_at"`
	Source      trigger.Source   `json:"source"`
	MapURL      string           `json:"map_url,omitempty"`
	Deliveries  []notify.Outcome `json:"deliveries"`
}

type LocationRequest struct {
	Latitude   *float64   `json:"latitude" validate:"required,min=-90,max=90"`
	Longitude  *float64   `json:"longitude" validate:"required,min=-180,max=180"`
	Accuracy   *float64   `json:"accuracy" validate:"omitempty,min=0"`
	CapturedAt *time.Time `json:"captured_at"`
}

type MotionRequest struct {
	X  float64    `json:"x"`
	Y  float64    `json:"y"`
	Z  float64    `json:"z"`
	At *time.Time `json:"at"`
}

type SpeechRequest struct {
	Text string `json:"text" validate:"not_blank"`
}

type SensorStatus struct {
	Shake bool `json:"shake"`
	Voice bool `json:"voice"`
}

func (s *Server) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	router.HandleFunc("/walk/events", s.streamEvents).Methods("GET")

	api := router.NewRoute().Subrouter()
	api.Use(jsonContentMiddleware)

	api.HandleFunc("/profile", s.findProfile).Methods("GET")
	api.HandleFunc("/profile", s.saveProfile).Methods("PUT")
	api.HandleFunc("/contacts", s.listContacts).Methods("GET")
	api.HandleFunc("/contacts", s.createContact).Methods("POST")
	api.HandleFunc("/contacts/{id:[0-9]+}", s.deleteContact).Methods("DELETE")

	api.HandleFunc("/walk", s.walkStatus).Methods("GET")
	api.HandleFunc("/walk/start", s.startWalk).Methods("POST")
	api.HandleFunc("/walk/safe", s.respondSafe).Methods("POST")
	api.HandleFunc("/walk/stop", s.stopWalk).Methods("POST")
	api.HandleFunc("/walk/sos", s.triggerSOS).Methods("POST")
	api.HandleFunc("/walk/reset", s.resetWalk).Methods("POST")
	api.HandleFunc("/walk/location", s.pushLocation).Methods("POST")
	api.HandleFunc("/walk/share", s.shareLocation).Methods("GET")

	api.HandleFunc("/sensors", s.sensorStatus).Methods("GET")
	api.HandleFunc("/sensors/{sensor:shake|voice}/{action:enable|disable}", s.toggleSensor).Methods("POST")
	api.HandleFunc("/sensors/motion", s.pushMotion).Methods("POST")
	api.HandleFunc("/sensors/speech", s.pushSpeech).Methods("POST")

	api.HandleFunc("/tools/siren", s.playSiren).Methods("POST")
	api.HandleFunc("/tools/fakecall/{action:ring|accept|decline}", s.fakeCall).Methods("POST")

	api.HandleFunc("/walks", s.listWalks).Methods("GET")
	api.HandleFunc("/emergencies", s.listEmergencies).Methods("GET")
	api.HandleFunc("/history", s.clearHistory).Methods("DELETE")
	api.HandleFunc("/data", s.clearData).Methods("DELETE")

	return router
}

// ---------------------------------------------------------------------------------//
// Profile & contacts
// --------------------------------------------------------------------------------//

func (s *Server) findProfile(rw http.ResponseWriter, r *http.Request) {
	profile, err := models.FindProfile()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeResponse(rw, ResponsePayload{Errors: []string{"profile not set"}}, http.StatusNotFound)
		return
	}

	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: profile}, http.StatusOK)
}

func (s *Server) saveProfile(rw http.ResponseWriter, r *http.Request) {
	data := models.Profile{}
	if !decodeAndValidate(rw, r, &data) {
		return
	}

	err := models.SaveProfile(&data)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: data}, http.StatusOK)
}

func (s *Server) listContacts(rw http.ResponseWriter, r *http.Request) {
	contacts, err := models.Contacts()
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: contacts}, http.StatusOK)
}

func (s *Server) createContact(rw http.ResponseWriter, r *http.Request) {
	data := models.Contact{}
	if !decodeAndValidate(rw, r, &data) {
		return
	}
	data.ID = 0

	err := models.CreateContact(&data)
	if errors.Is(err, models.ErrTooManyContacts) {
		writeError(rw, err, http.StatusConflict)
		return
	}

	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: data}, http.StatusCreated)
}

func (s *Server) deleteContact(rw http.ResponseWriter, r *http.Request) {
	err := models.DeleteContact(mux.Vars(r)["id"])
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeResponse(rw, ResponsePayload{Errors: []string{"contact not found"}}, http.StatusNotFound)
		return
	}

	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Walk
// --------------------------------------------------------------------------------//

func (s *Server) walkStatus(rw http.ResponseWriter, r *http.Request) {
	writeResponse(rw, ResponsePayload{Success: true, Data: s.status()}, http.StatusOK)
}

func (s *Server) startWalk(rw http.ResponseWriter, r *http.Request) {
	profile, err := s.store.Profile()
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	contacts, err := s.store.Contacts()
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	err = s.controller.Start(profile, contacts)
	switch {
	case errors.Is(err, walk.ErrSessionActive):
		writeError(rw, err, http.StatusConflict)
		return
	case errors.Is(err, walk.ErrPreconditionFailed):
		writeError(rw, err, http.StatusUnprocessableEntity)
		return
	case err != nil:
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: s.status()}, http.StatusCreated)
}

func (s *Server) respondSafe(rw http.ResponseWriter, r *http.Request) {
	s.writeTransition(rw, s.controller.RespondSafe(), "no safety check is pending")
}

func (s *Server) stopWalk(rw http.ResponseWriter, r *http.Request) {
	s.writeTransition(rw, s.controller.Stop(), "no walk in progress")
}

func (s *Server) triggerSOS(rw http.ResponseWriter, r *http.Request) {
	applied := s.controller.ManualEmergency(trigger.SourceSOS)
	s.writeTransition(rw, applied, "cannot raise an emergency in state "+string(s.controller.State()))
}

func (s *Server) resetWalk(rw http.ResponseWriter, r *http.Request) {
	s.writeTransition(rw, s.controller.Reset(), "walk in progress or nothing to reset")
}

func (s *Server) pushLocation(rw http.ResponseWriter, r *http.Request) {
	data := LocationRequest{}
	if !decodeAndValidate(rw, r, &data) {
		return
	}

	fix := location.Fix{Latitude: *data.Latitude, Longitude: *data.Longitude, Accuracy: data.Accuracy}
	if data.CapturedAt != nil {
		fix.CapturedAt = *data.CapturedAt
	}
	s.locations.Push(fix)

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusAccepted)
}

func (s *Server) shareLocation(rw http.ResponseWriter, r *http.Request) {
	share, ok := s.controller.Share()
	if !ok {
		writeResponse(rw, ResponsePayload{Errors: []string{"no location available to share"}}, http.StatusNotFound)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: share}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Sensors & tools
// --------------------------------------------------------------------------------//

func (s *Server) sensorStatus(rw http.ResponseWriter, r *http.Request) {
	writeResponse(rw, ResponsePayload{Success: true, Data: s.sensorState()}, http.StatusOK)
}

func (s *Server) toggleSensor(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	type detector interface {
		Enable() error
		Disable()
	}
	var d detector = s.shake
	if vars["sensor"] == "voice" {
		d = s.voice
	}

	if vars["action"] == "disable" {
		d.Disable()
		writeResponse(rw, ResponsePayload{Success: true, Data: s.sensorState()}, http.StatusOK)
		return
	}

	err := d.Enable()
	if errors.Is(err, trigger.ErrUnsupported) {
		writeError(rw, err, http.StatusNotImplemented)
		return
	}

	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: s.sensorState()}, http.StatusOK)
}

func (s *Server) pushMotion(rw http.ResponseWriter, r *http.Request) {
	data := MotionRequest{}
	if !decodeAndValidate(rw, r, &data) {
		return
	}

	sample := trigger.Sample{X: data.X, Y: data.Y, Z: data.Z, At: time.Now()}
	if data.At != nil {
		sample.At = *data.At
	}
	delivered := s.sensors.PushSample(sample)

	writeResponse(rw, ResponsePayload{Success: delivered > 0}, http.StatusAccepted)
}

func (s *Server) pushSpeech(rw http.ResponseWriter, r *http.Request) {
	data := SpeechRequest{}
	if !decodeAndValidate(rw, r, &data) {
		return
	}

	delivered := s.sensors.PushUtterance(data.Text)
	writeResponse(rw, ResponsePayload{Success: delivered > 0}, http.StatusAccepted)
}

func (s *Server) playSiren(rw http.ResponseWriter, r *http.Request) {
	s.controller.Siren()
	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func (s *Server) fakeCall(rw http.ResponseWriter, r *http.Request) {
	call := s.controller.FakeCall()

	var applied bool
	switch mux.Vars(r)["action"] {
	case "ring":
		applied = call.Ring()
	case "accept":
		applied = call.Accept()
	case "decline":
		applied = call.Decline()
	}

	s.writeTransition(rw, applied, "fake call is not in a state for that")
}

// ---------------------------------------------------------------------------------//
// History
// --------------------------------------------------------------------------------//

func (s *Server) listWalks(rw http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	records, paging, err := models.WalkRecords(page, pageSize)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{
		Success: true,
		Data:    map[string]interface{}{"walks": records, "paging": paging},
	}, http.StatusOK)
}

func (s *Server) listEmergencies(rw http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	records, paging, err := models.EmergencyRecords(page, pageSize)
	if err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{
		Success: true,
		Data:    map[string]interface{}{"emergencies": records, "paging": paging},
	}, http.StatusOK)
}

func (s *Server) clearHistory(rw http.ResponseWriter, r *http.Request) {
	if err := models.ClearHistory(); err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

// clearData wipes the profile, contacts, history and last known position. It is
// refused while a walk is running.
func (s *Server) clearData(rw http.ResponseWriter, r *http.Request) {
	if s.controller.State().Live() {
		writeResponse(rw, ResponsePayload{Errors: []string{"stop the walk first"}, Data: s.status()}, http.StatusConflict)
		return
	}

	if err := models.ClearAllData(); err != nil {
		writeError(rw, err, http.StatusInternalServerError)
		return
	}
	s.locations.Forget()
	s.controller.Tracker().Reset()

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

// writeTransition answers a controller call that is a no-op when it does not
// apply. A no-op is reported as a conflict, never as a server error.
func (s *Server) writeTransition(rw http.ResponseWriter, applied bool, reason string) {
	if !applied {
		writeResponse(rw, ResponsePayload{Errors: []string{reason}, Data: s.status()}, http.StatusConflict)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: s.status()}, http.StatusOK)
}

func (s *Server) status() WalkStatus {
	status := WalkStatus{Snapshot: s.controller.Snapshot()}

	escalation, ok := s.controller.LastEscalation()
	if !ok {
		return status
	}

	status.Escalation = &Escalation{
		AlertID:     escalation.Alert.ID,
		TriggeredAt: escalation.Alert.TriggeredAt,
		Source:      escalation.Alert.Source,
		MapURL:      escalation.Alert.MapURL,
		Deliveries:  []notify.Outcome{},
	}
	if escalation.Delivery != nil {
		status.Escalation.Deliveries = escalation.Delivery.Outcomes()
	}

	return status
}

func (s *Server) sensorState() SensorStatus {
	return SensorStatus{Shake: s.shake.Enabled(), Voice: s.voice.Enabled()}
}
