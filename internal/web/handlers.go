package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"klinikcal/internal/appointment"
	"klinikcal/internal/calendar"
	"klinikcal/internal/grid"
	"klinikcal/internal/ics"
	"klinikcal/internal/model"
)

type weekResponse struct {
	calendar.View
	Days       []string `json:"days"`
	SlotLabels []string `json:"slotLabels"`
}

func (s *Server) weekResponse(v calendar.View) weekResponse {
	g := s.deps.Grid
	days := make([]string, 7)
	for i := range days {
		days[i] = v.WeekStart.AddDate(0, 0, i).Format(time.DateOnly)
	}
	labels := make([]string, g.SlotsPerDay)
	for i := range labels {
		labels[i] = g.Label(i)
	}
	return weekResponse{View: v, Days: days, SlotLabels: labels}
}

// session returns the caller's calendar.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*calendar.Calendar, bool) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "no user in request")
		return nil, false
	}
	return s.deps.Sessions.Get(u), true
}

// selectDoctor applies ?doctorId=&doctorName=. Locked users always get
// their own calendar whatever they ask for.
func (s *Server) selectDoctor(w http.ResponseWriter, r *http.Request, cal *calendar.Calendar) bool {
	id := r.URL.Query().Get("doctorId")
	if id == "" {
		return true
	}
	d := model.Doctor{ID: cal.Access().DoctorFor(id), Name: r.URL.Query().Get("doctorName")}
	if err := cal.SelectDoctor(d); err != nil {
		writeDomainError(w, r, err)
		return false
	}
	return true
}

// navigate applies ?nav=next|prev|today or ?date=YYYY-MM-DD; with neither
// the week containing today is shown.
func (s *Server) navigate(w http.ResponseWriter, r *http.Request, cal *calendar.Calendar) bool {
	q := r.URL.Query()
	switch q.Get("nav") {
	case "next":
		cal.NextWeek()
		return true
	case "prev":
		cal.PrevWeek()
		return true
	case "today":
		cal.Today()
		return true
	case "":
	default:
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "nav must be next, prev or today")
		return false
	}

	raw := q.Get("date")
	if raw == "" {
		cal.Today()
		return true
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, s.deps.Grid.Location)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "date must be YYYY-MM-DD")
		return false
	}
	cal.GoTo(d)
	return true
}

func (s *Server) loadWeek(w http.ResponseWriter, r *http.Request) (*calendar.Calendar, bool) {
	cal, ok := s.session(w, r)
	if !ok || !s.selectDoctor(w, r, cal) || !s.navigate(w, r, cal) {
		return nil, false
	}
	if err := cal.Refresh(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return nil, false
	}
	return cal, true
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.loadWeek(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, s.weekResponse(cal.View()))
}

func (s *Server) handleWeekICS(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.loadWeek(w, r)
	if !ok {
		return
	}
	v := cal.View()
	body := ics.ExportWeek(v.Instances, ics.Options{
		Grid:       s.deps.Grid,
		DoctorName: v.Doctor.Name,
		Stamp:      s.deps.Now(),
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="week-`+v.WeekStart.Format(time.DateOnly)+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type cellResponse struct {
	Occupied bool                       `json:"occupied"`
	Head     bool                       `json:"head"`
	Instance *model.AppointmentInstance `json:"instance,omitempty"`
}

func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.session(w, r)
	if !ok {
		return
	}
	day := parseIntDefault(r.URL.Query().Get("day"), -1)
	i := parseIntDefault(r.URL.Query().Get("slot"), -1)
	if !s.deps.Grid.ValidDay(day) || !s.deps.Grid.ValidSlot(i) {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "day or slot out of range")
		return
	}
	occ, found := cal.Occupant(day, i)
	resp := cellResponse{Occupied: found}
	if found {
		resp.Head = occ.Head
		resp.Instance = &occ.Instance
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type selectionRequest struct {
	Action string `json:"action"`
	grid.Cell
}

type selectionResponse struct {
	Accepted    bool        `json:"accepted"`
	Highlighted []int       `json:"highlighted"`
	Range       *grid.Range `json:"range,omitempty"`
}

// handleSelection drives the drag gesture: down, enter, up or cancel.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "failed to decode request")
		return
	}

	var resp selectionResponse
	switch req.Action {
	case "down":
		resp.Accepted = cal.PointerDown(req.Cell)
		resp.Highlighted = cal.View().Selection
	case "enter":
		resp.Highlighted = cal.PointerEnter(req.Cell)
		resp.Accepted = len(resp.Highlighted) > 0
	case "up":
		if rg, ok := cal.PointerUp(); ok {
			resp.Accepted = true
			resp.Range = &rg
		}
	case "cancel":
		cal.CancelSelection()
		resp.Accepted = true
	default:
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "action must be down, enter, up or cancel")
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.session(w, r)
	if !ok {
		return
	}
	t := model.AppointmentType(r.URL.Query().Get("type"))
	if !t.Valid() {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "unknown appointment type")
		return
	}
	if s.deps.Catalog == nil {
		writeJSON(w, r, http.StatusOK, []model.Service{})
		return
	}

	doctorName := r.URL.Query().Get("doctorName")
	if doctorName == "" {
		doctorName = cal.View().Doctor.Name
	}
	all, err := s.deps.Catalog.Services(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := appointment.FilterServices(all, doctorName, t)
	if out == nil {
		out = []model.Service{}
	}
	writeJSON(w, r, http.StatusOK, out)
}

type createRequest struct {
	appointment.FormState
	// RebookFromID names the appointment being rebooked: an instance of the
	// displayed week or a series id.
	RebookFromID string `json:"rebookFromId,omitempty"`
}

type mutationResponse struct {
	Appointment *model.AppointmentRecord `json:"appointment,omitempty"`
	Week        weekResponse             `json:"week"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.session(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "failed to decode request")
		return
	}

	var rebook *model.AppointmentInstance
	if req.RebookFromID != "" {
		if in, found := cal.Instance(req.RebookFromID); found {
			rebook = &in
		} else {
			seriesID := req.RebookFromID
			if sid, _, isVirtual := model.ParseVirtualID(seriesID); isVirtual {
				seriesID = sid
			}
			rebook = &model.AppointmentInstance{ID: req.RebookFromID, SeriesID: seriesID}
		}
	}

	rec, err := cal.Create(r.Context(), req.FormState, rebook)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, mutationResponse{Appointment: &rec, Week: s.weekResponse(cal.View())})
}

type updateRequest struct {
	appointment.FormState
	RebookSeriesID string `json:"rebookSeriesId,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.session(w, r)
	if !ok {
		return
	}
	selected, found := cal.Instance(chi.URLParam(r, "id"))
	if !found {
		writeDomainError(w, r, calendar.ErrNotFound)
		return
	}
	var req updateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, "failed to decode request")
		return
	}
	if err := cal.Update(r.Context(), selected, req.FormState, req.RebookSeriesID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, mutationResponse{Week: s.weekResponse(cal.View())})
}

type deleteScopeResponse struct {
	appointment.DeleteScope
	Instance model.AppointmentInstance `json:"instance"`
}

func (s *Server) handleDeleteScope(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.session(w, r)
	if !ok {
		return
	}
	scope, in, err := cal.DeleteScope(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, deleteScopeResponse{DeleteScope: scope, Instance: in})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	cal, ok := s.session(w, r)
	if !ok {
		return
	}
	var d appointment.DeleteDecision
	if raw := r.URL.Query().Get("mode"); raw != "" {
		mode, err := appointment.ParseDeleteMode(raw)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		d.Mode = mode
	}
	d.RoutineConfirmed = r.URL.Query().Get("confirm") == "routine"

	if err := cal.Delete(r.Context(), chi.URLParam(r, "id"), d); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, mutationResponse{Week: s.weekResponse(cal.View())})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
