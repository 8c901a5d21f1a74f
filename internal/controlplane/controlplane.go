// Package controlplane implements the Control Plane Adapter (C9): the
// HTTP/JSON surface for inspecting fixtures and programs and for driving
// the two control-plane mutation paths spec.md §6 names — switching a
// fixture's active program, and reading/writing/cycling a program's
// declared parameters.
package controlplane

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mrd0ll4r/kaleidoscope/internal/fixture"
	"github.com/mrd0ll4r/kaleidoscope/internal/logging"
	"github.com/mrd0ll4r/kaleidoscope/internal/param"
	"github.com/mrd0ll4r/kaleidoscope/internal/program"
	"github.com/mrd0ll4r/kaleidoscope/internal/scheduler"
)

// diagnosable is satisfied by *host.Host; the control plane reports the
// extra fields when a catalog entry implements it, and omits them
// otherwise (native builtins carry no run state worth reporting).
type diagnosable interface {
	State() string
	ConsecutiveFailures() int
}

// Server exposes the scheduler's fixtures and programs over HTTP.
type Server struct {
	sched *scheduler.Scheduler
	mux   *http.ServeMux
	// mutationWait bounds how long a parameter write blocks waiting for
	// the tick boundary that applies it, so a caller gets a synchronous
	// validation result without starving on a stalled scheduler.
	mutationWait time.Duration
	logger       *logging.Logger
}

// New constructs a Server routing against sched's current fixture set.
func New(sched *scheduler.Scheduler, logger *logging.Logger) *Server {
	s := &Server{sched: sched, mutationWait: 2 * time.Second, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/fixtures", s.listFixtures)
	mux.HandleFunc("GET /api/v1/fixtures/{fixture}", s.getFixture)
	mux.HandleFunc("GET /api/v1/fixtures/{fixture}/programs", s.listPrograms)
	mux.HandleFunc("GET /api/v1/fixtures/{fixture}/programs/{program}", s.getProgram)
	mux.HandleFunc("POST /api/v1/fixtures/{fixture}/set_active_program", s.setActiveProgram)
	mux.HandleFunc("POST /api/v1/fixtures/{fixture}/cycle_active_program", s.cycleActiveProgram)
	mux.HandleFunc("GET /api/v1/fixtures/{fixture}/programs/{program}/parameters", s.listParameters)
	mux.HandleFunc("GET /api/v1/fixtures/{fixture}/programs/{program}/parameters/{param}", s.getParameter)
	mux.HandleFunc("POST /api/v1/fixtures/{fixture}/programs/{program}/parameters/{param}", s.setParameter)
	mux.HandleFunc("POST /api/v1/fixtures/{fixture}/programs/{program}/parameters/{param}/cycle", s.cycleParameter)
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) fixtureByName(name string) (*fixture.Fixture, bool) {
	for _, f := range s.sched.Fixtures() {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

type fixtureView struct {
	Name          string   `json:"name"`
	Outputs       []int    `json:"outputs"`
	ActiveProgram string   `json:"active_program"`
	Programs      []string `json:"programs"`
}

func describeFixture(f *fixture.Fixture) fixtureView {
	outputs := make([]int, 0, len(f.Outputs()))
	for a := range f.Outputs() {
		outputs = append(outputs, int(a))
	}
	return fixtureView{
		Name:          f.Name(),
		Outputs:       outputs,
		ActiveProgram: f.ActiveName(),
		Programs:      f.CatalogNames(),
	}
}

func (s *Server) listFixtures(w http.ResponseWriter, r *http.Request) {
	fixtures := s.sched.Fixtures()
	out := make([]fixtureView, 0, len(fixtures))
	for _, f := range fixtures {
		out = append(out, describeFixture(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getFixture(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fixtureByName(r.PathValue("fixture"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	}
	writeJSON(w, http.StatusOK, describeFixture(f))
}

type programView struct {
	Name                string  `json:"name"`
	Priority            int     `json:"priority"`
	SlowMode            bool    `json:"slow_mode"`
	Enabled             bool    `json:"enabled"`
	Active              bool    `json:"active"`
	State               string  `json:"state,omitempty"`
	ConsecutiveFailures *int    `json:"consecutive_failures,omitempty"`
	Parameters          []string `json:"parameters,omitempty"`
}

func (s *Server) describeProgram(f *fixture.Fixture, name string, p program.Program) programView {
	v := programView{
		Name:       p.Name(),
		Priority:   p.Priority(),
		SlowMode:   p.SlowMode(),
		Enabled:    p.Enabled(),
		Active:     name == f.ActiveName(),
		Parameters: s.sched.Params().Names(name),
	}
	if d, ok := p.(diagnosable); ok {
		v.State = d.State()
		failures := d.ConsecutiveFailures()
		v.ConsecutiveFailures = &failures
	}
	return v
}

func (s *Server) listPrograms(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fixtureByName(r.PathValue("fixture"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	}
	names := f.CatalogNames()
	out := make([]programView, 0, len(names))
	for _, name := range names {
		p, ok := f.CatalogEntry(name)
		if !ok {
			continue
		}
		out = append(out, s.describeProgram(f, name, p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProgram(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fixtureByName(r.PathValue("fixture"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	}
	name := r.PathValue("program")
	p, ok := f.CatalogEntry(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown program")
		return
	}
	writeJSON(w, http.StatusOK, s.describeProgram(f, name, p))
}

type setActiveProgramRequest struct {
	Program string `json:"program"`
}

func (s *Server) setActiveProgram(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fixtureByName(r.PathValue("fixture"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	}
	var body setActiveProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Program == "" {
		writeError(w, http.StatusBadRequest, "request body must be {\"program\": \"<name>\"}")
		return
	}
	if _, ok := f.CatalogEntry(body.Program); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown program %q", body.Program))
		return
	}
	s.queueSwitch(w, f, body.Program)
}

func (s *Server) cycleActiveProgram(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fixtureByName(r.PathValue("fixture"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	}
	next, ok := f.NextCatalogName()
	if !ok {
		writeError(w, http.StatusConflict, "no eligible program to cycle to")
		return
	}
	s.queueSwitch(w, f, next)
}

func (s *Server) queueSwitch(w http.ResponseWriter, f *fixture.Fixture, name string) {
	accepted := s.sched.SubmitMutation(func(*scheduler.Scheduler) error {
		return f.RequestSwitch(name)
	})
	if !accepted {
		writeError(w, http.StatusServiceUnavailable, "control plane mutation queue full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"program": name})
}

func (s *Server) listParameters(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fixtureByName(r.PathValue("fixture"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	}
	progName := r.PathValue("program")
	if _, ok := f.CatalogEntry(progName); !ok {
		writeError(w, http.StatusNotFound, "unknown program")
		return
	}
	names := s.sched.Params().Names(progName)
	out := make([]parameterView, 0, len(names))
	for _, name := range names {
		v, ok := s.describeParameter(progName, name)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

type parameterView struct {
	Name    string  `json:"name"`
	Kind    string  `json:"kind"`
	Value   float64 `json:"value"`
	Lower   float64 `json:"lower,omitempty"`
	Upper   float64 `json:"upper,omitempty"`
	Levels  []param.DiscreteLevel `json:"levels,omitempty"`
}

func (s *Server) describeParameter(progName, name string) (parameterView, bool) {
	spec, err := s.sched.Params().Spec(progName, name)
	if err != nil {
		return parameterView{}, false
	}
	value, err := s.sched.Params().Get(progName, name)
	if err != nil {
		return parameterView{}, false
	}
	v := parameterView{Name: name, Value: value}
	switch spec.Kind {
	case param.KindDiscrete:
		v.Kind = "discrete"
		v.Levels = spec.Levels
	case param.KindContinuous:
		v.Kind = "continuous"
		v.Lower = spec.Lower
		v.Upper = spec.Upper
	}
	return v, true
}

func (s *Server) getParameter(w http.ResponseWriter, r *http.Request) {
	progName := r.PathValue("program")
	paramName := r.PathValue("param")
	if f, ok := s.fixtureByName(r.PathValue("fixture")); !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	} else if _, ok := f.CatalogEntry(progName); !ok {
		writeError(w, http.StatusNotFound, "unknown program")
		return
	}
	v, ok := s.describeParameter(progName, paramName)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown parameter")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type setParameterRequest struct {
	Value float64 `json:"value"`
}

func (s *Server) setParameter(w http.ResponseWriter, r *http.Request) {
	progName := r.PathValue("program")
	paramName := r.PathValue("param")
	f, ok := s.fixtureByName(r.PathValue("fixture"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	}
	if _, ok := f.CatalogEntry(progName); !ok {
		writeError(w, http.StatusNotFound, "unknown program")
		return
	}
	var body setParameterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be {\"value\": <number>}")
		return
	}
	ch := s.sched.Params().QueueForeignSet(progName, paramName, body.Value)
	s.awaitParamResult(w, ch)
}

func (s *Server) cycleParameter(w http.ResponseWriter, r *http.Request) {
	progName := r.PathValue("program")
	paramName := r.PathValue("param")
	f, ok := s.fixtureByName(r.PathValue("fixture"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown fixture")
		return
	}
	if _, ok := f.CatalogEntry(progName); !ok {
		writeError(w, http.StatusNotFound, "unknown program")
		return
	}
	ch := s.sched.Params().QueueForeignIncrement(progName, paramName, 1)
	s.awaitParamResult(w, ch)
}

// awaitParamResult blocks, up to mutationWait, for the tick boundary that
// applies a queued parameter mutation, so the HTTP caller gets a
// synchronous validation result rather than an unconditional 202.
func (s *Server) awaitParamResult(w http.ResponseWriter, ch <-chan error) {
	select {
	case err := <-ch:
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case <-time.After(s.mutationWait):
		writeError(w, http.StatusGatewayTimeout, "timed out waiting for tick boundary")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
