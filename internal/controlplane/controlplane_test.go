package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/fixture"
	"github.com/mrd0ll4r/kaleidoscope/internal/global"
	"github.com/mrd0ll4r/kaleidoscope/internal/param"
	"github.com/mrd0ll4r/kaleidoscope/internal/scheduler"
)

type discardSink struct{}

func (discardSink) Submit(map[address.Addr]address.Value) {}

func newTestServer(t *testing.T) (*Server, *fixture.Fixture, *scheduler.Scheduler, func()) {
	t.Helper()
	outs := []address.Addr{1}
	f := fixture.New("stage", outs)

	off := fixture.NewOff("off", 1, outs)
	if err := f.Register(off); err != nil {
		t.Fatalf("register off: %v", err)
	}
	params := param.NewRegistry()
	manual, err := fixture.NewManual("manual", 1, outs, params)
	if err != nil {
		t.Fatalf("NewManual: %v", err)
	}
	if err := f.Register(manual); err != nil {
		t.Fatalf("register manual: %v", err)
	}
	if err := f.SetActive("off"); err != nil {
		t.Fatalf("set active: %v", err)
	}

	sched := scheduler.New(scheduler.Config{
		Space:    address.NewSpace(),
		Globals:  global.NewStore(),
		Params:   params,
		Fixtures: []*fixture.Fixture{f},
		Sink:     discardSink{},
	}, scheduler.WithTickRate(2*time.Millisecond), scheduler.WithDrainWindow(100*time.Microsecond))

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)

	srv := New(sched, nil)
	return srv, f, sched, cancel
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListFixtures(t *testing.T) {
	srv, _, _, cancel := newTestServer(t)
	defer cancel()

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/fixtures", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var out []fixtureView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Name != "stage" {
		t.Fatalf("got %+v", out)
	}
}

func TestGetFixtureUnknown(t *testing.T) {
	srv, _, _, cancel := newTestServer(t)
	defer cancel()

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/fixtures/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListPrograms(t *testing.T) {
	srv, _, _, cancel := newTestServer(t)
	defer cancel()

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/fixtures/stage/programs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var out []programView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d programs, want 2: %+v", len(out), out)
	}
}

func TestSetActiveProgramSwitchesFixture(t *testing.T) {
	srv, f, _, cancel := newTestServer(t)
	defer cancel()

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/fixtures/stage/set_active_program", setActiveProgramRequest{Program: "manual"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body=%s", rec.Code, rec.Body.String())
	}

	deadline := time.After(time.Second)
	for f.ActiveName() != "manual" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for fixture switch to apply")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSetActiveProgramUnknownProgram(t *testing.T) {
	srv, _, _, cancel := newTestServer(t)
	defer cancel()

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/fixtures/stage/set_active_program", setActiveProgramRequest{Program: "bogus"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCycleActiveProgramSkipsManual(t *testing.T) {
	srv, f, _, cancel := newTestServer(t)
	defer cancel()
	_ = f

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/fixtures/stage/cycle_active_program", nil)
	// Catalog is {manual, off}; starting active is off, the only eligible
	// non-manual, non-active entry is... none (off is active, manual is
	// skipped) so cycling should report no eligible target.
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body=%s", rec.Code, rec.Body.String())
	}
}

func TestParameterReadWriteCycle(t *testing.T) {
	srv, f, _, cancel := newTestServer(t)
	defer cancel()

	// Switch to manual so the program whose parameter is written below is
	// the active one (NewManual already declared the parameter).
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/fixtures/stage/set_active_program", setActiveProgramRequest{Program: "manual"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("set_active_program status = %d", rec.Code)
	}
	deadline := time.After(time.Second)
	for f.ActiveName() != "manual" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for fixture switch")
		case <-time.After(time.Millisecond):
		}
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/fixtures/stage/programs/manual/parameters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list parameters status = %d; body=%s", rec.Code, rec.Body.String())
	}
	var params []parameterView
	if err := json.Unmarshal(rec.Body.Bytes(), &params); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(params) != 1 || params[0].Name != "output_1" {
		t.Fatalf("got %+v", params)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/fixtures/stage/programs/manual/parameters/output_1", setParameterRequest{Value: 42000})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set parameter status = %d; body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/fixtures/stage/programs/manual/parameters/output_1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get parameter status = %d", rec.Code)
	}
	var got parameterView
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Value != 42000 {
		t.Fatalf("value = %v, want 42000", got.Value)
	}
}

func TestSetParameterUnknownParameter(t *testing.T) {
	srv, _, _, cancel := newTestServer(t)
	defer cancel()

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/fixtures/stage/programs/manual/parameters/bogus", setParameterRequest{Value: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body=%s", rec.Code, rec.Body.String())
	}
}
