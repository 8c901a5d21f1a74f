package sink

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mrd0ll4r/kaleidoscope/internal/address"
)

func TestSinkPostsVectorAsJSON(t *testing.T) {
	var mu sync.Mutex
	var got map[string]float64
	received := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = body
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		select {
		case received <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()

	s := New(Config{Endpoint: srv.URL, FlushInterval: time.Millisecond})
	defer s.Close()

	s.Submit(map[address.Addr]address.Value{1: 1000, 2: 2000})

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for POST")
	}

	mu.Lock()
	defer mu.Unlock()
	if got["1"] != 1000 || got["2"] != 2000 {
		t.Fatalf("got %v, want {1:1000, 2:2000}", got)
	}
}

func TestSinkToleratesEndpointErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(Config{Endpoint: srv.URL, FlushInterval: time.Millisecond})
	defer s.Close()

	// Submit must not panic or block despite the endpoint always failing.
	s.Submit(map[address.Addr]address.Value{1: 1})
	time.Sleep(20 * time.Millisecond)
}

func TestEncodeVectorDeterministicOrder(t *testing.T) {
	got := string(encodeVector(map[address.Addr]address.Value{3: 30, 1: 10, 2: 20}))
	want := `{"1":10,"2":20,"3":30}`
	if got != want {
		t.Fatalf("encodeVector = %s, want %s", got, want)
	}
}

func TestEncodeVectorEmpty(t *testing.T) {
	if got := string(encodeVector(nil)); got != "{}" {
		t.Fatalf("encodeVector(nil) = %s, want {}", got)
	}
}
