package checker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"verisync/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestGetComponents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/components" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req["uri"] != "a.lus" {
			t.Errorf("expected uri a.lus, got %q", req["uri"])
		}
		json.NewEncoder(w).Encode([]model.ComponentDescriptor{
			{File: "a.lus", Name: "top", StartLine: 3},
		})
	})

	got, err := client.GetComponents(context.Background(), "a.lus")
	if err != nil {
		t.Fatalf("GetComponents failed: %v", err)
	}
	expected := []model.ComponentDescriptor{{File: "a.lus", Name: "top", StartLine: 3}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %+v, got %+v", expected, got)
	}
}

func TestCheckDecodesResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]model.ComponentResult{{
			Name: "top",
			Analyses: []model.AnalysisResult{{
				Abstract: []string{"sub"},
				Properties: []model.PropertyResult{{
					Name: "p1", Line: 5, File: "a.lus", Answer: model.Answer{Value: "valid"},
				}},
			}},
		}})
	})

	got, err := client.Check(context.Background(), "a.lus", "top")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "top" {
		t.Fatalf("unexpected results: %+v", got)
	}
	if got[0].Analyses[0].Properties[0].Answer.Value != "valid" {
		t.Errorf("verdict lost in decoding: %+v", got[0].Analyses[0])
	}
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parse error in a.lus", http.StatusInternalServerError)
	})

	_, err := client.Check(context.Background(), "a.lus", "top")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestCheckObservesCancellation(t *testing.T) {
	blocked := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	})
	t.Cleanup(func() { close(blocked) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Check(ctx, "a.lus", "top")
		done <- err
	}()
	cancel()

	if err := <-done; err == nil {
		t.Error("expected cancellation error")
	}
}

func TestInterpretAndRawCommand(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/interpret":
			json.NewEncoder(w).Encode(map[string]string{"result": "trace"})
		case "/counterexample":
			json.NewEncoder(w).Encode(map[string]string{"result": "cex"})
		case "/raw":
			json.NewEncoder(w).Encode([]string{"checker", "--check", "a.lus"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	out, err := client.Interpret(ctx, "a.lus", "top", "{}")
	if err != nil || out != "trace" {
		t.Errorf("Interpret returned %q, %v", out, err)
	}

	cex, err := client.CounterExample(ctx, "a.lus", "top", []string{"s"}, nil, "p1")
	if err != nil || cex != "cex" {
		t.Errorf("CounterExample returned %q, %v", cex, err)
	}

	cmd, err := client.GetRawCommand(ctx, "a.lus", "top")
	if err != nil || !reflect.DeepEqual(cmd, []string{"checker", "--check", "a.lus"}) {
		t.Errorf("GetRawCommand returned %v, %v", cmd, err)
	}
}
