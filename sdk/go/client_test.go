package foodbridgesdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMatchSendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/sessions/s1/match" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer: %q", r.Header.Get("Authorization"))
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["ngo_id"] != "2" {
			t.Errorf("unexpected body %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"s1","state":"matched","match":{"match_score":90,"recommended_action":"Approve"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	s, err := c.Match(context.Background(), "s1", "2")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if s.State != "matched" || s.Match == nil || s.Match.MatchScore != 90 {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestErrorEnvelopeIsParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"invalid_transition","message":"invalid session transition idle -> routing"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Route(context.Background(), "s1")
	if !IsCode(err, "invalid_transition") {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
}
