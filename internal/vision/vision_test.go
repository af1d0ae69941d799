package vision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"foodbridge/internal/config"
	"foodbridge/internal/domain"
	"foodbridge/internal/logger"
	"foodbridge/internal/netwatch"
)

const biryani = `{"food_name":"Chicken Biryani","category":"Non-Veg","quantity_estimate":"Feeds 4-5 people","weight_kg":2.5,"freshness_status":"Fresh","safety_flag":true,"safety_reason":"Freshly cooked","expiry_window":"Consume within 4 hours","allergens":["dairy"]}`

func geminiReply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}}},
	})
	return string(b)
}

type fakeGemini struct {
	calls int32
	body  map[string]any
	reply string
	delay time.Duration
	code  int
}

func (f *fakeGemini) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.calls, 1)
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &f.body)
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		if f.code != 0 {
			w.WriteHeader(f.code)
			io.WriteString(w, `{"error":{"message":"quota exceeded"}}`)
			return
		}
		io.WriteString(w, geminiReply(f.reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClassifier(url, key string, status netwatch.Status, timeout time.Duration) *Classifier {
	gen := NewGeminiClient(url, key, "gemini-test", logger.Discard())
	return NewClassifier(gen, "system prompt", "", status, timeout, logger.Discard())
}

func TestClassifyGemini(t *testing.T) {
	fake := &fakeGemini{reply: "```json\n" + biryani + "\n```"}
	srv := fake.server(t)
	c := newClassifier(srv.URL, "secret", netwatch.Static(true), time.Second)
	d, err := c.Classify(context.Background(), []byte{0xff, 0xd8}, "image/jpeg")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.FoodName != "Chicken Biryani" || d.Category != domain.CategoryNonVeg || !d.SafetyFlag {
		t.Fatalf("unexpected donation %+v", d)
	}
	if d.WeightKg == nil || *d.WeightKg != 2.5 {
		t.Fatalf("unexpected weight %v", d.WeightKg)
	}
	gen, _ := fake.body["generationConfig"].(map[string]any)
	if gen["responseMimeType"] != "application/json" || gen["responseSchema"] == nil {
		t.Fatalf("expected constrained json request, got %v", gen)
	}
	contents := fake.body["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	inline := parts[0].(map[string]any)["inlineData"].(map[string]any)
	if inline["mimeType"] != "image/jpeg" || inline["data"] != "/9g=" {
		t.Fatalf("unexpected inline data %v", inline)
	}
}

func TestClassifyIsNotCached(t *testing.T) {
	fake := &fakeGemini{reply: biryani}
	srv := fake.server(t)
	c := newClassifier(srv.URL, "secret", netwatch.Static(true), time.Second)
	for i := 0; i < 2; i++ {
		if _, err := c.Classify(context.Background(), []byte("img"), "image/jpeg"); err != nil {
			t.Fatalf("classify %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&fake.calls); n != 2 {
		t.Fatalf("expected 2 remote calls, got %d", n)
	}
}

func TestClassifyOfflineMakesNoCall(t *testing.T) {
	fake := &fakeGemini{reply: biryani}
	srv := fake.server(t)
	c := newClassifier(srv.URL, "secret", netwatch.Static(false), time.Second)
	_, err := c.Classify(context.Background(), []byte("img"), "image/jpeg")
	if domain.KindOf(err) != domain.KindNoConnectivity {
		t.Fatalf("expected no_connectivity, got %v", err)
	}
	if atomic.LoadInt32(&fake.calls) != 0 {
		t.Fatalf("no call expected while offline")
	}
}

func TestClassifyMissingKey(t *testing.T) {
	fake := &fakeGemini{reply: biryani}
	srv := fake.server(t)
	c := newClassifier(srv.URL, "", netwatch.Static(true), time.Second)
	_, err := c.Classify(context.Background(), []byte("img"), "image/jpeg")
	if domain.KindOf(err) != domain.KindConfiguration {
		t.Fatalf("expected configuration_error, got %v", err)
	}
	if atomic.LoadInt32(&fake.calls) != 0 {
		t.Fatalf("no call expected without key")
	}
}

func TestClassifyMalformedHidesRawText(t *testing.T) {
	raw := strings.Replace(biryani, `"Non-Veg"`, `"Meat"`, 1)
	fake := &fakeGemini{reply: raw}
	srv := fake.server(t)
	var logs strings.Builder
	gen := NewGeminiClient(srv.URL, "secret", "gemini-test", logger.Discard())
	c := NewClassifier(gen, "system", "", netwatch.Static(true), time.Second, logger.New(logger.LevelNormal, &logs))
	_, err := c.Classify(context.Background(), []byte("img"), "image/jpeg")
	if domain.KindOf(err) != domain.KindMalformedResponse {
		t.Fatalf("expected malformed_response, got %v", err)
	}
	pe, ok := err.(*domain.PipelineError)
	if !ok {
		t.Fatalf("expected *domain.PipelineError, got %T", err)
	}
	if strings.Contains(pe.Message, "Chicken") {
		t.Fatalf("user message must not carry the raw response: %q", pe.Message)
	}
	if !strings.Contains(logs.String(), "Chicken Biryani") {
		t.Fatalf("raw response should be logged")
	}
}

func TestClassifyRemoteError(t *testing.T) {
	fake := &fakeGemini{code: http.StatusTooManyRequests}
	srv := fake.server(t)
	c := newClassifier(srv.URL, "secret", netwatch.Static(true), time.Second)
	_, err := c.Classify(context.Background(), []byte("img"), "image/jpeg")
	if domain.KindOf(err) != domain.KindRemote {
		t.Fatalf("expected remote_error, got %v", err)
	}
}

func TestClassifyTimeout(t *testing.T) {
	fake := &fakeGemini{reply: biryani, delay: 2 * time.Second}
	srv := fake.server(t)
	c := newClassifier(srv.URL, "secret", netwatch.Static(true), 50*time.Millisecond)
	_, err := c.Classify(context.Background(), []byte("img"), "image/jpeg")
	if domain.KindOf(err) != domain.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestDecodeDonation(t *testing.T) {
	d, err := DecodeDonation(strings.Replace(biryani, `"weight_kg":2.5`, `"weight_kg":null`, 1))
	if err != nil || d.WeightKg != nil {
		t.Fatalf("null weight should decode as missing: %v %v", err, d.WeightKg)
	}
	d, err = DecodeDonation(strings.Replace(biryani, `"Non-Veg"`, `"non-veg"`, 1))
	if err != nil || d.Category != domain.CategoryNonVeg {
		t.Fatalf("category should be case-insensitive: %v", err)
	}
	bad := []string{
		strings.Replace(biryani, `"weight_kg":2.5`, `"weight_kg":-1`, 1),
		strings.Replace(biryani, `,"allergens":["dairy"]`, ``, 1),
		strings.Replace(biryani, `"safety_flag":true`, `"safety_flag":"yes"`, 1),
		strings.Replace(biryani, `"weight_kg":2.5`, `"weight_kg":"heavy"`, 1),
		`[1,2,3]`,
		`not json`,
	}
	for _, b := range bad {
		if _, err := DecodeDonation(b); err == nil {
			t.Fatalf("expected error for %s", b)
		}
	}
}

func TestDecodeMatch(t *testing.T) {
	m, err := DecodeMatch("```json\n{\"match_score\":92,\"reason\":\"great\",\"recommended_action\":\"Approve\"}\n```")
	if err != nil || m.MatchScore != 92 || m.RecommendedAction != domain.ActionApprove {
		t.Fatalf("unexpected match %+v %v", m, err)
	}
	bad := []string{
		`{"match_score":92.5,"reason":"x","recommended_action":"Approve"}`,
		`{"match_score":101,"reason":"x","recommended_action":"Approve"}`,
		`{"match_score":90,"reason":"x","recommended_action":"Maybe"}`,
		`{"match_score":90,"recommended_action":"Approve"}`,
	}
	for _, b := range bad {
		if _, err := DecodeMatch(b); err == nil {
			t.Fatalf("expected error for %s", b)
		}
	}
}

func TestScoreOpenAI(t *testing.T) {
	var got payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"match_score\":95,\"reason\":\"perfect\",\"recommended_action\":\"Approve\"}"}}]}`)
	}))
	defer srv.Close()

	gen := NewOpenAIClient(srv.URL, "sk-test", logger.Discard(), WithModel("gpt-4o-mini"))
	s := NewScorer(gen, "match system", netwatch.Static(true), time.Second, logger.Discard())
	ngo := domain.NgoRequest{ID: "4", OrganizationName: "Shanti Orphanage", RequiredDiet: domain.DietVeg, RequiredQuantity: 50, DistanceKm: 5}
	res, err := s.Score(context.Background(), domain.Donation{FoodName: "Dal", Category: domain.CategoryVeg}, ngo)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if res.MatchScore != 95 || res.RecommendedAction != domain.ActionApprove {
		t.Fatalf("unexpected result %+v", res)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" || got.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected payload %+v", got)
	}
	prompt := got.Messages[1].Content[0].Text
	if !strings.HasPrefix(prompt, `Donation: {"item":"Dal"`) || !strings.Contains(prompt, `NGO Request: {"id":"4"`) {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	if !strings.Contains(got.Messages[0].Content[0].Text, "recommended_action") {
		t.Fatalf("system prompt should list the response keys")
	}
}

func TestOpenAIImageBlock(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"choices":[{"message":{"content":`+strconvQuote(biryani)+`}}]}`)
	}))
	defer srv.Close()
	gen := NewOpenAIClient(srv.URL, "sk-test", logger.Discard())
	c := NewClassifier(gen, "sys", "look", netwatch.Static(true), time.Second, logger.Discard())
	if _, err := c.Classify(context.Background(), []byte("abc"), "image/jpeg"); err != nil {
		t.Fatalf("classify: %v", err)
	}
	img := got.Messages[1].Content[0]
	if img.Type != "image_url" || img.ImageURL.URL != "data:image/jpeg;base64,YWJj" {
		t.Fatalf("unexpected image block %+v", img)
	}
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNewGenerator(t *testing.T) {
	cfg := config.Default().AI
	g, err := NewGenerator(cfg, "k", logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*GeminiClient); !ok {
		t.Fatalf("expected gemini client, got %T", g)
	}
	cfg.Provider = "openai"
	g, _ = NewGenerator(cfg, "k", logger.Discard())
	oc, ok := g.(*OpenAIClient)
	if !ok || oc.endpoint != defaultOpenAIEndpoint {
		t.Fatalf("expected default openai endpoint, got %T", g)
	}
	cfg.Provider = "llama"
	if _, err := NewGenerator(cfg, "k", logger.Discard()); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
