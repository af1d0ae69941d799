package foodbridgesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a minimal FoodBridge HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  30 * time.Second,
	}
}

// Donation is the classifier's verdict (partial).
type Donation struct {
	FoodName     string   `json:"food_name"`
	Category     string   `json:"category"`
	WeightKg     *float64 `json:"weight_kg,omitempty"`
	SafetyFlag   bool     `json:"safety_flag"`
	SafetyReason string   `json:"safety_reason"`
	Allergens    []string `json:"allergens"`
}

// MatchResult is a score against one NGO request.
type MatchResult struct {
	MatchScore        int    `json:"match_score"`
	Reason            string `json:"reason"`
	RecommendedAction string `json:"recommended_action"`
}

// Delivery is one tracking snapshot.
type Delivery struct {
	TrackingID       string  `json:"tracking_id"`
	Status           string  `json:"status"`
	Label            string  `json:"label"`
	Progress         float64 `json:"progress"`
	ETAMinutes       int     `json:"eta_minutes"`
	VerificationOpen bool    `json:"verification_open"`
}

// Failure describes why a session landed in the error state.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Session is the server's view of one donation flow (partial).
type Session struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"owner_id"`
	State         string       `json:"state"`
	Busy          bool         `json:"busy"`
	Actions       []string     `json:"actions"`
	Donation      *Donation    `json:"donation,omitempty"`
	Match         *MatchResult `json:"match,omitempty"`
	Delivery      *Delivery    `json:"delivery,omitempty"`
	PointsAwarded int          `json:"points_awarded,omitempty"`
	Error         *Failure     `json:"error,omitempty"`
}

// SafetyCheck carries checklist edits; nil fields are left unchanged.
type SafetyCheck struct {
	PrepTime           *string `json:"prep_time,omitempty"`
	Temperature        *string `json:"temperature,omitempty"`
	IsCovered          *bool   `json:"is_covered,omitempty"`
	IsPacked           *bool   `json:"is_packed,omitempty"`
	AgreesToCompliance *bool   `json:"agrees_to_compliance,omitempty"`
	ShelfLife          *int    `json:"shelf_life,omitempty"`
	UTCOffsetMinutes   *int    `json:"utc_offset_minutes,omitempty"`
}

// Profile is a stored user profile (partial).
type Profile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	RewardPoints int      `json:"reward_points"`
	Badges       []string `json:"badges"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StartSession opens a donation session owned by the caller.
func (c *Client) StartSession(ctx context.Context) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions", nil, &resp)
	return resp, err
}

func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, c.sessionPath(id, ""), nil, &resp)
	return resp, err
}

// SubmitImage uploads a photo. A failed classification comes back as a
// session in the error state, not as an error.
func (c *Client) SubmitImage(ctx context.Context, id string, image []byte, contentType string) (Session, error) {
	body := map[string]any{"image": image, "content_type": contentType}
	var resp Session
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "image"), body, &resp)
	return resp, err
}

func (c *Client) UpdateSafetyCheck(ctx context.Context, id string, check SafetyCheck) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPatch, c.sessionPath(id, "safety-check"), check, &resp)
	return resp, err
}

func (c *Client) SubmitSafetyCheck(ctx context.Context, id string) (Session, error) {
	return c.step(ctx, id, "safety-check/submit", nil)
}

func (c *Client) Route(ctx context.Context, id string) (Session, error) {
	return c.step(ctx, id, "route", nil)
}

func (c *Client) Match(ctx context.Context, id, ngoID string) (Session, error) {
	return c.step(ctx, id, "match", map[string]any{"ngo_id": ngoID})
}

func (c *Client) StartDelivery(ctx context.Context, id string) (Session, error) {
	return c.step(ctx, id, "delivery", nil)
}

func (c *Client) Accept(ctx context.Context, id string) (Session, error) {
	return c.step(ctx, id, "verification/accept", map[string]any{"odor": true, "visual": true, "temperature": true})
}

// Reject records a spoiled delivery. reason is one of "Mold/Fungus",
// "Bad Odor" or "Texture/Discoloration".
func (c *Client) Reject(ctx context.Context, id, reason string) (Session, error) {
	return c.step(ctx, id, "verification/reject", map[string]any{"reason": reason})
}

func (c *Client) Reset(ctx context.Context, id string) (Session, error) {
	return c.step(ctx, id, "reset", nil)
}

// StreamDelivery calls fn with each delivery snapshot until the server
// closes the stream, fn returns false or ctx is done.
func (c *Client) StreamDelivery(ctx context.Context, id string, fn func(Delivery) bool) error {
	u, err := url.Parse(c.base() + "/" + c.path(c.sessionPath(id, "delivery/stream")))
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	c.authorize(header)
	conn, res, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if res != nil {
			return apiErrorFrom(res)
		}
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var snap Delivery
		if err := conn.ReadJSON(&snap); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !fn(snap) {
			return nil
		}
	}
}

func (c *Client) SaveProfile(ctx context.Context, name, role string) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodPost, "profiles", map[string]any{"name": name, "role": role}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) step(ctx context.Context, id, action string, body any) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, action), body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + c.path(endpoint)
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiErrorFrom(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) authorize(h http.Header) {
	switch {
	case c.BearerToken != "":
		h.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		h.Set("X-Api-Key", c.APIKey)
	}
}

func apiErrorFrom(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

// IsCode reports whether err is an APIError with the given envelope code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) sessionPath(id, action string) string {
	p := "sessions/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) path(p string) string {
	base := strings.Trim(c.BasePath, "/")
	p = strings.TrimLeft(p, "/")
	if base == "" {
		return p
	}
	return base + "/" + p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
