package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"foodbridge/internal/delivery"
	"foodbridge/internal/domain"
	"foodbridge/internal/logistics"
	"foodbridge/internal/safety"
	"foodbridge/internal/verification"
)

// State is the position of a donation session in the pipeline.
type State string

const (
	StateIdle               State = "idle"
	StateAnalyzing          State = "analyzing"
	StateSafetyCheck        State = "safety_check"
	StateRejectedUnsafe     State = "rejected_unsafe"
	StateError              State = "error"
	StateRouting            State = "routing"
	StateMatching           State = "matching"
	StateMatched            State = "matched"
	StateDirectDistribution State = "direct_distribution"
	StateDistributed        State = "distributed"
	StateInTransit          State = "in_transit"
	StateVerifying          State = "verifying"
	StateAccepted           State = "accepted"
	StateRejected           State = "rejected"
)

// Terminal states only leave through reset.
func (s State) Terminal() bool {
	switch s {
	case StateRejectedUnsafe, StateError, StateDistributed, StateAccepted, StateRejected:
		return true
	}
	return false
}

// Actions a client may offer in a given session.
const (
	ActionUploadImage       = "upload_image"
	ActionEditSafetyCheck   = "edit_safety_check"
	ActionSubmitSafetyCheck = "submit_safety_check"
	ActionRoute             = "route"
	ActionMatch             = "match"
	ActionStartDelivery     = "start_delivery"
	ActionDistributeLocally = "distribute_locally"
	ActionCompleteLocal     = "complete_distribution"
	ActionCancelDelivery    = "cancel_delivery"
	ActionAccept            = "accept"
	ActionReject            = "reject"
	ActionReset             = "reset"
)

// ErrStale reports a remote result that arrived after the session was reset.
var ErrStale = errors.New("session was reset while the request was in flight")

// TransitionError is an action attempted from the wrong state.
type TransitionError struct {
	From State
	To   State
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}

func ensureSessionTransition(from, to State) error {
	switch from {
	case StateIdle:
		if to == StateAnalyzing {
			return nil
		}
	case StateAnalyzing:
		if to == StateSafetyCheck || to == StateRejectedUnsafe || to == StateError {
			return nil
		}
	case StateSafetyCheck:
		if to == StateRouting {
			return nil
		}
	case StateRouting:
		if to == StateMatching || to == StateDirectDistribution {
			return nil
		}
	case StateMatching:
		if to == StateMatched || to == StateError {
			return nil
		}
	case StateMatched:
		if to == StateMatched || to == StateInTransit || to == StateDirectDistribution || to == StateError {
			return nil
		}
	case StateDirectDistribution:
		if to == StateDistributed {
			return nil
		}
	case StateInTransit:
		if to == StateVerifying || to == StateMatched {
			return nil
		}
	case StateVerifying:
		if to == StateAccepted || to == StateRejected || to == StateMatched {
			return nil
		}
	}
	return TransitionError{From: from, To: to}
}

type ImageInfo struct {
	MIMEType       string `json:"mime_type"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Bytes          int    `json:"bytes"`
	Compressed     bool   `json:"compressed"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	ArchiveKey     string `json:"archive_key,omitempty"`
	// Preview is a data: URI of the bytes sent to the classifier.
	Preview string `json:"preview,omitempty"`
}

type Failure struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// Session holds one donation flow in memory. All fields are guarded by mu.
type Session struct {
	mu sync.Mutex

	id        string
	ownerID   string
	createdAt time.Time
	state     State
	gen       int
	busy      bool

	image        *ImageInfo
	donation     *domain.Donation
	checklist    *safety.Checklist
	safetyData   *domain.SafetyCheckData
	decision     *logistics.Decision
	ngo          *domain.NgoRequest
	match        *domain.MatchResult
	sim          *delivery.Simulator
	arrivedSent  bool
	verification *domain.Verification
	diversion    *verification.Diversion
	awarded      int
	failure      *Failure
}

func (s *Session) clear() {
	if s.sim != nil {
		s.sim.Stop()
	}
	s.gen++
	s.state = StateIdle
	s.busy = false
	s.image = nil
	s.donation = nil
	s.checklist = nil
	s.safetyData = nil
	s.decision = nil
	s.ngo = nil
	s.match = nil
	s.sim = nil
	s.arrivedSent = false
	s.verification = nil
	s.diversion = nil
	s.awarded = 0
	s.failure = nil
}

func (s *Session) transition(to State) error {
	if err := ensureSessionTransition(s.state, to); err != nil {
		return err
	}
	s.state = to
	return nil
}

// SessionStore keeps live sessions. Nothing here is persisted.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]*Session{}}
}

func (st *SessionStore) put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.id] = s
}

func (st *SessionStore) get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, domain.ErrSessionUnknown
	}
	return s, nil
}

func (st *SessionStore) remove(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	return s, ok
}

func (st *SessionStore) list() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}

// Len reports the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// SessionView is the read model of a session.
type SessionView struct {
	ID            string                  `json:"id"`
	OwnerID       string                  `json:"owner_id"`
	State         State                   `json:"state"`
	CreatedAt     string                  `json:"created_at" format:"date-time"`
	Busy          bool                    `json:"busy"`
	Actions       []string                `json:"actions"`
	Image         *ImageInfo              `json:"image,omitempty"`
	Donation      *domain.Donation        `json:"donation,omitempty"`
	SafetyCheck   *safety.View            `json:"safety_check,omitempty"`
	Routing       *logistics.Decision     `json:"routing,omitempty"`
	NGO           *domain.NgoRequest      `json:"ngo,omitempty"`
	Match         *domain.MatchResult     `json:"match,omitempty"`
	Delivery      *delivery.Snapshot      `json:"delivery,omitempty"`
	Verification  *domain.Verification    `json:"verification,omitempty"`
	Diversion     *verification.Diversion `json:"diversion,omitempty"`
	PointsAwarded int                     `json:"points_awarded,omitempty"`
	Error         *Failure                `json:"error,omitempty"`
	Notice        string                  `json:"notice,omitempty"`
}

func (e Engine) view(s *Session) SessionView {
	v := SessionView{
		ID:            s.id,
		OwnerID:       s.ownerID,
		State:         s.state,
		CreatedAt:     s.createdAt.UTC().Format(time.RFC3339),
		Busy:          s.busy,
		Actions:       e.actions(s),
		Image:         s.image,
		Donation:      s.donation,
		Routing:       s.decision,
		NGO:           s.ngo,
		Match:         s.match,
		Verification:  s.verification,
		Diversion:     s.diversion,
		PointsAwarded: s.awarded,
		Error:         s.failure,
	}
	if s.checklist != nil {
		cv := s.checklist.View()
		v.SafetyCheck = &cv
	}
	if s.sim != nil {
		snap := s.sim.Snapshot()
		v.Delivery = &snap
	}
	return v
}

// actions lists what the client may do next.
func (e Engine) actions(s *Session) []string {
	out := []string{}
	switch s.state {
	case StateIdle:
		out = append(out, ActionUploadImage)
	case StateSafetyCheck:
		out = append(out, ActionEditSafetyCheck)
		if s.checklist != nil && s.checklist.State() == safety.StateValid {
			out = append(out, ActionSubmitSafetyCheck)
		}
	case StateRouting:
		out = append(out, ActionRoute)
	case StateMatching:
		if !s.busy {
			out = append(out, ActionMatch)
		}
	case StateMatched:
		if !s.busy {
			out = append(out, ActionMatch)
		}
		if e.deliverable(s) == nil {
			out = append(out, ActionStartDelivery)
		}
		if e.escapeHatch(s) {
			out = append(out, ActionDistributeLocally)
		}
	case StateDirectDistribution:
		out = append(out, ActionCompleteLocal)
	case StateInTransit:
		out = append(out, ActionCancelDelivery)
	case StateVerifying:
		out = append(out, ActionAccept, ActionReject, ActionCancelDelivery)
	}
	if s.state != StateIdle {
		out = append(out, ActionReset)
	}
	return out
}

// deliverable enforces the gate: safe verdict, submitted checklist, NGO
// route and an approving match.
func (e Engine) deliverable(s *Session) error {
	switch {
	case s.donation == nil || !s.donation.SafetyFlag:
		return errors.New("donation was not classified safe")
	case s.safetyData == nil:
		return errors.New("safety checklist not submitted")
	case s.decision == nil || s.decision.Route != logistics.RouteNGOMatching:
		return errors.New("donation is not routed to NGO matching")
	case s.ngo == nil || s.match == nil:
		return errors.New("no NGO match yet")
	case s.match.RecommendedAction != domain.ActionApprove:
		return fmt.Errorf("match recommends %s; only Approve starts a delivery", s.match.RecommendedAction)
	}
	return nil
}

func (e Engine) escapeHatch(s *Session) bool {
	return s.match != nil && s.match.MatchScore < e.Config.Matching.EscapeHatchBelow
}
