package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"foodbridge/internal/delivery"
	"foodbridge/internal/domain"
	"foodbridge/internal/events"
	"foodbridge/internal/intake"
	"foodbridge/internal/logistics"
	"foodbridge/internal/safety"
	"foodbridge/internal/verification"
)

const entitySession = "session"

const (
	violationAIUnsafe  = "AI Flagged Unsafe"
	violationNGOReject = "Reported Spoiled by NGO"
)

var (
	ErrNoDelivery     = errors.New("no delivery in progress")
	ErrNotDeliverable = errors.New("delivery not allowed")
	ErrNoEscapeHatch  = errors.New("match score is not low enough to distribute locally")
	errNoClassifier   = domain.NewPipelineError(domain.KindConfiguration, "AI classifier is not configured.", nil)
	errNoScorer       = domain.NewPipelineError(domain.KindConfiguration, "Match scorer is not configured.", nil)
)

// StartSession opens an idle donation flow for ownerID.
func (e Engine) StartSession(ctx context.Context, ownerID string) (SessionView, error) {
	if ownerID == "" {
		return SessionView{}, errors.New("owner_id required")
	}
	s := &Session{id: uuid.New().String(), ownerID: ownerID, createdAt: e.now(), state: StateIdle}
	if err := e.events().Append(ctx, nil, events.SessionStarted, entitySession, s.id, ownerID, nil); err != nil {
		return SessionView{}, err
	}
	e.Sessions.put(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.view(s), nil
}

func (e Engine) GetSession(ctx context.Context, id string) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refresh(s)
	return e.view(s), nil
}

// ResetSession discards everything and returns to intake. In-flight remote
// results are dropped when they land.
func (e Engine) ResetSession(ctx context.Context, id, actorID string) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.state
	s.clear()
	if err := e.events().Append(ctx, nil, events.SessionReset, entitySession, s.id, actorID, events.EventPayload{"from": string(from)}); err != nil {
		e.Log.Warn("session %s: reset event: %v", s.id, err)
	}
	return e.view(s), nil
}

// CloseSession stops any delivery and forgets the session.
func (e Engine) CloseSession(ctx context.Context, id string) error {
	s, ok := e.Sessions.remove(id)
	if !ok {
		return domain.ErrSessionUnknown
	}
	s.mu.Lock()
	s.clear()
	s.mu.Unlock()
	return nil
}

// StopAll halts every running delivery loop.
func (e Engine) StopAll() {
	for _, s := range e.Sessions.list() {
		s.mu.Lock()
		if s.sim != nil {
			s.sim.Stop()
		}
		s.mu.Unlock()
	}
}

// SubmitImage compresses the photo and asks the classifier for a verdict.
// Non-image uploads are ignored and leave the session untouched.
func (e Engine) SubmitImage(ctx context.Context, id, actorID string, data []byte, contentType string) (SessionView, error) {
	if err := e.requireConfig(); err != nil {
		return SessionView{}, err
	}
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	if s.state == StateAnalyzing {
		s.mu.Unlock()
		return SessionView{}, domain.ErrBusy
	}
	if !intake.IsImage(contentType) {
		v := e.view(s)
		s.mu.Unlock()
		return v, nil
	}
	if err := s.transition(StateAnalyzing); err != nil {
		v := e.view(s)
		s.mu.Unlock()
		return v, err
	}
	res, _ := intake.Compress(data, contentType, e.intakeOptions())
	s.busy = true
	gen := s.gen
	s.image = &ImageInfo{
		MIMEType:       res.MIMEType,
		Width:          res.Width,
		Height:         res.Height,
		Bytes:          len(res.Data),
		Compressed:     res.Compressed,
		FallbackReason: res.FallbackReason,
		Preview:        res.DataURI(),
	}
	s.mu.Unlock()

	var donation domain.Donation
	var cerr error
	if e.Classifier == nil {
		cerr = errNoClassifier
	} else {
		donation, cerr = e.Classifier.Classify(ctx, res.Data, res.MIMEType)
	}
	// evidence is archived only once the classifier was reachable
	var key string
	if cerr == nil {
		var aerr error
		if key, aerr = e.Archive.Put(ctx, id, res.Data, res.MIMEType); aerr != nil {
			e.Log.Warn("session %s: archive photo: %v", id, aerr)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return e.view(s), ErrStale
	}
	s.busy = false
	if key != "" && s.image != nil {
		s.image.ArchiveKey = key
	}
	if cerr != nil {
		return e.fail(ctx, s, actorID, cerr)
	}
	if !donation.SafetyFlag {
		return e.rejectUnsafe(ctx, s, actorID, donation)
	}
	payload := events.EventPayload{"food_name": donation.FoodName, "category": string(donation.Category)}
	if donation.WeightKg != nil {
		payload["weight_kg"] = *donation.WeightKg
	}
	if err := e.events().Append(ctx, nil, events.DonationClassified, entitySession, s.id, actorID, payload); err != nil {
		e.Log.Warn("session %s: classified event: %v", s.id, err)
	}
	if err := s.transition(StateSafetyCheck); err != nil {
		return e.view(s), err
	}
	s.donation = &donation
	s.checklist = safety.New(e.Config.Safety.MaxPrepHours, e.Config.Safety.MaxShelfLifeHours, e.now)
	return e.view(s), nil
}

// rejectUnsafe ends the flow on an unsafe verdict and records the violation.
func (e Engine) rejectUnsafe(ctx context.Context, s *Session, actorID string, d domain.Donation) (SessionView, error) {
	vio := e.violation(ctx, s.ownerID, violationAIUnsafe, domain.SeverityMedium)
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertDonationRecord(ctx, tx, e.donationRecord(s, d, domain.DonationRejected, d.SafetyReason)); err != nil {
			return err
		}
		if err := e.Repo.InsertViolation(ctx, tx, vio); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.DonationUnsafe, entitySession, s.id, actorID, events.EventPayload{
			"food_name": d.FoodName,
			"reason":    d.SafetyReason,
		})
	})
	if err != nil {
		s.donation = &d
		return e.fail(ctx, s, actorID, domain.NewPipelineError(domain.KindRemote, "Could not record the safety verdict. Please try again.", err))
	}
	if err := s.transition(StateRejectedUnsafe); err != nil {
		return e.view(s), err
	}
	s.donation = &d
	return e.view(s), nil
}

// fail ends the flow in error. The failure is reported through the view.
func (e Engine) fail(ctx context.Context, s *Session, actorID string, err error) (SessionView, error) {
	kind := domain.KindOf(err)
	if !kind.Remote() {
		kind = domain.KindRemote
	}
	msg := err.Error()
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	if terr := s.transition(StateError); terr != nil {
		return e.view(s), terr
	}
	e.Log.Warn("session %s: %v", s.id, err)
	s.failure = &Failure{Kind: kind, Message: msg}
	if aerr := e.events().Append(ctx, nil, events.DonationFailed, entitySession, s.id, actorID, events.EventPayload{
		"kind":    string(kind),
		"message": msg,
	}); aerr != nil {
		e.Log.Warn("session %s: failed event: %v", s.id, aerr)
	}
	return e.view(s), nil
}

// UpdateSafetyCheck applies the donor's edits. Input is kept even when a
// rule breaks; the view carries the inline messages.
func (e Engine) UpdateSafetyCheck(ctx context.Context, id string, u safety.Update) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSafetyCheck || s.checklist == nil {
		return e.view(s), TransitionError{From: s.state, To: StateSafetyCheck}
	}
	if _, err := s.checklist.Apply(u); err != nil {
		return e.view(s), err
	}
	return e.view(s), nil
}

func (e Engine) SubmitSafetyCheck(ctx context.Context, id, actorID string) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureSessionTransition(s.state, StateRouting); err != nil {
		return e.view(s), err
	}
	data, err := s.checklist.Submit()
	if err != nil {
		return e.view(s), err
	}
	if err := e.events().Append(ctx, nil, events.SafetyCheckSubmitted, entitySession, s.id, actorID, events.EventPayload{
		"prep_time":   data.PrepTime,
		"temperature": string(data.Temperature),
		"shelf_life":  data.ShelfLife,
	}); err != nil {
		e.Log.Warn("session %s: safety event: %v", s.id, err)
	}
	s.safetyData = &data
	s.state = StateRouting
	return e.view(s), nil
}

// Route applies the logistics threshold. Routing twice returns the stored
// decision.
func (e Engine) Route(ctx context.Context, id, actorID string) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision != nil && s.state != StateRouting {
		return e.view(s), nil
	}
	if s.state != StateRouting {
		return e.view(s), TransitionError{From: s.state, To: StateMatching}
	}
	dec := logistics.Plan(*s.donation, logistics.PolicyFromConfig(e.Config.Logistics), e.Config.Logistics.Hotspots)
	next := StateMatching
	if dec.Route == logistics.RouteDirect {
		next = StateDirectDistribution
	}
	if err := s.transition(next); err != nil {
		return e.view(s), err
	}
	if err := e.events().Append(ctx, nil, events.DonationRouted, entitySession, s.id, actorID, events.EventPayload{"route": string(dec.Route)}); err != nil {
		e.Log.Warn("session %s: routed event: %v", s.id, err)
	}
	s.decision = &dec
	return e.view(s), nil
}

// MatchNGO scores the donation against one catalog entry. Scoring again from
// matched replaces the previous result.
func (e Engine) MatchNGO(ctx context.Context, id, actorID, ngoID string) (SessionView, error) {
	if err := e.requireConfig(); err != nil {
		return SessionView{}, err
	}
	ngo, ok := e.Config.NGO(ngoID)
	if !ok {
		return SessionView{}, domain.ValidationError{Problems: []string{fmt.Sprintf("unknown ngo_id %q", ngoID)}}
	}
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return SessionView{}, domain.ErrBusy
	}
	if s.state != StateMatching && s.state != StateMatched {
		v := e.view(s)
		s.mu.Unlock()
		return v, TransitionError{From: s.state, To: StateMatched}
	}
	s.busy = true
	gen := s.gen
	donation := *s.donation
	s.mu.Unlock()

	var match domain.MatchResult
	var serr error
	if e.Scorer == nil {
		serr = errNoScorer
	} else {
		match, serr = e.Scorer.Score(ctx, donation, ngo)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return e.view(s), ErrStale
	}
	s.busy = false
	if serr != nil {
		return e.fail(ctx, s, actorID, serr)
	}
	if err := s.transition(StateMatched); err != nil {
		return e.view(s), err
	}
	if err := e.events().Append(ctx, nil, events.DonationMatched, entitySession, s.id, actorID, events.EventPayload{
		"ngo_id":             ngo.ID,
		"match_score":        match.MatchScore,
		"recommended_action": string(match.RecommendedAction),
	}); err != nil {
		e.Log.Warn("session %s: matched event: %v", s.id, err)
	}
	s.ngo = &ngo
	s.match = &match
	return e.view(s), nil
}

// DistributeLocally sends a poorly matched donation to the hotspots instead.
func (e Engine) DistributeLocally(ctx context.Context, id, actorID string) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureSessionTransition(s.state, StateDirectDistribution); err != nil {
		return e.view(s), err
	}
	if !e.escapeHatch(s) {
		return e.view(s), ErrNoEscapeHatch
	}
	dec := logistics.Decision{Route: logistics.RouteDirect}
	if s.decision != nil {
		dec.Rules = s.decision.Rules
	}
	dec.Message = fmt.Sprintf("Match score %d is below %d. Distribute at a nearby hotspot.", s.match.MatchScore, e.Config.Matching.EscapeHatchBelow)
	dec.Hotspots = append(dec.Hotspots, e.Config.Logistics.Hotspots...)
	if err := e.events().Append(ctx, nil, events.DonationRouted, entitySession, s.id, actorID, events.EventPayload{
		"route":       string(dec.Route),
		"match_score": s.match.MatchScore,
	}); err != nil {
		e.Log.Warn("session %s: routed event: %v", s.id, err)
	}
	s.state = StateDirectDistribution
	s.decision = &dec
	return e.view(s), nil
}

func (e Engine) CompleteDistribution(ctx context.Context, id, actorID string) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureSessionTransition(s.state, StateDistributed); err != nil {
		return e.view(s), err
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertDonationRecord(ctx, tx, e.donationRecord(s, *s.donation, domain.DonationDistributed, "")); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.DonationDistributed, entitySession, s.id, actorID, nil)
	})
	if err != nil {
		return e.view(s), err
	}
	s.state = StateDistributed
	return e.view(s), nil
}

// StartDelivery dispatches the matched donation. Only a safe, attested,
// NGO-routed donation with an approving match is dispatched.
func (e Engine) StartDelivery(ctx context.Context, id, actorID string) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ensureSessionTransition(s.state, StateInTransit); err != nil {
		return e.view(s), err
	}
	if err := e.deliverable(s); err != nil {
		return e.view(s), fmt.Errorf("%w: %v", ErrNotDeliverable, err)
	}
	sim := delivery.New(e.deliveryOptions(), delivery.TrackingID(rand.IntN(10000)), e.now, e.Log)
	sessionID, ngoID := s.id, s.ngo.ID
	sim.OnArrived = func(snap delivery.Snapshot) {
		if err := e.events().Append(context.Background(), nil, events.DeliveryArrived, entitySession, sessionID, actorID, events.EventPayload{
			"tracking_id": snap.TrackingID,
			"ngo_id":      ngoID,
		}); err != nil {
			e.Log.Warn("session %s: arrived event: %v", sessionID, err)
		}
	}
	if err := e.events().Append(ctx, nil, events.DeliveryStarted, entitySession, s.id, actorID, events.EventPayload{
		"tracking_id": sim.ID(),
		"ngo_id":      ngoID,
	}); err != nil {
		return e.view(s), err
	}
	sim.Start(context.Background())
	s.sim = sim
	s.state = StateInTransit
	return e.view(s), nil
}

// refresh opens verification once the simulated courier has arrived.
func (e Engine) refresh(s *Session) {
	if s.state == StateInTransit && s.sim != nil && s.sim.Snapshot().VerificationOpen {
		s.state = StateVerifying
	}
}

func (e Engine) DeliveryStatus(ctx context.Context, id string) (delivery.Snapshot, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return delivery.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refresh(s)
	if s.sim == nil {
		return delivery.Snapshot{}, ErrNoDelivery
	}
	return s.sim.Snapshot(), nil
}

// SubscribeDelivery streams snapshots until the delivery stops. The first
// value is the current snapshot.
func (e Engine) SubscribeDelivery(ctx context.Context, id string) (delivery.Snapshot, <-chan delivery.Snapshot, func(), error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return delivery.Snapshot{}, nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refresh(s)
	if s.sim == nil {
		return delivery.Snapshot{}, nil, nil, ErrNoDelivery
	}
	ch, cancel := s.sim.Subscribe()
	return s.sim.Snapshot(), ch, cancel, nil
}

// CancelDelivery recalls the courier and returns to the match result.
func (e Engine) CancelDelivery(ctx context.Context, id, actorID string) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refresh(s)
	if s.state != StateInTransit && s.state != StateVerifying {
		return e.view(s), TransitionError{From: s.state, To: StateMatched}
	}
	tracking := s.sim.ID()
	if err := e.events().Append(ctx, nil, events.DeliveryCanceled, entitySession, s.id, actorID, events.EventPayload{"tracking_id": tracking}); err != nil {
		e.Log.Warn("session %s: canceled event: %v", s.id, err)
	}
	s.sim.Stop()
	s.sim = nil
	s.state = StateMatched
	return e.view(s), nil
}

// AcceptDelivery records the NGO's acceptance. All three checks must pass.
func (e Engine) AcceptDelivery(ctx context.Context, id, actorID string, checks verification.Checks) (SessionView, error) {
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refresh(s)
	if err := ensureSessionTransition(s.state, StateAccepted); err != nil {
		return e.view(s), err
	}
	if err := verification.CanAccept(checks); err != nil {
		return e.view(s), domain.ValidationError{Problems: []string{err.Error()}}
	}
	v := domain.Verification{
		ID:        uuid.New().String(),
		SessionID: s.id,
		NgoID:     s.ngo.ID,
		DecidedBy: actorID,
		Outcome:   "accepted",
		Checks:    checks.Map(),
		CreatedAt: e.stamp(),
	}
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if v, err = e.Repo.CreateVerificationTx(ctx, tx, v); err != nil {
			return err
		}
		if err := e.Repo.InsertDonationRecord(ctx, tx, e.donationRecord(s, *s.donation, domain.DonationAccepted, "")); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.DonationAccepted, entitySession, s.id, actorID, events.EventPayload{
			"ngo_id":    s.ngo.ID,
			"food_name": s.donation.FoodName,
		})
	})
	if err != nil {
		return e.view(s), err
	}
	s.sim.Stop()
	s.state = StateAccepted
	s.verification = &v
	s.awarded = e.awardDonor(ctx, s.ownerID, actorID)
	return e.view(s), nil
}

// awardDonor credits the session owner when they are a donor. Failures are
// logged; the acceptance already stands.
func (e Engine) awardDonor(ctx context.Context, ownerID, actorID string) int {
	points := e.Config.Rewards.AcceptPoints
	if points <= 0 {
		return 0
	}
	p, err := e.Repo.GetProfile(ctx, ownerID)
	if err != nil || p.Role != domain.RoleDonor {
		return 0
	}
	if _, err := e.AwardPoints(ctx, ownerID, actorID, points); err != nil {
		e.Log.Warn("award %d points to %s: %v", points, ownerID, err)
		return 0
	}
	return points
}

// RejectDelivery records the NGO's rejection and the diversion advisory.
func (e Engine) RejectDelivery(ctx context.Context, id, actorID, reason string) (SessionView, error) {
	r, err := verification.ParseReason(reason)
	if err != nil {
		return SessionView{}, domain.ValidationError{Problems: []string{err.Error()}}
	}
	s, err := e.Sessions.get(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refresh(s)
	if err := ensureSessionTransition(s.state, StateRejected); err != nil {
		return e.view(s), err
	}
	div := verification.Divert(r, e.Config.Verification)
	v := domain.Verification{
		ID:        uuid.New().String(),
		SessionID: s.id,
		NgoID:     s.ngo.ID,
		DecidedBy: actorID,
		Outcome:   "rejected",
		Checks:    map[string]bool{},
		Reason:    string(r),
		Diversion: div.Channel,
		CreatedAt: e.stamp(),
	}
	vio := e.violation(ctx, s.ownerID, violationNGOReject, domain.SeverityCritical)
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if v, err = e.Repo.CreateVerificationTx(ctx, tx, v); err != nil {
			return err
		}
		if err := e.Repo.InsertDonationRecord(ctx, tx, e.donationRecord(s, *s.donation, domain.DonationRejected, string(r))); err != nil {
			return err
		}
		if err := e.Repo.InsertViolation(ctx, tx, vio); err != nil {
			return err
		}
		return e.events().Append(ctx, tx, events.DonationRejected, entitySession, s.id, actorID, events.EventPayload{
			"ngo_id":    s.ngo.ID,
			"reason":    string(r),
			"diversion": div.Channel,
		})
	})
	if err != nil {
		return e.view(s), err
	}
	s.sim.Stop()
	s.state = StateRejected
	s.verification = &v
	s.diversion = &div
	return e.view(s), nil
}

func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) donationRecord(s *Session, d domain.Donation, status, reason string) domain.DonationRecord {
	rec := domain.DonationRecord{
		ID:        uuid.New().String(),
		DonorID:   s.ownerID,
		SessionID: s.id,
		FoodName:  d.FoodName,
		Quantity:  d.QuantityEstimate,
		Status:    status,
		Reason:    reason,
		CreatedAt: e.stamp(),
	}
	if s.ngo != nil {
		rec.NgoName = s.ngo.OrganizationName
	}
	return rec
}

func (e Engine) violation(ctx context.Context, userID, kind, severity string) domain.ViolationRecord {
	name := userID
	if p, err := e.Repo.GetProfile(ctx, userID); err == nil && p.Name != "" {
		name = p.Name
	}
	return domain.ViolationRecord{
		ID:            uuid.New().String(),
		UserID:        userID,
		UserName:      name,
		ViolationType: kind,
		Severity:      severity,
		Date:          e.stamp(),
	}
}
