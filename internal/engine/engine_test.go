package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"foodbridge/internal/config"
	"foodbridge/internal/db"
	"foodbridge/internal/delivery"
	"foodbridge/internal/domain"
	"foodbridge/internal/engine"
	"foodbridge/internal/logistics"
	"foodbridge/internal/migrate"
	"foodbridge/internal/repo"
	"foodbridge/internal/safety"
	"foodbridge/internal/verification"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeClassifier struct {
	mu       sync.Mutex
	donation domain.Donation
	err      error
	calls    int
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, image []byte, mimeType string) (domain.Donation, error) {
	f.mu.Lock()
	f.calls++
	started, release := f.started, f.release
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return f.donation, f.err
}

type fakeScorer struct {
	result domain.MatchResult
	err    error
}

func (f *fakeScorer) Score(ctx context.Context, d domain.Donation, ngo domain.NgoRequest) (domain.MatchResult, error) {
	return f.result, f.err
}

type testEnv struct {
	Engine     engine.Engine
	Ctx        context.Context
	Clock      *clock
	Classifier *fakeClassifier
	Scorer     *fakeScorer
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clk := &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	cls := &fakeClassifier{donation: donation(5.0, true)}
	sc := &fakeScorer{result: domain.MatchResult{MatchScore: 85, Reason: "good fit", RecommendedAction: domain.ActionApprove}}
	eng := engine.New(conn, config.Default())
	eng.Now = clk.Now
	eng.Classifier = cls
	eng.Scorer = sc
	t.Cleanup(eng.StopAll)
	return testEnv{Engine: eng, Ctx: context.Background(), Clock: clk, Classifier: cls, Scorer: sc}
}

func donation(weight float64, safe bool) domain.Donation {
	d := domain.Donation{
		FoodName:         "Vegetable Biryani",
		Category:         domain.CategoryVeg,
		QuantityEstimate: "Serves 20",
		FreshnessStatus:  "Fresh",
		SafetyFlag:       safe,
		SafetyReason:     "Looks freshly cooked",
		ExpiryWindow:     "6 hours",
		Allergens:        []string{},
	}
	if weight >= 0 {
		d.WeightKg = &weight
	}
	return d
}

func ptr[T any](v T) *T { return &v }

func hasAction(v engine.SessionView, action string) bool {
	for _, a := range v.Actions {
		if a == action {
			return true
		}
	}
	return false
}

func (env testEnv) profile(t *testing.T, id string, role domain.Role) {
	t.Helper()
	if _, err := env.Engine.SaveProfile(env.Ctx, id, engine.ProfileInput{ID: id, Name: "Asha", Role: string(role)}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
}

// toSafetyCheck starts a session and submits a photo.
func (env testEnv) toSafetyCheck(t *testing.T, owner string) engine.SessionView {
	t.Helper()
	v, err := env.Engine.StartSession(env.Ctx, owner)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	v, err = env.Engine.SubmitImage(env.Ctx, v.ID, owner, []byte("raw photo bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("submit image: %v", err)
	}
	if v.State != engine.StateSafetyCheck {
		t.Fatalf("expected safety_check, got %s (%+v)", v.State, v.Error)
	}
	return v
}

func (env testEnv) fillChecklist(t *testing.T, id, prep string) engine.SessionView {
	t.Helper()
	v, err := env.Engine.UpdateSafetyCheck(env.Ctx, id, safety.Update{
		PrepTime:           ptr(prep),
		Temperature:        ptr(domain.TemperatureHot),
		IsCovered:          ptr(true),
		IsPacked:           ptr(true),
		AgreesToCompliance: ptr(true),
		ShelfLife:          ptr(6),
	})
	if err != nil {
		t.Fatalf("update checklist: %v", err)
	}
	return v
}

// toRouted runs the flow through routing.
func (env testEnv) toRouted(t *testing.T, owner string) engine.SessionView {
	t.Helper()
	v := env.toSafetyCheck(t, owner)
	env.fillChecklist(t, v.ID, "11:00")
	if _, err := env.Engine.SubmitSafetyCheck(env.Ctx, v.ID, owner); err != nil {
		t.Fatalf("submit checklist: %v", err)
	}
	v, err := env.Engine.Route(env.Ctx, v.ID, owner)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	return v
}

// toVerifying matches, dispatches and waits out the simulated drive.
func (env testEnv) toVerifying(t *testing.T, owner string) engine.SessionView {
	t.Helper()
	v := env.toRouted(t, owner)
	if _, err := env.Engine.MatchNGO(env.Ctx, v.ID, owner, "1"); err != nil {
		t.Fatalf("match: %v", err)
	}
	if _, err := env.Engine.StartDelivery(env.Ctx, v.ID, owner); err != nil {
		t.Fatalf("start delivery: %v", err)
	}
	env.Clock.Advance(30 * time.Second)
	v, err := env.Engine.GetSession(env.Ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.State != engine.StateVerifying {
		t.Fatalf("expected verifying, got %s", v.State)
	}
	return v
}

func TestFiveKilogramsRoutesToNGOMatching(t *testing.T) {
	env := newTestEnv(t)
	v := env.toRouted(t, "donor-1")
	if v.State != engine.StateMatching {
		t.Fatalf("expected matching, got %s", v.State)
	}
	if v.Routing == nil || v.Routing.Route != logistics.RouteNGOMatching || !v.Routing.Rules[0].Passed {
		t.Fatalf("unexpected routing %+v", v.Routing)
	}
	again, err := env.Engine.Route(env.Ctx, v.ID, "donor-1")
	if err != nil || again.State != engine.StateMatching {
		t.Fatalf("routing twice should be a no-op: %v %s", err, again.State)
	}
}

func TestLightDonationGoesDirect(t *testing.T) {
	env := newTestEnv(t)
	env.Classifier.donation = donation(2.0, true)
	v := env.toRouted(t, "donor-1")
	if v.State != engine.StateDirectDistribution {
		t.Fatalf("expected direct_distribution, got %s", v.State)
	}
	if v.Routing.Rules[0].Passed || v.Routing.Rules[0].Measured != "2.0 kg" {
		t.Fatalf("weight rule should fail: %+v", v.Routing.Rules[0])
	}
	if len(v.Routing.Hotspots) == 0 {
		t.Fatalf("expected hotspots")
	}
	var te engine.TransitionError
	if _, err := env.Engine.MatchNGO(env.Ctx, v.ID, "donor-1", "1"); !errors.As(err, &te) {
		t.Fatalf("matching must be skipped, got %v", err)
	}
	v, err := env.Engine.CompleteDistribution(env.Ctx, v.ID, "donor-1")
	if err != nil || v.State != engine.StateDistributed {
		t.Fatalf("complete: %v %s", err, v.State)
	}
	recs, err := env.Engine.ListDonations(env.Ctx, "donor-1", 10)
	if err != nil || len(recs) != 1 || recs[0].Status != domain.DonationDistributed {
		t.Fatalf("donation records %+v %v", recs, err)
	}
}

func TestOldFoodBlocksSubmitAndKeepsInput(t *testing.T) {
	env := newTestEnv(t)
	v := env.toSafetyCheck(t, "donor-1")
	v = env.fillChecklist(t, v.ID, "07:00")
	if v.SafetyCheck.TimeError != safety.TooOldMessage {
		t.Fatalf("expected time error, got %q", v.SafetyCheck.TimeError)
	}
	if hasAction(v, engine.ActionSubmitSafetyCheck) {
		t.Fatalf("submit should be disabled")
	}
	if v.SafetyCheck.Data.PrepTime != "07:00" || !v.SafetyCheck.Data.IsCovered {
		t.Fatalf("input lost: %+v", v.SafetyCheck.Data)
	}
	_, err := env.Engine.SubmitSafetyCheck(env.Ctx, v.ID, "donor-1")
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	v, _ = env.Engine.GetSession(env.Ctx, v.ID)
	if v.State != engine.StateSafetyCheck {
		t.Fatalf("state moved to %s", v.State)
	}
}

func TestApprovedMatchStartsDelivery(t *testing.T) {
	env := newTestEnv(t)
	v := env.toRouted(t, "donor-1")
	v, err := env.Engine.MatchNGO(env.Ctx, v.ID, "donor-1", "1")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if v.State != engine.StateMatched || !hasAction(v, engine.ActionStartDelivery) {
		t.Fatalf("start_delivery should be offered: %s %v", v.State, v.Actions)
	}
	if hasAction(v, engine.ActionDistributeLocally) {
		t.Fatalf("escape hatch offered for a score of 85")
	}
	v, err = env.Engine.StartDelivery(env.Ctx, v.ID, "donor-1")
	if err != nil || v.State != engine.StateInTransit {
		t.Fatalf("start delivery: %v %s", err, v.State)
	}
	env.Clock.Advance(1500 * time.Millisecond)
	snap, err := env.Engine.DeliveryStatus(env.Ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != delivery.StatusDriverAssigned {
		t.Fatalf("expected driver assigned, got %s", snap.Status)
	}
}

func TestManualReviewCannotDispatch(t *testing.T) {
	env := newTestEnv(t)
	env.Scorer.result = domain.MatchResult{MatchScore: 45, Reason: "far away", RecommendedAction: domain.ActionManualReview}
	v := env.toRouted(t, "donor-1")
	v, err := env.Engine.MatchNGO(env.Ctx, v.ID, "donor-1", "4")
	if err != nil {
		t.Fatal(err)
	}
	if hasAction(v, engine.ActionStartDelivery) || !hasAction(v, engine.ActionDistributeLocally) {
		t.Fatalf("unexpected actions %v", v.Actions)
	}
	if _, err := env.Engine.StartDelivery(env.Ctx, v.ID, "donor-1"); !errors.Is(err, engine.ErrNotDeliverable) {
		t.Fatalf("expected ErrNotDeliverable, got %v", err)
	}
	v, err = env.Engine.DistributeLocally(env.Ctx, v.ID, "donor-1")
	if err != nil || v.State != engine.StateDirectDistribution {
		t.Fatalf("distribute locally: %v %s", err, v.State)
	}
}

func TestRejectOnArrivalDivertsMoldToBiogas(t *testing.T) {
	env := newTestEnv(t)
	v := env.toVerifying(t, "donor-1")
	if !hasAction(v, engine.ActionReject) {
		t.Fatalf("reject should always be offered: %v", v.Actions)
	}
	v, err := env.Engine.RejectDelivery(env.Ctx, v.ID, "ngo-1", "Mold/Fungus")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if v.State != engine.StateRejected || v.Diversion == nil || v.Diversion.Channel != verification.ChannelBiogas {
		t.Fatalf("unexpected outcome %s %+v", v.State, v.Diversion)
	}
	vios, err := env.Engine.Violations(env.Ctx, 10)
	if err != nil || len(vios) != 1 || vios[0].Severity != domain.SeverityCritical {
		t.Fatalf("violations %+v %v", vios, err)
	}
}

func TestRejectNeedsKnownReason(t *testing.T) {
	env := newTestEnv(t)
	v := env.toVerifying(t, "donor-1")
	var ve domain.ValidationError
	if _, err := env.Engine.RejectDelivery(env.Ctx, v.ID, "ngo-1", "Too salty"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAcceptAwardsDonorPoints(t *testing.T) {
	env := newTestEnv(t)
	env.profile(t, "donor-1", domain.RoleDonor)
	if _, err := env.Engine.AwardPoints(env.Ctx, "donor-1", "admin", 80); err != nil {
		t.Fatal(err)
	}
	v := env.toVerifying(t, "donor-1")

	_, err := env.Engine.AcceptDelivery(env.Ctx, v.ID, "ngo-1", verification.Checks{Odor: true, Visual: true})
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("accept needs all checks, got %v", err)
	}

	v, err = env.Engine.AcceptDelivery(env.Ctx, v.ID, "ngo-1", verification.Checks{Odor: true, Visual: true, Temperature: true})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if v.State != engine.StateAccepted || v.PointsAwarded != 50 {
		t.Fatalf("unexpected outcome %s points=%d", v.State, v.PointsAwarded)
	}
	p, err := env.Engine.GetProfile(env.Ctx, "donor-1")
	if err != nil {
		t.Fatal(err)
	}
	if p.RewardPoints != 130 || len(p.Badges) != 1 || p.Badges[0] != "BRONZE" {
		t.Fatalf("unexpected rewards %d %v", p.RewardPoints, p.Badges)
	}
	recs, _ := env.Engine.ListDonations(env.Ctx, "donor-1", 10)
	if len(recs) != 1 || recs[0].Status != domain.DonationAccepted || recs[0].NgoName != "City Harvest Shelter" {
		t.Fatalf("donation records %+v", recs)
	}
}

func TestAcceptSkipsNonDonorOwner(t *testing.T) {
	env := newTestEnv(t)
	env.profile(t, "admin-1", domain.RoleAdmin)
	v := env.toVerifying(t, "admin-1")
	v, err := env.Engine.AcceptDelivery(env.Ctx, v.ID, "ngo-1", verification.Checks{Odor: true, Visual: true, Temperature: true})
	if err != nil {
		t.Fatal(err)
	}
	if v.PointsAwarded != 0 {
		t.Fatalf("expected no award, got %d", v.PointsAwarded)
	}
	p, _ := env.Engine.GetProfile(env.Ctx, "admin-1")
	if p.RewardPoints != 0 {
		t.Fatalf("points changed to %d", p.RewardPoints)
	}
}

func TestCancelDeliveryReturnsToMatch(t *testing.T) {
	env := newTestEnv(t)
	v := env.toRouted(t, "donor-1")
	env.Engine.MatchNGO(env.Ctx, v.ID, "donor-1", "1")
	env.Engine.StartDelivery(env.Ctx, v.ID, "donor-1")
	v, err := env.Engine.CancelDelivery(env.Ctx, v.ID, "donor-1")
	if err != nil || v.State != engine.StateMatched || v.Delivery != nil {
		t.Fatalf("cancel: %v %s", err, v.State)
	}
	if _, err := env.Engine.DeliveryStatus(env.Ctx, v.ID); !errors.Is(err, engine.ErrNoDelivery) {
		t.Fatalf("expected ErrNoDelivery, got %v", err)
	}
}

func TestUnsafeVerdictEndsFlow(t *testing.T) {
	env := newTestEnv(t)
	env.Classifier.donation = donation(5.0, false)
	v, _ := env.Engine.StartSession(env.Ctx, "donor-1")
	v, err := env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("x"), "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if v.State != engine.StateRejectedUnsafe || v.Donation == nil || v.Donation.SafetyFlag {
		t.Fatalf("unexpected state %s", v.State)
	}
	if _, err := env.Engine.Route(env.Ctx, v.ID, "donor-1"); err == nil {
		t.Fatalf("unsafe donations must not be routed")
	}
	vios, _ := env.Engine.Violations(env.Ctx, 10)
	if len(vios) != 1 || vios[0].Severity != domain.SeverityMedium || vios[0].ViolationType != "AI Flagged Unsafe" {
		t.Fatalf("violations %+v", vios)
	}
}

func TestRemoteFailureEndsInErrorUntilReset(t *testing.T) {
	env := newTestEnv(t)
	env.Classifier.err = domain.NewPipelineError(domain.KindNoConnectivity, "No Internet Connection", nil)
	v, _ := env.Engine.StartSession(env.Ctx, "donor-1")
	v, err := env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("x"), "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if v.State != engine.StateError || v.Error == nil || v.Error.Kind != domain.KindNoConnectivity {
		t.Fatalf("unexpected %s %+v", v.State, v.Error)
	}
	if v.Error.Message != "No Internet Connection" || !hasAction(v, engine.ActionReset) {
		t.Fatalf("unexpected view %+v %v", v.Error, v.Actions)
	}
	v, err = env.Engine.ResetSession(env.Ctx, v.ID, "donor-1")
	if err != nil || v.State != engine.StateIdle || v.Donation != nil || v.Error != nil {
		t.Fatalf("reset: %v %+v", err, v)
	}
}

func TestNonImageUploadIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	v, _ := env.Engine.StartSession(env.Ctx, "donor-1")
	v, err := env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("hello"), "text/plain")
	if err != nil || v.State != engine.StateIdle {
		t.Fatalf("expected idle, got %v %s", err, v.State)
	}
	if env.Classifier.calls != 0 {
		t.Fatalf("classifier called %d times", env.Classifier.calls)
	}
}

func TestBusyThenResetDropsLateResult(t *testing.T) {
	env := newTestEnv(t)
	env.Classifier.started = make(chan struct{})
	env.Classifier.release = make(chan struct{})
	v, _ := env.Engine.StartSession(env.Ctx, "donor-1")

	done := make(chan error, 1)
	go func() {
		_, err := env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("x"), "image/jpeg")
		done <- err
	}()
	<-env.Classifier.started

	if _, err := env.Engine.SubmitImage(env.Ctx, v.ID, "donor-1", []byte("x"), "image/jpeg"); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := env.Engine.ResetSession(env.Ctx, v.ID, "donor-1"); err != nil {
		t.Fatal(err)
	}
	close(env.Classifier.release)
	if err := <-done; !errors.Is(err, engine.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	v, _ = env.Engine.GetSession(env.Ctx, v.ID)
	if v.State != engine.StateIdle || v.Donation != nil {
		t.Fatalf("late result leaked into %s", v.State)
	}
}

func TestUnknownSessionAndNGO(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GetSession(env.Ctx, "nope"); !errors.Is(err, domain.ErrSessionUnknown) {
		t.Fatalf("expected ErrSessionUnknown, got %v", err)
	}
	v := env.toRouted(t, "donor-1")
	var ve domain.ValidationError
	if _, err := env.Engine.MatchNGO(env.Ctx, v.ID, "donor-1", "99"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := env.Engine.CloseSession(env.Ctx, v.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetSession(env.Ctx, v.ID); !errors.Is(err, domain.ErrSessionUnknown) {
		t.Fatalf("closed session still visible: %v", err)
	}
}

func TestSaveProfileKeepsPoints(t *testing.T) {
	env := newTestEnv(t)
	env.profile(t, "u1", domain.RoleDonor)
	if _, err := env.Engine.AwardPoints(env.Ctx, "u1", "admin", 120); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.SaveProfile(env.Ctx, "u1", engine.ProfileInput{ID: "u1", Name: "Asha K", Role: "donor", Language: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if p.RewardPoints != 120 || p.Name != "Asha K" || p.Language != "hi" {
		t.Fatalf("unexpected profile %+v", p)
	}
	p, err = env.Engine.SetRole(env.Ctx, "admin", "u1", "VOLUNTEER")
	if err != nil || p.Role != domain.RoleVolunteer || p.RewardPoints != 120 {
		t.Fatalf("set role: %v %+v", err, p)
	}
	var ve domain.ValidationError
	if _, err := env.Engine.SaveProfile(env.Ctx, "u1", engine.ProfileInput{ID: "u1", Role: "CHEF", Language: "fr"}); !errors.As(err, &ve) || len(ve.Problems) != 2 {
		t.Fatalf("expected two problems, got %v", err)
	}
	if _, err := env.Engine.GetProfile(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	prog, err := env.Engine.RewardsProgress(env.Ctx, "u1")
	if err != nil || prog.Points != 120 || prog.ToGo != 380 {
		t.Fatalf("progress %+v %v", prog, err)
	}
}

func TestShiftCheckInOut(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CheckIn(env.Ctx, "vol-1", "morning"); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := env.Engine.CheckIn(env.Ctx, "vol-1", "MORNING"); !errors.Is(err, engine.ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
	env.Clock.Advance(2 * time.Hour)
	a, err := env.Engine.CheckOut(env.Ctx, "vol-1")
	if err != nil {
		t.Fatalf("check out: %v", err)
	}
	if a.Status != domain.AttendanceCompleted || *a.HoursWorked != 2 || *a.Earnings != 300 {
		t.Fatalf("unexpected record %+v", a)
	}
	if _, err := env.Engine.CheckOut(env.Ctx, "vol-1"); !errors.Is(err, engine.ErrNotCheckedIn) {
		t.Fatalf("expected ErrNotCheckedIn, got %v", err)
	}
	w, err := env.Engine.Wallet(env.Ctx, "vol-1")
	if err != nil || w.Total != 300 || w.Currency != "INR" {
		t.Fatalf("wallet %+v %v", w, err)
	}
	hist, err := env.Engine.AttendanceHistory(env.Ctx, "vol-1")
	if err != nil || len(hist) != 1 {
		t.Fatalf("history %+v %v", hist, err)
	}
}

func TestShortShiftEarnsMinimum(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.CheckIn(env.Ctx, "vol-1", "NIGHT")
	env.Clock.Advance(time.Minute)
	a, err := env.Engine.CheckOut(env.Ctx, "vol-1")
	if err != nil {
		t.Fatal(err)
	}
	if *a.HoursWorked != 0.1 || *a.Earnings != 15 {
		t.Fatalf("unexpected minimum %v %v", *a.HoursWorked, *a.Earnings)
	}
}

func TestCertificateFromProfile(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SaveProfile(env.Ctx, "vol-1", engine.ProfileInput{ID: "vol-1", Name: "Ravi", Role: "VOLUNTEER", InternshipStartDate: "2023-06-15"}); err != nil {
		t.Fatal(err)
	}
	c, err := env.Engine.Certificate(env.Ctx, "vol-1")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Eligible || c.MonthsCompleted != 7 || c.Percent != 100 {
		t.Fatalf("unexpected certificate %+v", c)
	}
}

func TestAdminOverviewCounts(t *testing.T) {
	env := newTestEnv(t)
	env.profile(t, "d1", domain.RoleDonor)
	env.profile(t, "n1", domain.RoleNGO)
	env.Classifier.donation = donation(2.0, true)
	v := env.toRouted(t, "d1")
	env.Engine.CompleteDistribution(env.Ctx, v.ID, "d1")

	o, err := env.Engine.AdminOverview(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if o.TotalUsers != 2 || o.UsersByRole["DONOR"] != 1 || o.DonationsByStatus[domain.DonationDistributed] != 1 || o.LiveSessions != 1 {
		t.Fatalf("unexpected overview %+v", o)
	}
	evts, err := env.Engine.ListEvents(env.Ctx, 100, repo.EventFilter{EntityID: v.ID})
	if err != nil || len(evts) == 0 || evts[0].Type != "donation.distributed" {
		t.Fatalf("events %+v %v", evts, err)
	}
}
