// Package delivery simulates the handoff from donor to NGO. It is a
// presentation of progress driven by the clock, not telemetry: positions are
// interpolated between two fixed coordinates.
package delivery

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"foodbridge/internal/config"
	"foodbridge/internal/logger"
)

type Status string

const (
	StatusFindingDriver   Status = "finding_driver"
	StatusDriverAssigned  Status = "driver_assigned"
	StatusHeadingToPickup Status = "heading_to_pickup"
	StatusOnTheWay        Status = "on_the_way"
	StatusArrivingSoon    Status = "arriving_soon"
	StatusArrived         Status = "arrived"
)

var labels = map[Status]string{
	StatusFindingDriver:   "Finding Driver...",
	StatusDriverAssigned:  "Driver Assigned",
	StatusHeadingToPickup: "Heading to Pickup",
	StatusOnTheWay:        "On the Way to NGO",
	StatusArrivingSoon:    "Arriving Soon",
	StatusArrived:         "Arrived at NGO",
}

func (s Status) Label() string { return labels[s] }

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Options struct {
	Duration          time.Duration
	Tick              time.Duration
	StartDelay        time.Duration
	VerificationDelay time.Duration
	ETAMinutes        int
	Start             Coord
	End               Coord
}

func OptionsFromConfig(cfg config.DeliveryConfig) Options {
	o := Options{
		Duration:          time.Duration(cfg.DurationSeconds) * time.Second,
		Tick:              time.Duration(cfg.TickMillis) * time.Millisecond,
		StartDelay:        time.Duration(cfg.StartDelayMillis) * time.Millisecond,
		VerificationDelay: time.Duration(cfg.VerificationDelayMillis) * time.Millisecond,
		ETAMinutes:        cfg.ETAMinutes,
	}
	if len(cfg.Start) == 2 {
		o.Start = Coord{Lat: cfg.Start[0], Lng: cfg.Start[1]}
	}
	if len(cfg.End) == 2 {
		o.End = Coord{Lat: cfg.End[0], Lng: cfg.End[1]}
	}
	return o
}

// Snapshot is one observation of the delivery.
type Snapshot struct {
	TrackingID       string    `json:"tracking_id"`
	Status           Status    `json:"status" enum:"finding_driver,driver_assigned,heading_to_pickup,on_the_way,arriving_soon,arrived"`
	Label            string    `json:"label"`
	Progress         float64   `json:"progress"`
	ETAMinutes       int       `json:"eta_minutes"`
	Position         Coord     `json:"position"`
	VerificationOpen bool      `json:"verification_open"`
	At               time.Time `json:"at"`
}

// StatusFor maps progress in [0,1] to a status.
func StatusFor(p float64) Status {
	switch {
	case p >= 1:
		return StatusArrived
	case p < 0.1:
		return StatusDriverAssigned
	case p < 0.2:
		return StatusHeadingToPickup
	case p < 0.8:
		return StatusOnTheWay
	default:
		return StatusArrivingSoon
	}
}

// At computes the snapshot for a delivery that started at startedAt.
func (o Options) At(trackingID string, startedAt, now time.Time) Snapshot {
	snap := Snapshot{TrackingID: trackingID, At: now}
	elapsed := now.Sub(startedAt) - o.StartDelay
	if elapsed < 0 {
		snap.Status = StatusFindingDriver
		snap.Label = snap.Status.Label()
		snap.ETAMinutes = o.ETAMinutes
		snap.Position = o.Start
		return snap
	}
	p := 1.0
	if o.Duration > 0 {
		p = float64(elapsed) / float64(o.Duration)
	}
	p = math.Max(0, math.Min(1, p))
	snap.Status = StatusFor(p)
	snap.Label = snap.Status.Label()
	snap.Progress = math.Round(p*10000) / 100
	snap.ETAMinutes = int(math.Ceil(float64(o.ETAMinutes) * (1 - p)))
	snap.Position = Coord{
		Lat: o.Start.Lat + (o.End.Lat-o.Start.Lat)*p,
		Lng: o.Start.Lng + (o.End.Lng-o.Start.Lng)*p,
	}
	snap.VerificationOpen = p >= 1 && elapsed-o.Duration >= o.VerificationDelay
	return snap
}

// Simulator runs one delivery. Snapshots are derived from the clock, so a
// stopped or never-started simulator still answers Snapshot.
type Simulator struct {
	opts       Options
	trackingID string
	startedAt  time.Time
	now        func() time.Time
	log        *logger.Logger

	// OnArrived runs once from the loop when the status first reaches arrived.
	OnArrived func(Snapshot)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	arrived bool
	subs    map[int]chan Snapshot
	nextSub int
}

func New(opts Options, trackingID string, now func() time.Time, log *logger.Logger) *Simulator {
	if now == nil {
		now = time.Now
	}
	if opts.Tick <= 0 {
		opts.Tick = 250 * time.Millisecond
	}
	return &Simulator{
		opts:       opts,
		trackingID: trackingID,
		startedAt:  now(),
		now:        now,
		log:        log,
		subs:       map[int]chan Snapshot{},
	}
}

// TrackingID formats a display id such as LOG-4821.
func TrackingID(n int) string {
	return fmt.Sprintf("LOG-%04d", n%10000)
}

func (s *Simulator) ID() string { return s.trackingID }

func (s *Simulator) StartedAt() time.Time { return s.startedAt }

func (s *Simulator) Snapshot() Snapshot {
	return s.opts.At(s.trackingID, s.startedAt, s.now())
}

// Start begins the publishing loop. Non-blocking.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.log.Warn("delivery %s already running", s.trackingID)
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	go s.loop(childCtx)
	s.log.Debug("delivery %s started (tick=%s, duration=%s)", s.trackingID, s.opts.Tick, s.opts.Duration)
}

// Stop ends the loop and closes every subscription. The loop stops itself
// once the verification gate has opened.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.cancel()
		s.running = false
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Subscribe returns a channel of snapshots and a cancel func. Slow readers
// miss intermediate snapshots rather than block the loop.
func (s *Simulator) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Snapshot, 8)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	if !s.running {
		// stopped simulators publish nothing more
		close(ch)
		delete(s.subs, id)
		return ch, func() {}
	}
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

func (s *Simulator) loop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := s.tick(); done {
				s.Stop()
				return
			}
		}
	}
}

// tick publishes one snapshot. It reports true once the gate is open and
// nothing further will change.
func (s *Simulator) tick() bool {
	snap := s.Snapshot()
	s.mu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	fire := snap.Status == StatusArrived && !s.arrived
	if fire {
		s.arrived = true
	}
	s.mu.Unlock()
	if fire && s.OnArrived != nil {
		s.OnArrived(snap)
	}
	return snap.VerificationOpen
}
