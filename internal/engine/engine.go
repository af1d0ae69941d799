package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"foodbridge/internal/archive"
	"foodbridge/internal/config"
	"foodbridge/internal/delivery"
	"foodbridge/internal/domain"
	"foodbridge/internal/events"
	"foodbridge/internal/intake"
	"foodbridge/internal/logger"
	"foodbridge/internal/logistics"
	"foodbridge/internal/repo"
	"foodbridge/internal/rewards"
)

// Classifier turns a photo into a safety verdict.
type Classifier interface {
	Classify(ctx context.Context, image []byte, mimeType string) (domain.Donation, error)
}

// Scorer rates a donation against one NGO request.
type Scorer interface {
	Score(ctx context.Context, d domain.Donation, ngo domain.NgoRequest) (domain.MatchResult, error)
}

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Now        func() time.Time
	Log        *logger.Logger
	Sessions   *SessionStore
	Classifier Classifier
	Scorer     Scorer
	Archive    archive.Store
}

// New wires the store and defaults. The rule scorer is used unless the
// caller installs the AI scorer.
func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
		Log:      logger.Discard(),
		Sessions: NewSessionStore(),
		Archive:  archive.Noop{},
	}
	if cfg != nil {
		e.Scorer = logistics.NewRuleScorer(cfg.Matching)
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) ladder() rewards.Ladder {
	return rewards.LadderFromConfig(e.Config.Rewards)
}

func (e Engine) intakeOptions() intake.Options {
	return intake.Options{MaxDimension: e.Config.Intake.MaxDimension, Quality: e.Config.Intake.JPEGQuality}
}

func (e Engine) deliveryOptions() delivery.Options {
	return delivery.OptionsFromConfig(e.Config.Delivery)
}

var errNoConfig = errors.New("config not loaded")

func (e Engine) requireConfig() error {
	if e.Config == nil {
		return errNoConfig
	}
	return nil
}
