package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the donation pipeline.
const (
	SessionStarted       = "session.started"
	SessionReset         = "session.reset"
	DonationClassified   = "donation.classified"
	DonationUnsafe       = "donation.unsafe"
	DonationFailed       = "donation.failed"
	SafetyCheckSubmitted = "safety_check.submitted"
	DonationRouted       = "donation.routed"
	DonationMatched      = "donation.matched"
	DeliveryStarted      = "delivery.started"
	DeliveryArrived      = "delivery.arrived"
	DeliveryCanceled     = "delivery.canceled"
	DonationAccepted     = "donation.accepted"
	DonationRejected     = "donation.rejected"
	DonationDistributed  = "donation.distributed"
	RewardsAwarded       = "rewards.awarded"
	ProfileSaved         = "profile.saved"
	ShiftCheckedIn       = "shift.checked_in"
	ShiftCheckedOut      = "shift.checked_out"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes inside tx. A nil tx writes directly on the database.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	const q = `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, ts, evtType, entityKind, nullable(entityID), actorID, string(data))
		return err
	}
	_, err = w.DB.ExecContext(ctx, q, ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
