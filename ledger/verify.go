/*
verify.go - Opening-balance snapshot verification

STATE MACHINE (per subject + period start):

  UNVERIFIED --first call--> VERIFIED (baseline written)
  VERIFIED(baseline) --later call--> VERIFIED | DISCREPANCY

  There is no way back to UNVERIFIED and the baseline is never
  overwritten: a later history change shows up as DISCREPANCY.

ATOMICITY:
  The baseline write goes through SnapshotRepository.InsertIfAbsent,
  which inserts under the (subject, period start) unique key. When two
  first-time calls race, one inserts and the other receives the winner's
  row and compares against it.
*/
package ledger

import (
	"context"

	"github.com/google/uuid"
)

type BalanceVerifier struct {
	Opening   *OpeningBalanceCalculator
	Snapshots SnapshotRepository
	Audit     AuditSink // optional
	Options   Options
}

func NewBalanceVerifier(opening *OpeningBalanceCalculator, snaps SnapshotRepository, audit AuditSink, opts Options) *BalanceVerifier {
	return &BalanceVerifier{Opening: opening, Snapshots: snaps, Audit: audit, Options: opts}
}

// Verify establishes or checks the opening-balance snapshot of subjectID at
// periodStart.
func (v *BalanceVerifier) Verify(ctx context.Context, subjectID SubjectID, periodStart Date) (*VerificationResult, error) {
	calculated, err := v.Opening.Calculate(ctx, subjectID, periodStart)
	if err != nil {
		return nil, err
	}

	existing, err := v.Snapshots.Get(ctx, subjectID, periodStart)
	if err != nil {
		return nil, storeErr("load snapshot", err)
	}
	if existing != nil {
		return v.compare(subjectID, periodStart, calculated, *existing), nil
	}

	candidate := Snapshot{
		SubjectID:      subjectID,
		PeriodStart:    periodStart,
		OpeningBalance: calculated,
		RecordedAt:     v.Options.now(),
	}
	stored, inserted, err := v.Snapshots.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return nil, storeErr("insert snapshot", err)
	}
	if !inserted {
		// Lost the race: another caller established the baseline first.
		v.Options.logger().InfoContext(ctx, "snapshot established concurrently",
			"subject_id", subjectID, "period_start", periodStart)
		return v.compare(subjectID, periodStart, calculated, stored), nil
	}

	v.audit(ctx, stored)
	return &VerificationResult{
		SubjectID:       subjectID,
		PeriodStart:     periodStart,
		Verified:        true,
		OpeningBalance:  calculated,
		RecordedBalance: stored.OpeningBalance,
		Status:          StatusVerified,
		Established:     true,
	}, nil
}

func (v *BalanceVerifier) compare(subjectID SubjectID, periodStart Date, calculated Money, snap Snapshot) *VerificationResult {
	result := &VerificationResult{
		SubjectID:       subjectID,
		PeriodStart:     periodStart,
		OpeningBalance:  calculated,
		RecordedBalance: snap.OpeningBalance,
		Status:          StatusDiscrepancy,
	}
	if v.Options.within(calculated, snap.OpeningBalance) {
		result.Verified = true
		result.Status = StatusVerified
	}
	return result
}

func (v *BalanceVerifier) audit(ctx context.Context, snap Snapshot) {
	if v.Audit == nil {
		return
	}
	entry := AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  v.Options.now(),
		ActorID:    ActorFrom(ctx),
		Action:     AuditSnapshotEstablished,
		EntityType: "opening_balance_snapshot",
		EntityID:   string(snap.SubjectID) + "@" + snap.PeriodStart.String(),
		After: map[string]any{
			"periodStart":    snap.PeriodStart.String(),
			"openingBalance": int64(snap.OpeningBalance),
		},
	}
	if err := v.Audit.LogAudit(ctx, entry); err != nil {
		v.Options.logger().WarnContext(ctx, "audit log failed",
			"action", entry.Action, "subject_id", snap.SubjectID, "error", err)
	}
}
