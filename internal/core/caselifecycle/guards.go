// Package caselifecycle contains the pure business logic for the distributed
// case state machine. This is part of the Functional Core - no I/O, only pure
// functions. The registry enforces the same rules atomically server-side; the
// guards here let the scheduler skip work it would lose anyway and give tests
// a single place where the rules are written down.
package caselifecycle

import (
	"fmt"
	"time"

	"github.com/gridcompute/gridcompute/internal/core/models"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// VisibilityContext provides the scope of the evaluating machine.
type VisibilityContext struct {
	UserGroup    string
	Instance     string
	Applications map[string]bool // applications this machine can process
}

// Visible evaluates whether a case is in scope for this machine at all.
// Rule: user group, instance, and application capability must all match.
func Visible(rec *models.CaseRecord, scope VisibilityContext) GuardResult {
	if rec.UserGroup != scope.UserGroup {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("case %s belongs to group %q, not %q", rec.ID, rec.UserGroup, scope.UserGroup),
		}
	}
	if rec.Instance != scope.Instance {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("case %s belongs to instance %q, not %q", rec.ID, rec.Instance, scope.Instance),
		}
	}
	if !scope.Applications[rec.Application] {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("application %q is not supported on this machine", rec.Application),
		}
	}
	return GuardResult{Allowed: true}
}

// CanClaim evaluates whether a case may be claimed by this machine.
// Rule: the case must be visible and waiting for a processor.
func CanClaim(rec *models.CaseRecord, scope VisibilityContext) GuardResult {
	if v := Visible(rec, scope); !v.Allowed {
		return v
	}
	if rec.Status != models.StatusToProcess {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("case %s is %s, only %s cases can be claimed", rec.ID, rec.Status, models.StatusToProcess),
		}
	}
	return GuardResult{Allowed: true}
}

// CanHeartbeat evaluates whether identity may refresh its claim on a case.
// Rule: the case must be processing and held by exactly this identity.
func CanHeartbeat(rec *models.CaseRecord, identity models.Identity) GuardResult {
	return heldBy(rec, identity, "heartbeat")
}

// CanComplete evaluates whether identity may complete a case.
// Rule: same holder check as heartbeat; completion is the holder's last act.
func CanComplete(rec *models.CaseRecord, identity models.Identity) GuardResult {
	return heldBy(rec, identity, "complete")
}

func heldBy(rec *models.CaseRecord, identity models.Identity, op string) GuardResult {
	if rec.Status != models.StatusProcessing {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot %s case %s: status is %s, not %s", op, rec.ID, rec.Status, models.StatusProcessing),
		}
	}
	current, ok := rec.CurrentIdentity()
	if !ok {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot %s case %s: no current processor recorded", op, rec.ID),
		}
	}
	if current != identity {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cannot %s case %s: held by %s/%s, not %s/%s", op, rec.ID, current.Machine, current.User, identity.Machine, identity.User),
		}
	}
	return GuardResult{Allowed: true}
}

// CanReclaim evaluates whether a case's claim has gone stale.
// Rule: only processing cases whose heartbeat is older than the grace period
// may be reset. Any live machine may perform the reset.
func CanReclaim(rec *models.CaseRecord, now time.Time, grace time.Duration) GuardResult {
	if rec.Status != models.StatusProcessing {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("case %s is %s, only %s cases can be reclaimed", rec.ID, rec.Status, models.StatusProcessing),
		}
	}
	if now.Sub(rec.LastHeartbeat) <= grace {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("case %s heartbeat is %s old, within grace %s", rec.ID, now.Sub(rec.LastHeartbeat), grace),
		}
	}
	return GuardResult{Allowed: true}
}

// CanMarkReceived evaluates whether the originator may mark a case received.
// Rule: only processed cases, and only by the machine that submitted them.
func CanMarkReceived(rec *models.CaseRecord, originMachine string) GuardResult {
	if rec.Status != models.StatusProcessed {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("case %s is %s, only %s cases can be marked received", rec.ID, rec.Status, models.StatusProcessed),
		}
	}
	if rec.Origin.Machine != originMachine {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("case %s originates from %s, not %s", rec.ID, rec.Origin.Machine, originMachine),
		}
	}
	return GuardResult{Allowed: true}
}
