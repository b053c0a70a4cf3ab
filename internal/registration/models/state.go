package models

import (
	"fmt"

	id "onboarding/pkg/domain"
)

// Phase is one externally observable step of the registration saga.
type Phase string

const (
	PhaseAuth         Phase = "auth"
	PhaseUserProfile  Phase = "user_profile"
	PhaseUserMetadata Phase = "user_metadata"
	PhaseOrganization Phase = "organization"
	PhaseComplete     Phase = "complete"
)

var phaseOrder = map[Phase]int{
	PhaseAuth:         0,
	PhaseUserProfile:  1,
	PhaseUserMetadata: 2,
	PhaseOrganization: 3,
	PhaseComplete:     4,
}

// Status tracks the saga state machine around the phases:
// INIT -> RUNNING -> COMPLETE, or RUNNING -> ROLLING_BACK -> FAILED.
type Status string

const (
	StatusInit        Status = "init"
	StatusRunning     Status = "running"
	StatusRollingBack Status = "rolling_back"
	StatusFailed      Status = "failed"
	StatusComplete    Status = "complete"
)

// Step tags a committed side effect.
type Step string

const (
	StepAuthUserCreated     Step = "auth_user_created"
	StepUserProfileCreated  Step = "user_profile_created"
	StepUserMetadataCreated Step = "user_metadata_created"
	StepOrganizationCreated Step = "organization_created"
)

// ActionKind names a compensating operation.
type ActionKind string

const (
	ActionDeleteIdentity       ActionKind = "delete_identity"
	ActionDeleteProfileRecord  ActionKind = "delete_profile_record"
	ActionDeleteMetadataRecord ActionKind = "delete_metadata_record"
	ActionDeleteOrganization   ActionKind = "delete_organization"
	ActionDeleteMembership     ActionKind = "delete_membership_record"
)

// RollbackAction describes how to undo one committed step. TargetID is the
// string form of the typed id the compensator expects.
type RollbackAction struct {
	Kind     ActionKind        `json:"kind"`
	TargetID string            `json:"target_id"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// RollbackOutcome records what happened to a single compensating action.
type RollbackOutcome struct {
	Action RollbackAction `json:"action"`
	Err    string         `json:"error,omitempty"`
}

// TransactionState is created per attempt and discarded afterwards; only its
// side effects persist.
//
// Invariants:
//   - Phase only moves forward
//   - CompletedSteps and RollbackActions grow together during forward
//     execution: each committed step pushes exactly one action, so replaying
//     RollbackActions in reverse undoes the most recent step first
type TransactionState struct {
	Phase           Phase             `json:"phase"`
	Status          Status            `json:"status"`
	IdentityID      id.IdentityID     `json:"identity_id"`
	ProfileRecordID id.ProfileID      `json:"profile_record_id"`
	MetadataID      id.MetadataID     `json:"metadata_id"`
	OrganizationID  id.OrganizationID `json:"organization_id"`
	CompletedSteps  []Step            `json:"completed_steps"`
	RollbackActions []RollbackAction  `json:"rollback_actions"`

	// Rollback holds the outcome of each replayed action once rollback ran.
	Rollback  []RollbackOutcome `json:"rollback,omitempty"`
	LastError error             `json:"-"`
}

func NewTransactionState() *TransactionState {
	return &TransactionState{
		Phase:           PhaseAuth,
		Status:          StatusInit,
		CompletedSteps:  []Step{},
		RollbackActions: []RollbackAction{},
	}
}

// Advance moves to phase p. Moving backwards is an invariant violation.
func (s *TransactionState) Advance(p Phase) error {
	next, ok := phaseOrder[p]
	if !ok {
		return fmt.Errorf("unknown phase %q", p)
	}
	if next < phaseOrder[s.Phase] {
		return fmt.Errorf("phase cannot regress from %s to %s", s.Phase, p)
	}
	s.Phase = p
	if p == PhaseComplete {
		s.Status = StatusComplete
	} else {
		s.Status = StatusRunning
	}
	return nil
}

// Commit records a completed step together with its compensating action.
func (s *TransactionState) Commit(step Step, undo RollbackAction) {
	s.CompletedSteps = append(s.CompletedSteps, step)
	s.RollbackActions = append(s.RollbackActions, undo)
}

// HasStep reports whether step was committed.
func (s *TransactionState) HasStep(step Step) bool {
	for _, st := range s.CompletedSteps {
		if st == step {
			return true
		}
	}
	return false
}

// DrainRollbackActions returns a copy of the stack and empties it.
func (s *TransactionState) DrainRollbackActions() []RollbackAction {
	actions := make([]RollbackAction, len(s.RollbackActions))
	copy(actions, s.RollbackActions)
	s.RollbackActions = s.RollbackActions[:0]
	return actions
}
