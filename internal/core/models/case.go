// Package models holds the plain data types shared by the scheduler's
// functional core and the registry/archive ports. None of these types
// perform I/O; they are the nouns the rest of the system operates on.
package models

import "time"

// CaseStatus is one of the four states a case record may occupy.
type CaseStatus string

const (
	StatusToProcess  CaseStatus = "TO_PROCESS"
	StatusProcessing CaseStatus = "PROCESSING"
	StatusProcessed  CaseStatus = "PROCESSED"
	StatusReceived   CaseStatus = "RECEIVED"
)

// Identity names a (machine, user) pair — the unit of "who" throughout the
// grid protocol: who submitted, who is currently processing, who attempted.
type Identity struct {
	Machine string
	User    string
}

// Origin records who submitted a case and, once pulled back, when.
type Origin struct {
	Machine     string
	User        string
	SubmittedAt time.Time
	ReceivedAt  *time.Time
}

// ProcessorAttempt is one entry in the append-only attempts history.
type ProcessorAttempt struct {
	Machine string
	User    string
}

// CurrentProcessor is the sole holder of a PROCESSING case.
type CurrentProcessor struct {
	Machine   string
	User      string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Processors is the full processing history plus the current holder, if any.
type Processors struct {
	Attempts []ProcessorAttempt
	Current  *CurrentProcessor
}

// CaseRecord is one case as stored in the Case Registry.
type CaseRecord struct {
	ID            string
	UserGroup     string
	Instance      string
	Application   string
	Status        CaseStatus
	Path          string
	Origin        Origin
	Processors    Processors
	LastHeartbeat time.Time
}

// CurrentIdentity reports the identity of the live processor, if any.
func (c *CaseRecord) CurrentIdentity() (Identity, bool) {
	if c.Processors.Current == nil {
		return Identity{}, false
	}
	return Identity{Machine: c.Processors.Current.Machine, User: c.Processors.Current.User}, true
}

// VersionStatus is the outcome of a version-gate lookup.
type VersionStatus string

const (
	VersionAllowed      VersionStatus = "ALLOWED"
	VersionWarning      VersionStatus = "WARNING"
	VersionRefused      VersionStatus = "REFUSED"
	VersionUncontrolled VersionStatus = "UNCONTROLLED"
)

// VersionRecord is one row of the versions collection.
type VersionRecord struct {
	ID      string
	Status  VersionStatus
	Message string
}

// JobDescriptor is what the scheduler hands to the worker pool after a
// successful claim.
type JobDescriptor struct {
	CaseID        string
	Application   string
	InputPath     string
	Claimer       Identity
	OriginMachine string
	StartedAt     time.Time
}

// StatusProjection is the flattened shape UI collaborators consume.
type StatusProjection struct {
	ID                  string
	Application         string
	Status              CaseStatus
	CounterpartyMachine string
	SubmittedAt         time.Time
	StartedAt           *time.Time
	EndedAt             *time.Time
	Attempts            int
}
