/*
store.go - Persistence contracts consumed by the engine

PURPOSE:
  Defines the interface between the engine and the relational store. The
  engine reads deals, people, offices, leadership, pay plans and rules; it
  writes only org snapshots (write-once) and commission sets (replaced
  wholesale per deal).

NOT-FOUND CONVENTION:
  Single-record getters return (nil, nil) when the record does not exist.
  The engine decides whether absence is fatal or skippable.

SNAPSHOT UNIQUENESS:
  InsertSnapshot must enforce uniqueness of (PersonID, Date) and return
  ErrDuplicateSnapshot on violation. The SnapshotProvider treats that as
  "someone else created it first" and re-reads.

ATOMIC REPLACEMENT:
  ReplaceDealCommissions deletes every commission for the deal and inserts
  the new set in one transaction. Callers hold the deal lock around it.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - commission/store/memory.go: In-memory for testing
*/
package commission

import "context"

// DealStore reads deals.
type DealStore interface {
	GetDeal(ctx context.Context, id DealID) (*Deal, error)
	ListDealIDs(ctx context.Context) ([]DealID, error)
}

// PersonStore reads live organisational data.
type PersonStore interface {
	GetPerson(ctx context.Context, id PersonID) (*Person, error)

	// TeamMemberships returns every membership for the person, any date.
	TeamMemberships(ctx context.Context, id PersonID) ([]TeamMembership, error)
}

// OfficeStore reads offices and office leadership.
type OfficeStore interface {
	GetOffice(ctx context.Context, id OfficeID) (*Office, error)

	// LeadershipAssignments returns all historical assignments for a role.
	LeadershipAssignments(ctx context.Context, role LeadershipRole) ([]LeadershipAssignment, error)
}

// PayPlanStore reads plans, their rules and their assignments.
type PayPlanStore interface {
	GetPayPlan(ctx context.Context, id PayPlanID) (*PayPlan, error)

	// Rules returns every rule of the plan, active or not, in any order.
	Rules(ctx context.Context, id PayPlanID) ([]Rule, error)

	// Assignments returns every plan assignment of the person, any order.
	Assignments(ctx context.Context, id PersonID) ([]PlanAssignment, error)

	// SaveAssignment inserts or updates an assignment by ID.
	SaveAssignment(ctx context.Context, a PlanAssignment) error
}

// SnapshotStore persists write-once org snapshots.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, id PersonID, on Date) (*OrgSnapshot, error)
	InsertSnapshot(ctx context.Context, s OrgSnapshot) error
}

// CommissionStore persists commission sets.
type CommissionStore interface {
	ReplaceDealCommissions(ctx context.Context, id DealID, rows []Commission) (int, error)
	DealCommissions(ctx context.Context, id DealID) ([]Commission, error)
}

// Store is everything the calculator needs.
type Store interface {
	DealStore
	PersonStore
	OfficeStore
	PayPlanStore
	SnapshotStore
	CommissionStore
}

// OrgWriter seeds reference data. Both store implementations provide it;
// the engine itself never calls it.
type OrgWriter interface {
	SavePerson(ctx context.Context, p Person) error
	SaveTeamMembership(ctx context.Context, m TeamMembership) error
	SaveOffice(ctx context.Context, o Office) error
	SaveLeadership(ctx context.Context, a LeadershipAssignment) error
	SaveDeal(ctx context.Context, d Deal) error
	SavePayPlan(ctx context.Context, p PayPlan) error
	SaveRule(ctx context.Context, r Rule) error
	SaveAssignment(ctx context.Context, a PlanAssignment) error
}
