/*
Package commission provides the commission calculation engine.

PURPOSE:
  Turns a single sales transaction (a Deal) into the complete, auditable set
  of Commission rows owed for it: the direct seller(s), and every qualifying
  manager, recruiter and office leader above them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Deal: immutable sales fact (type, size, value, price-per-unit, parties)
  - Person: live organisational record (manager, recruiter, office, role, tier)
  - Office / LeadershipAssignment: office hierarchy for office overrides
  - Commission: the engine's only persisted output, one row per payee per deal

DESIGN PRINCIPLES:
  1. Derived data: commissions are replaced wholesale on every recalculation
  2. Precision: money, sizes and rates use decimal.Decimal
  3. Type safety: distinct ID types for people, deals, plans and rules
  4. Auditability: every commission carries a CalcDetails payload

SEE ALSO:
  - rules.go: Commission rules and the evaluator
  - snapshot.go: Point-in-time org snapshots
  - calculator.go: The Recalculate orchestrator
*/
package commission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PersonID string
type DealID string
type PayPlanID string
type RuleID string
type SnapshotID string
type CommissionID string
type OfficeID string
type RegionID string
type DivisionID string
type RoleID string
type TeamID string

// =============================================================================
// TIER - Direct-seller classification
// =============================================================================

type Tier string

const (
	TierRookie   Tier = "rookie"
	TierVeteran  Tier = "veteran"
	TierTeamLead Tier = "team_lead"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierRookie, TierVeteran, TierTeamLead:
		return true
	}
	return false
}

// =============================================================================
// DEAL
// =============================================================================

// Deal is one sales transaction eligible for commissioning.
type Deal struct {
	ID           DealID
	DealType     string // "solar", "hvac", "roofing", ...
	SystemSize   decimal.Decimal
	DealValue    decimal.Decimal
	PricePerUnit decimal.Decimal
	IsSelfGen    bool
	SetterID     PersonID
	CloserID     PersonID
	OfficeID     *OfficeID
	SaleDate     *Date
	CloseDate    *Date
	CreatedAt    time.Time
}

// SelfGenerated reports whether one person both originated and closed the deal.
func (d Deal) SelfGenerated() bool {
	return d.IsSelfGen || (d.SetterID != "" && d.SetterID == d.CloserID)
}

// EffectiveDate prefers the close date, then the sale date, then today.
func (d Deal) EffectiveDate(clock Clock) Date {
	if d.CloseDate != nil && !d.CloseDate.IsZero() {
		return *d.CloseDate
	}
	if d.SaleDate != nil && !d.SaleDate.IsZero() {
		return *d.SaleDate
	}
	return clock.Today()
}

// Facts is the compact copy of the deal embedded in audit payloads.
func (d Deal) Facts() DealFacts {
	return DealFacts{
		DealType:     d.DealType,
		DealValue:    d.DealValue,
		SystemSize:   d.SystemSize,
		PricePerUnit: d.PricePerUnit,
	}
}

// =============================================================================
// PERSON / ORGANISATION
// =============================================================================

// Person is the live organisational record. Commission math never reads it
// directly; it is copied into an OrgSnapshot first.
type Person struct {
	ID            PersonID
	Name          string
	ReportsToID   *PersonID
	RecruitedByID *PersonID
	OfficeID      *OfficeID
	RoleID        *RoleID
	SetterTier    *Tier
}

// TeamMembership places a person on a team for a date range.
type TeamMembership struct {
	TeamID   TeamID
	PersonID PersonID
	Range    EffectiveRange
}

// Office belongs to at most one region and one division.
type Office struct {
	ID         OfficeID
	Name       string
	RegionID   *RegionID
	DivisionID *DivisionID
}

// LeadershipRole is the kind of office-hierarchy leadership held.
type LeadershipRole string

const (
	LeadAreaDirector LeadershipRole = "area_director" // scoped to one office
	LeadRegional     LeadershipRole = "regional"      // scoped to a region
	LeadDivisional   LeadershipRole = "divisional"    // scoped to a division
	LeadVP           LeadershipRole = "vp"            // division, or company-wide when unscoped
)

// OverrideLevel is the fixed office-hierarchy level for the role.
func (r LeadershipRole) OverrideLevel() int {
	switch r {
	case LeadAreaDirector:
		return 1
	case LeadRegional:
		return 2
	case LeadDivisional:
		return 3
	case LeadVP:
		return 4
	}
	return 0
}

// LeadershipAssignment associates a person with a leadership role for a
// date range. Exactly one scope field is set, except for a company-wide VP
// where none is.
type LeadershipAssignment struct {
	ID         string
	PersonID   PersonID
	Role       LeadershipRole
	OfficeID   *OfficeID
	RegionID   *RegionID
	DivisionID *DivisionID
	Range      EffectiveRange
}

// CompanyWide reports whether the assignment carries no scope.
func (a LeadershipAssignment) CompanyWide() bool {
	return a.OfficeID == nil && a.RegionID == nil && a.DivisionID == nil
}

// =============================================================================
// COMMISSION - The engine's only output
// =============================================================================

// CommissionType tags what a commission row pays for.
type CommissionType string

const (
	TypeDirectSeller CommissionType = "direct_seller"
	TypeDirectCloser CommissionType = "direct_closer"
	TypeSelfGen      CommissionType = "self_gen"
)

// ManagerOverrideType tags a manager-chain override at the given depth.
func ManagerOverrideType(level int) CommissionType {
	return CommissionType(fmt.Sprintf("override_manager_l%d", level))
}

// RecruiterOverrideType tags a recruiter-chain override at the given depth.
func RecruiterOverrideType(level int) CommissionType {
	return CommissionType(fmt.Sprintf("override_recruiter_l%d", level))
}

// OfficeOverrideType tags an office-hierarchy override by role.
func OfficeOverrideType(role LeadershipRole) CommissionType {
	return CommissionType("override_" + string(role))
}

type CommissionStatus string

const (
	StatusPending  CommissionStatus = "pending"
	StatusApproved CommissionStatus = "approved"
	StatusPaid     CommissionStatus = "paid"
	StatusHeld     CommissionStatus = "held"
	StatusVoid     CommissionStatus = "void"
)

// Commission is one payout owed to one person for one deal.
type Commission struct {
	ID        CommissionID
	DealID    DealID
	PersonID  PersonID
	Type      CommissionType
	Amount    decimal.Decimal
	RuleID    RuleID
	PayPlanID PayPlanID
	Details   CalcDetails
	Status    CommissionStatus
	CreatedAt time.Time
}
