// Package store provides an in-memory commission.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	deals       map[commission.DealID]commission.Deal
	people      map[commission.PersonID]commission.Person
	teams       map[commission.PersonID][]commission.TeamMembership
	offices     map[commission.OfficeID]commission.Office
	leadership  map[string]commission.LeadershipAssignment
	plans       map[commission.PayPlanID]commission.PayPlan
	rules       map[commission.RuleID]commission.Rule
	assignments map[string]commission.PlanAssignment
	snapshots   map[snapshotKey]commission.OrgSnapshot
	commissions map[commission.DealID][]commission.Commission
}

type snapshotKey struct {
	PersonID commission.PersonID
	Date     string
}

func NewMemory() *Memory {
	return &Memory{
		deals:       make(map[commission.DealID]commission.Deal),
		people:      make(map[commission.PersonID]commission.Person),
		teams:       make(map[commission.PersonID][]commission.TeamMembership),
		offices:     make(map[commission.OfficeID]commission.Office),
		leadership:  make(map[string]commission.LeadershipAssignment),
		plans:       make(map[commission.PayPlanID]commission.PayPlan),
		rules:       make(map[commission.RuleID]commission.Rule),
		assignments: make(map[string]commission.PlanAssignment),
		snapshots:   make(map[snapshotKey]commission.OrgSnapshot),
		commissions: make(map[commission.DealID][]commission.Commission),
	}
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deals = make(map[commission.DealID]commission.Deal)
	m.people = make(map[commission.PersonID]commission.Person)
	m.teams = make(map[commission.PersonID][]commission.TeamMembership)
	m.offices = make(map[commission.OfficeID]commission.Office)
	m.leadership = make(map[string]commission.LeadershipAssignment)
	m.plans = make(map[commission.PayPlanID]commission.PayPlan)
	m.rules = make(map[commission.RuleID]commission.Rule)
	m.assignments = make(map[string]commission.PlanAssignment)
	m.snapshots = make(map[snapshotKey]commission.OrgSnapshot)
	m.commissions = make(map[commission.DealID][]commission.Commission)
	return nil
}

var (
	_ commission.Store     = (*Memory)(nil)
	_ commission.OrgWriter = (*Memory)(nil)
)

// =============================================================================
// READS
// =============================================================================

func (m *Memory) GetDeal(_ context.Context, id commission.DealID) (*commission.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deals[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) ListDealIDs(_ context.Context) ([]commission.DealID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]commission.DealID, 0, len(m.deals))
	for id := range m.deals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) GetPerson(_ context.Context, id commission.PersonID) (*commission.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) TeamMemberships(_ context.Context, id commission.PersonID) ([]commission.TeamMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]commission.TeamMembership(nil), m.teams[id]...), nil
}

func (m *Memory) GetOffice(_ context.Context, id commission.OfficeID) (*commission.Office, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offices[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Memory) LeadershipAssignments(_ context.Context, role commission.LeadershipRole) ([]commission.LeadershipAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.LeadershipAssignment
	for _, a := range m.leadership {
		if a.Role == role {
			out = append(out, a)
		}
	}
	// Same order as the SQLite store: effective_from, then id.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Range.From.Equal(out[j].Range.From) {
			return out[i].Range.From.Before(out[j].Range.From)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetPayPlan(_ context.Context, id commission.PayPlanID) (*commission.PayPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) Rules(_ context.Context, id commission.PayPlanID) ([]commission.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.Rule
	for _, r := range m.rules {
		if r.PayPlanID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Assignments(_ context.Context, id commission.PersonID) ([]commission.PlanAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []commission.PlanAssignment
	for _, a := range m.assignments {
		if a.PersonID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) GetSnapshot(_ context.Context, id commission.PersonID, on commission.Date) (*commission.OrgSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[snapshotKey{PersonID: id, Date: on.String()}]
	if !ok {
		return nil, nil
	}
	s.TeamIDs = append([]commission.TeamID(nil), s.TeamIDs...)
	return &s, nil
}

func (m *Memory) DealCommissions(_ context.Context, id commission.DealID) ([]commission.Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]commission.Commission(nil), m.commissions[id]...), nil
}

// =============================================================================
// WRITES
// =============================================================================

// InsertSnapshot is write-once per (person, date).
func (m *Memory) InsertSnapshot(_ context.Context, s commission.OrgSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapshotKey{PersonID: s.PersonID, Date: s.Date.String()}
	if _, exists := m.snapshots[k]; exists {
		return commission.ErrDuplicateSnapshot
	}
	s.TeamIDs = append([]commission.TeamID(nil), s.TeamIDs...)
	m.snapshots[k] = s
	return nil
}

// ReplaceDealCommissions swaps the deal's set under one lock.
func (m *Memory) ReplaceDealCommissions(_ context.Context, id commission.DealID, rows []commission.Commission) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(rows) == 0 {
		delete(m.commissions, id)
		return 0, nil
	}
	m.commissions[id] = append([]commission.Commission(nil), rows...)
	return len(rows), nil
}

// ListPayPlans returns every plan ordered by name.
func (m *Memory) ListPayPlans(_ context.Context) ([]commission.PayPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]commission.PayPlan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteDealCommissions clears a deal's set without recomputing it.
func (m *Memory) DeleteDealCommissions(_ context.Context, id commission.DealID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.commissions, id)
	return nil
}

func (m *Memory) SaveDeal(_ context.Context, d commission.Deal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deals[d.ID] = d
	return nil
}

func (m *Memory) SavePerson(_ context.Context, p commission.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people[p.ID] = p
	return nil
}

func (m *Memory) SaveTeamMembership(_ context.Context, tm commission.TeamMembership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[tm.PersonID] = append(m.teams[tm.PersonID], tm)
	return nil
}

func (m *Memory) SaveOffice(_ context.Context, o commission.Office) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offices[o.ID] = o
	return nil
}

func (m *Memory) SaveLeadership(_ context.Context, a commission.LeadershipAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leadership[a.ID] = a
	return nil
}

func (m *Memory) SavePayPlan(_ context.Context, p commission.PayPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
	return nil
}

func (m *Memory) SaveRule(_ context.Context, r commission.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
	return nil
}

func (m *Memory) SaveAssignment(_ context.Context, a commission.PlanAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}
