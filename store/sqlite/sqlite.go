/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements commission.Store (everything the calculator reads and writes)
  and commission.OrgWriter (reference-data seeding) on SQLite. The same
  schema ports to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  commission.DealStore, PersonStore, OfficeStore: reference reads
  commission.PayPlanStore:    plans, rules, plan assignments
  commission.SnapshotStore:   write-once org snapshots
  commission.CommissionStore: per-deal commission sets
  commission.OrgWriter:       upserts for all reference data

KEY TABLES:
  deals, people, team_memberships, offices, leadership_assignments
  pay_plans, commission_rules, pay_plan_assignments
  org_snapshots:  one row per (person, date), never updated
  commissions:    derived rows, replaced wholesale per deal

SNAPSHOT UNIQUENESS:
  idx_unique_snapshot_person_date enforces one snapshot per person per day.
  A violating insert returns commission.ErrDuplicateSnapshot.

ATOMIC REPLACEMENT:
  ReplaceDealCommissions runs DELETE + INSERTs in one transaction, so a
  reader sees either the old set or the new one.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/commissions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  calc := commission.NewCalculator(store, commission.CalculatorConfig{})

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - commission/store.go: Interface definitions
  - commission/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ commission.Store     = (*Store)(nil)
	_ commission.OrgWriter = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Deals (input facts)
	CREATE TABLE IF NOT EXISTS deals (
		id TEXT PRIMARY KEY,
		deal_type TEXT NOT NULL,
		system_size TEXT NOT NULL,
		deal_value TEXT NOT NULL,
		price_per_unit TEXT NOT NULL,
		is_self_gen INTEGER NOT NULL DEFAULT 0,
		setter_id TEXT NOT NULL,
		closer_id TEXT NOT NULL,
		office_id TEXT,
		sale_date TEXT,
		close_date TEXT,
		created_at TEXT NOT NULL
	);

	-- People (live org data)
	CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		reports_to_id TEXT,
		recruited_by_id TEXT,
		office_id TEXT,
		role_id TEXT,
		setter_tier TEXT
	);

	CREATE TABLE IF NOT EXISTS team_memberships (
		team_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		PRIMARY KEY (team_id, person_id, effective_from)
	);

	CREATE INDEX IF NOT EXISTS idx_team_memberships_person
		ON team_memberships(person_id);

	-- Office hierarchy
	CREATE TABLE IF NOT EXISTS offices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		region_id TEXT,
		division_id TEXT
	);

	CREATE TABLE IF NOT EXISTS leadership_assignments (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		role TEXT NOT NULL,
		office_id TEXT,
		region_id TEXT,
		division_id TEXT,
		effective_from TEXT NOT NULL,
		effective_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leadership_role
		ON leadership_assignments(role, effective_from);

	-- Pay plans and rules
	CREATE TABLE IF NOT EXISTS pay_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS commission_rules (
		id TEXT PRIMARY KEY,
		pay_plan_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		calc_method TEXT NOT NULL,
		rate TEXT NOT NULL,
		role_id TEXT,
		conditions_json TEXT,
		override_source TEXT,
		override_level INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		sort_key INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_plan
		ON commission_rules(pay_plan_id, sort_key, created_at);

	CREATE TABLE IF NOT EXISTS pay_plan_assignments (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		pay_plan_id TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_plan_assignments_person
		ON pay_plan_assignments(person_id, effective_from, effective_to);

	-- Org snapshots (write-once)
	CREATE TABLE IF NOT EXISTS org_snapshots (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		snapshot_date TEXT NOT NULL,
		role_id TEXT,
		office_id TEXT,
		reports_to_id TEXT,
		recruited_by_id TEXT,
		pay_plan_id TEXT,
		setter_tier TEXT,
		team_ids_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_snapshot_person_date
		ON org_snapshots(person_id, snapshot_date);

	-- Commissions (derived, replaced per deal)
	CREATE TABLE IF NOT EXISTS commissions (
		id TEXT PRIMARY KEY,
		deal_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		commission_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		pay_plan_id TEXT NOT NULL,
		details_json TEXT NOT NULL,
		status TEXT NOT NULL,
		seq INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commissions_deal
		ON commissions(deal_id, seq);
	CREATE INDEX IF NOT EXISTS idx_commissions_person
		ON commissions(person_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes every row from every table.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"commissions", "org_snapshots", "pay_plan_assignments", "commission_rules",
		"pay_plans", "leadership_assignments", "offices", "team_memberships",
		"people", "deals",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// DEALS
// =============================================================================

const dealColumns = `id, deal_type, system_size, deal_value, price_per_unit, is_self_gen,
	setter_id, closer_id, office_id, sale_date, close_date, created_at`

// SaveDeal inserts or replaces a deal.
func (s *Store) SaveDeal(ctx context.Context, d commission.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deals (`+dealColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			deal_type = excluded.deal_type,
			system_size = excluded.system_size,
			deal_value = excluded.deal_value,
			price_per_unit = excluded.price_per_unit,
			is_self_gen = excluded.is_self_gen,
			setter_id = excluded.setter_id,
			closer_id = excluded.closer_id,
			office_id = excluded.office_id,
			sale_date = excluded.sale_date,
			close_date = excluded.close_date`,
		d.ID, d.DealType, d.SystemSize.String(), d.DealValue.String(), d.PricePerUnit.String(),
		d.IsSelfGen, d.SetterID, d.CloserID, nullID(d.OfficeID),
		nullDate(d.SaleDate), nullDate(d.CloseDate), createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save deal: %w", err)
	}
	return nil
}

// GetDeal retrieves a deal by ID.
func (s *Store) GetDeal(ctx context.Context, id commission.DealID) (*commission.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		d                             commission.Deal
		size, value, ppu, createdAt   string
		officeID, saleDate, closeDate sql.NullString
	)
	err := s.db.QueryRowContext(ctx, "SELECT "+dealColumns+" FROM deals WHERE id = ?", id).Scan(
		&d.ID, &d.DealType, &size, &value, &ppu, &d.IsSelfGen,
		&d.SetterID, &d.CloserID, &officeID, &saleDate, &closeDate, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}

	if d.SystemSize, err = decimal.NewFromString(size); err != nil {
		return nil, fmt.Errorf("deal %s system_size: %w", id, err)
	}
	if d.DealValue, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("deal %s deal_value: %w", id, err)
	}
	if d.PricePerUnit, err = decimal.NewFromString(ppu); err != nil {
		return nil, fmt.Errorf("deal %s price_per_unit: %w", id, err)
	}
	d.OfficeID = idPtr[commission.OfficeID](officeID)
	d.SaleDate = parseNullDate(saleDate)
	d.CloseDate = parseNullDate(closeDate)
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &d, nil
}

// ListDealIDs returns every deal ID in ascending order.
func (s *Store) ListDealIDs(ctx context.Context) ([]commission.DealID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM deals ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []commission.DealID
	for rows.Next() {
		var id commission.DealID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// PEOPLE / TEAMS
// =============================================================================

// SavePerson inserts or replaces a person.
func (s *Store) SavePerson(ctx context.Context, p commission.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO people (id, name, reports_to_id, recruited_by_id, office_id, role_id, setter_tier)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			reports_to_id = excluded.reports_to_id,
			recruited_by_id = excluded.recruited_by_id,
			office_id = excluded.office_id,
			role_id = excluded.role_id,
			setter_tier = excluded.setter_tier`,
		p.ID, p.Name, nullID(p.ReportsToID), nullID(p.RecruitedByID),
		nullID(p.OfficeID), nullID(p.RoleID), nullID(p.SetterTier),
	)
	if err != nil {
		return fmt.Errorf("failed to save person: %w", err)
	}
	return nil
}

// GetPerson retrieves a person by ID.
func (s *Store) GetPerson(ctx context.Context, id commission.PersonID) (*commission.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p                                    commission.Person
		reportsTo, recruitedBy, office, role sql.NullString
		tier                                 sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, reports_to_id, recruited_by_id, office_id, role_id, setter_tier FROM people WHERE id = ?",
		id,
	).Scan(&p.ID, &p.Name, &reportsTo, &recruitedBy, &office, &role, &tier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}

	p.ReportsToID = idPtr[commission.PersonID](reportsTo)
	p.RecruitedByID = idPtr[commission.PersonID](recruitedBy)
	p.OfficeID = idPtr[commission.OfficeID](office)
	p.RoleID = idPtr[commission.RoleID](role)
	p.SetterTier = idPtr[commission.Tier](tier)
	return &p, nil
}

// SaveTeamMembership inserts or replaces a team membership.
func (s *Store) SaveTeamMembership(ctx context.Context, m commission.TeamMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_memberships (team_id, person_id, effective_from, effective_to)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(team_id, person_id, effective_from) DO UPDATE SET
			effective_to = excluded.effective_to`,
		m.TeamID, m.PersonID, m.Range.From.String(), nullDate(m.Range.To),
	)
	if err != nil {
		return fmt.Errorf("failed to save team membership: %w", err)
	}
	return nil
}

// TeamMemberships returns every membership for a person.
func (s *Store) TeamMemberships(ctx context.Context, id commission.PersonID) ([]commission.TeamMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT team_id, person_id, effective_from, effective_to FROM team_memberships WHERE person_id = ? ORDER BY team_id",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commission.TeamMembership
	for rows.Next() {
		var (
			m    commission.TeamMembership
			from string
			to   sql.NullString
		)
		if err := rows.Scan(&m.TeamID, &m.PersonID, &from, &to); err != nil {
			return nil, err
		}
		if m.Range, err = parseRange(from, to); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// OFFICES / LEADERSHIP
// =============================================================================

// SaveOffice inserts or replaces an office.
func (s *Store) SaveOffice(ctx context.Context, o commission.Office) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offices (id, name, region_id, division_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			region_id = excluded.region_id,
			division_id = excluded.division_id`,
		o.ID, o.Name, nullID(o.RegionID), nullID(o.DivisionID),
	)
	if err != nil {
		return fmt.Errorf("failed to save office: %w", err)
	}
	return nil
}

// GetOffice retrieves an office by ID.
func (s *Store) GetOffice(ctx context.Context, id commission.OfficeID) (*commission.Office, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		o                commission.Office
		region, division sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, region_id, division_id FROM offices WHERE id = ?", id,
	).Scan(&o.ID, &o.Name, &region, &division)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get office: %w", err)
	}
	o.RegionID = idPtr[commission.RegionID](region)
	o.DivisionID = idPtr[commission.DivisionID](division)
	return &o, nil
}

// SaveLeadership inserts or replaces a leadership assignment.
func (s *Store) SaveLeadership(ctx context.Context, a commission.LeadershipAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leadership_assignments
		(id, person_id, role, office_id, region_id, division_id, effective_from, effective_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			person_id = excluded.person_id,
			role = excluded.role,
			office_id = excluded.office_id,
			region_id = excluded.region_id,
			division_id = excluded.division_id,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to`,
		a.ID, a.PersonID, a.Role, nullID(a.OfficeID), nullID(a.RegionID), nullID(a.DivisionID),
		a.Range.From.String(), nullDate(a.Range.To),
	)
	if err != nil {
		return fmt.Errorf("failed to save leadership assignment: %w", err)
	}
	return nil
}

// LeadershipAssignments returns every assignment for a role.
func (s *Store) LeadershipAssignments(ctx context.Context, role commission.LeadershipRole) ([]commission.LeadershipAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, role, office_id, region_id, division_id, effective_from, effective_to
		FROM leadership_assignments WHERE role = ? ORDER BY effective_from, id`,
		role,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commission.LeadershipAssignment
	for rows.Next() {
		var (
			a                        commission.LeadershipAssignment
			office, region, division sql.NullString
			from                     string
			to                       sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.PersonID, &a.Role, &office, &region, &division, &from, &to); err != nil {
			return nil, err
		}
		a.OfficeID = idPtr[commission.OfficeID](office)
		a.RegionID = idPtr[commission.RegionID](region)
		a.DivisionID = idPtr[commission.DivisionID](division)
		if a.Range, err = parseRange(from, to); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// PAY PLANS / RULES / ASSIGNMENTS
// =============================================================================

// SavePayPlan inserts or replaces a pay plan.
func (s *Store) SavePayPlan(ctx context.Context, p commission.PayPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pay_plans (id, name, description)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description`,
		p.ID, p.Name, p.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to save pay plan: %w", err)
	}
	return nil
}

// GetPayPlan retrieves a pay plan by ID.
func (s *Store) GetPayPlan(ctx context.Context, id commission.PayPlanID) (*commission.PayPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p    commission.PayPlan
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description FROM pay_plans WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &desc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pay plan: %w", err)
	}
	p.Description = desc.String
	return &p, nil
}

// ListPayPlans returns every plan ordered by name.
func (s *Store) ListPayPlans(ctx context.Context) ([]commission.PayPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description FROM pay_plans ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commission.PayPlan
	for rows.Next() {
		var (
			p    commission.PayPlan
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &desc); err != nil {
			return nil, err
		}
		p.Description = desc.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveRule inserts or replaces a commission rule.
func (s *Store) SaveRule(ctx context.Context, r commission.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conditionsJSON, err := json.Marshal(r.Conditions)
	if err != nil {
		return fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO commission_rules
		(id, pay_plan_id, name, category, calc_method, rate, role_id, conditions_json,
		 override_source, override_level, active, sort_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pay_plan_id = excluded.pay_plan_id,
			name = excluded.name,
			category = excluded.category,
			calc_method = excluded.calc_method,
			rate = excluded.rate,
			role_id = excluded.role_id,
			conditions_json = excluded.conditions_json,
			override_source = excluded.override_source,
			override_level = excluded.override_level,
			active = excluded.active,
			sort_key = excluded.sort_key`,
		r.ID, r.PayPlanID, r.Name, r.Category, r.CalcMethod, r.Rate.String(), nullID(r.RoleID),
		string(conditionsJSON), nullString(string(r.OverrideSource)), r.OverrideLevel,
		r.Active, r.SortKey, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// Rules returns every rule of a plan, active or not.
func (s *Store) Rules(ctx context.Context, id commission.PayPlanID) ([]commission.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pay_plan_id, name, category, calc_method, rate, role_id, conditions_json,
		       override_source, override_level, active, sort_key, created_at
		FROM commission_rules WHERE pay_plan_id = ? ORDER BY sort_key, created_at, id`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commission.Rule
	for rows.Next() {
		var (
			r                        commission.Rule
			rate, createdAt          string
			role, conditions, source sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.PayPlanID, &r.Name, &r.Category, &r.CalcMethod, &rate, &role,
			&conditions, &source, &r.OverrideLevel, &r.Active, &r.SortKey, &createdAt); err != nil {
			return nil, err
		}
		if r.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("rule %s rate: %w", r.ID, err)
		}
		if conditions.Valid && conditions.String != "" {
			if err := json.Unmarshal([]byte(conditions.String), &r.Conditions); err != nil {
				return nil, fmt.Errorf("rule %s conditions: %w", r.ID, err)
			}
		}
		r.RoleID = idPtr[commission.RoleID](role)
		r.OverrideSource = commission.OverrideSource(source.String)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveAssignment inserts or updates a pay-plan assignment.
func (s *Store) SaveAssignment(ctx context.Context, a commission.PlanAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pay_plan_assignments (id, person_id, pay_plan_id, effective_from, effective_to, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			person_id = excluded.person_id,
			pay_plan_id = excluded.pay_plan_id,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			notes = excluded.notes`,
		a.ID, a.PersonID, a.PayPlanID, a.Range.From.String(), nullDate(a.Range.To), nullString(a.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to save plan assignment: %w", err)
	}
	return nil
}

// Assignments returns every pay-plan assignment of a person.
func (s *Store) Assignments(ctx context.Context, id commission.PersonID) ([]commission.PlanAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, pay_plan_id, effective_from, effective_to, notes
		FROM pay_plan_assignments WHERE person_id = ? ORDER BY effective_from`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commission.PlanAssignment
	for rows.Next() {
		var (
			a         commission.PlanAssignment
			from      string
			to, notes sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.PersonID, &a.PayPlanID, &from, &to, &notes); err != nil {
			return nil, err
		}
		if a.Range, err = parseRange(from, to); err != nil {
			return nil, err
		}
		a.Notes = notes.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// ORG SNAPSHOTS (write-once)
// =============================================================================

// InsertSnapshot stores a new snapshot. A second snapshot for the same
// person and date returns commission.ErrDuplicateSnapshot.
func (s *Store) InsertSnapshot(ctx context.Context, snap commission.OrgSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	teamsJSON, err := json.Marshal(snap.TeamIDs)
	if err != nil {
		return fmt.Errorf("failed to encode team ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO org_snapshots
		(id, person_id, snapshot_date, role_id, office_id, reports_to_id, recruited_by_id,
		 pay_plan_id, setter_tier, team_ids_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.PersonID, snap.Date.String(), nullID(snap.RoleID), nullID(snap.OfficeID),
		nullID(snap.ReportsToID), nullID(snap.RecruitedByID), nullID(snap.PayPlanID),
		nullID(snap.SetterTier), string(teamsJSON), snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return commission.ErrDuplicateSnapshot
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot for (person, date).
func (s *Store) GetSnapshot(ctx context.Context, id commission.PersonID, on commission.Date) (*commission.OrgSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		snap                                       commission.OrgSnapshot
		date, createdAt                            string
		role, office, reportsTo, recruitedBy, plan sql.NullString
		tier, teams                                sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, person_id, snapshot_date, role_id, office_id, reports_to_id, recruited_by_id,
		       pay_plan_id, setter_tier, team_ids_json, created_at
		FROM org_snapshots WHERE person_id = ? AND snapshot_date = ?`,
		id, on.String(),
	).Scan(&snap.ID, &snap.PersonID, &date, &role, &office, &reportsTo, &recruitedBy,
		&plan, &tier, &teams, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if snap.Date, err = commission.ParseDate(date); err != nil {
		return nil, err
	}
	snap.RoleID = idPtr[commission.RoleID](role)
	snap.OfficeID = idPtr[commission.OfficeID](office)
	snap.ReportsToID = idPtr[commission.PersonID](reportsTo)
	snap.RecruitedByID = idPtr[commission.PersonID](recruitedBy)
	snap.PayPlanID = idPtr[commission.PayPlanID](plan)
	snap.SetterTier = idPtr[commission.Tier](tier)
	if teams.Valid && teams.String != "" && teams.String != "null" {
		if err := json.Unmarshal([]byte(teams.String), &snap.TeamIDs); err != nil {
			return nil, fmt.Errorf("snapshot %s team ids: %w", snap.ID, err)
		}
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &snap, nil
}

// =============================================================================
// COMMISSIONS
// =============================================================================

// ReplaceDealCommissions deletes the deal's commissions and inserts rows in
// one transaction.
func (s *Store) ReplaceDealCommissions(ctx context.Context, id commission.DealID, rows []commission.Commission) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM commissions WHERE deal_id = ?", id); err != nil {
		return 0, fmt.Errorf("failed to delete commissions: %w", err)
	}

	for i, c := range rows {
		if err := insertCommission(ctx, sqlTx, c, i); err != nil {
			return 0, err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit commissions: %w", err)
	}
	return len(rows), nil
}

func insertCommission(ctx context.Context, db execer, c commission.Commission, seq int) error {
	detailsJSON, err := json.Marshal(c.Details)
	if err != nil {
		return fmt.Errorf("failed to encode calc details: %w", err)
	}
	status := c.Status
	if status == "" {
		status = commission.StatusPending
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO commissions
		(id, deal_id, person_id, commission_type, amount, rule_id, pay_plan_id,
		 details_json, status, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DealID, c.PersonID, c.Type, c.Amount.StringFixed(2), c.RuleID, c.PayPlanID,
		string(detailsJSON), status, seq, c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert commission: %w", err)
	}
	return nil
}

// DealCommissions returns a deal's commissions in calculation order.
func (s *Store) DealCommissions(ctx context.Context, id commission.DealID) ([]commission.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deal_id, person_id, commission_type, amount, rule_id, pay_plan_id,
		       details_json, status, created_at
		FROM commissions WHERE deal_id = ? ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commission.Commission
	for rows.Next() {
		var (
			c                          commission.Commission
			amount, details, createdAt string
		)
		if err := rows.Scan(&c.ID, &c.DealID, &c.PersonID, &c.Type, &amount, &c.RuleID, &c.PayPlanID,
			&details, &c.Status, &createdAt); err != nil {
			return nil, err
		}
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("commission %s amount: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(details), &c.Details); err != nil {
			return nil, fmt.Errorf("commission %s details: %w", c.ID, err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// Helper functions
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullID[T ~string](p *T) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return nullString(string(*p))
}

func idPtr[T ~string](ns sql.NullString) *T {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := T(ns.String)
	return &v
}

func nullDate(d *commission.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) *commission.Date {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := commission.ParseDate(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func parseRange(from string, to sql.NullString) (commission.EffectiveRange, error) {
	start, err := commission.ParseDate(from)
	if err != nil {
		return commission.EffectiveRange{}, err
	}
	return commission.EffectiveRange{From: start, To: parseNullDate(to)}, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
