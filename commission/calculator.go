/*
calculator.go - The Recalculate orchestrator

PURPOSE:
  Recalculate(dealID) turns one deal into its complete commission set and
  replaces whatever set was stored before. It is the only operation in the
  engine with side effects on the ledger.

ALGORITHM:
  1. Lock the deal (DealLocker), load it, resolve the effective date
     (close date, else sale date, else Clock.Today()).
  2. Snapshot the setter and the closer. Either missing is fatal.
  3. Direct payouts:
       self-gen deal     one self_gen row for the setter, nothing else
       otherwise         direct_seller for the setter, direct_closer for
                         the closer, independently
  4. Manager chain from the setter's ReportsToID, levels 1..MaxManagerDepth.
  5. Recruiter chain from the setter's RecruitedByID, levels 1..MaxRecruiterDepth.
  6. Office hierarchy: AD, Regional, Divisional, VP for the deal's office.
  7. ReplaceDealCommissions in one transaction; return the row count.

CHAIN WALK:
  A bounded loop, never recursion. A level whose person has no pay plan or
  no matching rule pays nothing but the walk still continues through that
  person's snapshot. A dangling reference or a repeated person ends the
  chain with a warning.

EVALUATION CONTEXT:
  Direct rules see the payee's own tier and role. Override rules see the
  setter's tier and the payee's role.

SEE ALSO:
  - rules.go: Evaluator
  - snapshot.go: SnapshotProvider
  - payplan.go: PayPlanRepository
  - details.go: CalcDetails and formula strings
*/
package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxManagerDepth   = 4
	DefaultMaxRecruiterDepth = 2
)

// =============================================================================
// CALCULATOR
// =============================================================================

// CalculatorConfig tunes a Calculator. Zero values select defaults.
type CalculatorConfig struct {
	Logger            *slog.Logger
	Clock             Clock
	Locker            DealLocker
	LockTimeout       time.Duration
	MaxManagerDepth   int
	MaxRecruiterDepth int
	Now               func() time.Time
}

// Calculator computes and stores commission sets.
type Calculator struct {
	store     Store
	plans     *PayPlanRepository
	snapshots *SnapshotProvider
	eval      *Evaluator
	locker    DealLocker
	clock     Clock
	logger    *slog.Logger
	now       func() time.Time

	lockTimeout       time.Duration
	maxManagerDepth   int
	maxRecruiterDepth int
}

func NewCalculator(store Store, cfg CalculatorConfig) *Calculator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Locker == nil {
		cfg.Locker = NewKeyedLocker()
	}
	if cfg.MaxManagerDepth <= 0 {
		cfg.MaxManagerDepth = DefaultMaxManagerDepth
	}
	if cfg.MaxRecruiterDepth <= 0 {
		cfg.MaxRecruiterDepth = DefaultMaxRecruiterDepth
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	plans := NewPayPlanRepository(store, cfg.Logger)
	return &Calculator{
		store: store,
		plans: plans,
		snapshots: &SnapshotProvider{
			People:    store,
			Snapshots: store,
			Plans:     plans,
			Logger:    cfg.Logger,
			Now:       cfg.Now,
		},
		eval:              &Evaluator{Logger: cfg.Logger},
		locker:            cfg.Locker,
		clock:             cfg.Clock,
		logger:            cfg.Logger,
		now:               cfg.Now,
		lockTimeout:       cfg.LockTimeout,
		maxManagerDepth:   cfg.MaxManagerDepth,
		maxRecruiterDepth: cfg.MaxRecruiterDepth,
	}
}

// Plans exposes the pay-plan repository the calculator reads through.
func (c *Calculator) Plans() *PayPlanRepository { return c.plans }

// Snapshots exposes the snapshot provider the calculator reads through.
func (c *Calculator) Snapshots() *SnapshotProvider { return c.snapshots }

// Commissions returns the stored commission set for a deal.
func (c *Calculator) Commissions(ctx context.Context, dealID DealID) ([]Commission, error) {
	return c.store.DealCommissions(ctx, dealID)
}

// Recalculate rebuilds the deal's commission set and returns the number of
// rows written. On a fatal error nothing is written and the prior set is
// left untouched.
func (c *Calculator) Recalculate(ctx context.Context, dealID DealID) (int, error) {
	unlock, err := c.lock(ctx, dealID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	deal, err := c.store.GetDeal(ctx, dealID)
	if err != nil {
		return 0, fmt.Errorf("read deal %s: %w", dealID, err)
	}
	if deal == nil {
		return 0, dealNotFound(dealID)
	}

	run := &recalcRun{
		Calculator: c,
		deal:       *deal,
		on:         deal.EffectiveDate(c.clock),
		log:        c.logger.With(slog.String("deal_id", string(dealID))),
	}
	if err := run.execute(ctx); err != nil {
		return 0, err
	}

	count, err := c.store.ReplaceDealCommissions(ctx, dealID, run.rows)
	if err != nil {
		return 0, fmt.Errorf("replace commissions for deal %s: %w", dealID, err)
	}

	run.log.Info("commissions recalculated",
		slog.Int("count", count),
		slog.String("effective_date", run.on.String()),
	)
	return count, nil
}

func (c *Calculator) lock(ctx context.Context, dealID DealID) (func(), error) {
	if c.lockTimeout <= 0 {
		return c.locker.Lock(ctx, dealID)
	}
	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()
	return c.locker.Lock(lockCtx, dealID)
}

// =============================================================================
// RECALC RUN - State for one Recalculate call
// =============================================================================

type recalcRun struct {
	*Calculator
	deal Deal
	on   Date
	log  *slog.Logger
	rows []Commission
}

func (r *recalcRun) execute(ctx context.Context) error {
	setter, err := r.party(ctx, "setter", r.deal.SetterID)
	if err != nil {
		return err
	}

	if r.deal.SelfGenerated() {
		if r.deal.CloserID != "" && r.deal.CloserID != r.deal.SetterID {
			if _, err := r.party(ctx, "closer", r.deal.CloserID); err != nil {
				return err
			}
		}
		if err := r.payout(ctx, payout{
			step:     "self_gen",
			payee:    setter,
			category: CategorySelfGen,
			evalCtx:  NewEvalContext(r.deal, setter.SetterTier, setter.RoleID),
			typ:      TypeSelfGen,
		}); err != nil {
			return err
		}
	} else {
		closer, err := r.party(ctx, "closer", r.deal.CloserID)
		if err != nil {
			return err
		}
		if err := r.payout(ctx, payout{
			step:     "direct_seller",
			payee:    setter,
			category: CategoryDirectSeller,
			evalCtx:  NewEvalContext(r.deal, setter.SetterTier, setter.RoleID),
			typ:      TypeDirectSeller,
		}); err != nil {
			return err
		}
		if err := r.payout(ctx, payout{
			step:     "direct_closer",
			payee:    closer,
			category: CategoryDirectCloser,
			evalCtx:  NewEvalContext(r.deal, closer.SetterTier, closer.RoleID),
			typ:      TypeDirectCloser,
		}); err != nil {
			return err
		}
	}

	if err := r.walkChain(ctx, setter, chain{
		source:   SourceManagerChain,
		maxDepth: r.maxManagerDepth,
		next:     func(s *OrgSnapshot) *PersonID { return s.ReportsToID },
		typeFor:  ManagerOverrideType,
	}); err != nil {
		return err
	}

	if err := r.walkChain(ctx, setter, chain{
		source:   SourceRecruiterChain,
		maxDepth: r.maxRecruiterDepth,
		next:     func(s *OrgSnapshot) *PersonID { return s.RecruitedByID },
		typeFor:  RecruiterOverrideType,
	}); err != nil {
		return err
	}

	return r.officeOverrides(ctx, setter)
}

// party snapshots a deal participant; absence is fatal.
func (r *recalcRun) party(ctx context.Context, kind string, id PersonID) (*OrgSnapshot, error) {
	if id == "" {
		return nil, personNotFound(kind, id)
	}
	snap, err := r.snapshots.GetOrCreate(ctx, id, r.on)
	if errors.Is(err, ErrPersonNotFound) {
		return nil, personNotFound(kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot %s %s: %w", kind, id, err)
	}
	return snap, nil
}

// =============================================================================
// SINGLE PAYOUT
// =============================================================================

type payout struct {
	step     string
	payee    *OrgSnapshot
	category RuleCategory
	evalCtx  EvalContext
	typ      CommissionType

	// Override-only.
	source OverrideSource
	level  int
}

// payout evaluates one payee's plan and appends at most one row. Missing
// plans and unmatched rules are skipped, never returned as errors.
func (r *recalcRun) payout(ctx context.Context, p payout) error {
	log := r.log.With(
		slog.String("step", p.step),
		slog.String("person_id", string(p.payee.PersonID)),
	)
	if p.level > 0 {
		log = log.With(slog.Int("level", p.level))
	}

	current, err := r.plans.CurrentPayPlan(ctx, p.payee.PersonID, &r.on)
	if err != nil {
		return err
	}
	if current == nil {
		log.Warn("no pay plan, skipping payout")
		return nil
	}

	rules, err := r.plans.RulesForPlan(ctx, current.Plan.ID, p.category)
	if err != nil {
		return err
	}
	if p.source != "" {
		rules = filterOverrides(rules, p.source, p.level)
	}

	rule, ok := r.eval.First(rules, p.evalCtx)
	if !ok {
		log.Warn("no applicable rule, skipping payout",
			slog.String("pay_plan_id", string(current.Plan.ID)),
		)
		return nil
	}

	amount := r.eval.Amount(rule, p.evalCtx)
	if !rule.CalcMethod.Known() {
		return nil
	}

	details := CalcDetails{
		Formula:     Formula(rule, p.evalCtx, amount),
		Result:      amount,
		PayPlanID:   current.Plan.ID,
		PayPlanName: current.Plan.Name,
		Rule:        rule.Snapshot(),
		SnapshotID:  p.payee.ID,
		TierUsed:    p.evalCtx.Tier,
		Deal:        r.deal.Facts(),
		Deductions:  decimal.Zero,
		Bonuses:     decimal.Zero,
	}
	if p.source != "" {
		level := p.level
		details.OverrideSource = p.source
		details.OverrideLevel = &level
	}

	r.rows = append(r.rows, Commission{
		ID:        CommissionID(uuid.NewString()),
		DealID:    r.deal.ID,
		PersonID:  p.payee.PersonID,
		Type:      p.typ,
		Amount:    amount,
		RuleID:    rule.ID,
		PayPlanID: current.Plan.ID,
		Details:   details,
		Status:    StatusPending,
		CreatedAt: r.now(),
	})
	return nil
}

func filterOverrides(rules []Rule, source OverrideSource, level int) []Rule {
	var out []Rule
	for _, rule := range rules {
		if rule.OverrideSource == source && rule.MatchesLevel(level) {
			out = append(out, rule)
		}
	}
	return out
}

// =============================================================================
// CHAIN OVERRIDES - Manager and recruiter lineages
// =============================================================================

type chain struct {
	source   OverrideSource
	maxDepth int
	next     func(*OrgSnapshot) *PersonID
	typeFor  func(level int) CommissionType
}

func (r *recalcRun) walkChain(ctx context.Context, setter *OrgSnapshot, ch chain) error {
	seen := map[PersonID]bool{setter.PersonID: true}
	setterCtx := NewEvalContext(r.deal, setter.SetterTier, nil)
	current := ch.next(setter)

	for level := 1; level <= ch.maxDepth && current != nil; level++ {
		id := *current
		log := r.log.With(
			slog.String("step", string(ch.source)),
			slog.String("person_id", string(id)),
			slog.Int("level", level),
		)

		if seen[id] {
			log.Warn("cycle in chain, stopping")
			return nil
		}
		seen[id] = true

		snap, err := r.snapshots.GetOrCreate(ctx, id, r.on)
		if errors.Is(err, ErrPersonNotFound) {
			log.Warn("dangling chain reference, stopping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("snapshot %s level %d: %w", ch.source, level, err)
		}

		evalCtx := setterCtx
		evalCtx.RoleID = snap.RoleID
		if err := r.payout(ctx, payout{
			step:     string(ch.source),
			payee:    snap,
			category: CategoryOverride,
			evalCtx:  evalCtx,
			typ:      ch.typeFor(level),
			source:   ch.source,
			level:    level,
		}); err != nil {
			return err
		}

		current = ch.next(snap)
	}
	return nil
}

// =============================================================================
// OFFICE HIERARCHY OVERRIDES
// =============================================================================

var officeRoles = []LeadershipRole{LeadAreaDirector, LeadRegional, LeadDivisional, LeadVP}

func (r *recalcRun) officeOverrides(ctx context.Context, setter *OrgSnapshot) error {
	if r.deal.OfficeID == nil {
		return nil
	}
	office, err := r.store.GetOffice(ctx, *r.deal.OfficeID)
	if err != nil {
		return fmt.Errorf("read office %s: %w", *r.deal.OfficeID, err)
	}
	if office == nil {
		r.log.Warn("deal office not found, no office overrides",
			slog.String("office_id", string(*r.deal.OfficeID)),
		)
		return nil
	}

	for _, role := range officeRoles {
		leader, err := r.officeLeader(ctx, *office, role)
		if err != nil {
			return err
		}
		if leader == nil {
			continue
		}

		level := role.OverrideLevel()
		snap, err := r.snapshots.GetOrCreate(ctx, leader.PersonID, r.on)
		if errors.Is(err, ErrPersonNotFound) {
			r.log.Warn("office leader not found, skipping",
				slog.String("step", string(SourceOfficeHierarchy)),
				slog.String("person_id", string(leader.PersonID)),
				slog.Int("level", level),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("snapshot %s %s: %w", role, leader.PersonID, err)
		}

		evalCtx := NewEvalContext(r.deal, setter.SetterTier, snap.RoleID)
		if err := r.payout(ctx, payout{
			step:     string(SourceOfficeHierarchy),
			payee:    snap,
			category: CategoryOverride,
			evalCtx:  evalCtx,
			typ:      OfficeOverrideType(role),
			source:   SourceOfficeHierarchy,
			level:    level,
		}); err != nil {
			return err
		}
	}
	return nil
}

// officeLeader finds the assignment effective on the deal date whose scope
// matches the office. VPs prefer a division scope over company-wide.
func (r *recalcRun) officeLeader(ctx context.Context, office Office, role LeadershipRole) (*LeadershipAssignment, error) {
	assignments, err := r.store.LeadershipAssignments(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("read %s leadership: %w", role, err)
	}

	var scoped, companyWide []LeadershipAssignment
	for _, a := range assignments {
		if !a.Range.Contains(r.on) {
			continue
		}
		switch {
		case role == LeadAreaDirector:
			if a.OfficeID != nil && *a.OfficeID == office.ID {
				scoped = append(scoped, a)
			}
		case role == LeadRegional:
			if a.RegionID != nil && office.RegionID != nil && *a.RegionID == *office.RegionID {
				scoped = append(scoped, a)
			}
		case role == LeadDivisional, role == LeadVP:
			if a.DivisionID != nil && office.DivisionID != nil && *a.DivisionID == *office.DivisionID {
				scoped = append(scoped, a)
			} else if role == LeadVP && a.CompanyWide() {
				companyWide = append(companyWide, a)
			}
		}
	}

	if winner := latestAssignment(scoped); winner != nil {
		return winner, nil
	}
	return latestAssignment(companyWide), nil
}

// latestAssignment picks the most recently started assignment; ties break
// on ID so the choice is deterministic.
func latestAssignment(candidates []LeadershipAssignment) *LeadershipAssignment {
	var best *LeadershipAssignment
	for i := range candidates {
		a := &candidates[i]
		if best == nil ||
			a.Range.From.After(best.Range.From) ||
			(a.Range.From.Equal(best.Range.From) && a.ID < best.ID) {
			best = a
		}
	}
	return best
}
