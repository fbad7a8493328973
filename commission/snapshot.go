package commission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ORG SNAPSHOT - Frozen organisational position for (person, date)
// =============================================================================

// OrgSnapshot captures a person's organisational position as observed when
// it was first needed for a given day. It is never mutated afterwards, so
// commissions computed against it can always be re-explained.
type OrgSnapshot struct {
	ID            SnapshotID
	PersonID      PersonID
	Date          Date
	RoleID        *RoleID
	OfficeID      *OfficeID
	ReportsToID   *PersonID
	RecruitedByID *PersonID
	PayPlanID     *PayPlanID
	SetterTier    *Tier
	TeamIDs       []TeamID
	CreatedAt     time.Time
}

// =============================================================================
// SNAPSHOT PROVIDER
// =============================================================================

// SnapshotProvider is the get-or-create front door for org snapshots.
type SnapshotProvider struct {
	People    PersonStore
	Snapshots SnapshotStore
	Plans     *PayPlanRepository
	Logger    *slog.Logger
	Now       func() time.Time
}

// GetOrCreate returns the existing snapshot for (personID, on) or builds one
// from the person's live data. A losing concurrent writer re-reads the
// winner's row.
func (p *SnapshotProvider) GetOrCreate(ctx context.Context, personID PersonID, on Date) (*OrgSnapshot, error) {
	existing, err := p.Snapshots.GetSnapshot(ctx, personID, on)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s@%s: %w", personID, on, err)
	}
	if existing != nil {
		return existing, nil
	}

	person, err := p.People.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("read person %s: %w", personID, err)
	}
	if person == nil {
		return nil, personNotFound("person", personID)
	}

	snap, err := p.capture(ctx, *person, on)
	if err != nil {
		return nil, err
	}

	err = p.Snapshots.InsertSnapshot(ctx, *snap)
	if errors.Is(err, ErrDuplicateSnapshot) {
		p.logger().Debug("snapshot created concurrently, re-reading",
			slog.String("person_id", string(personID)),
			slog.String("date", on.String()),
		)
		winner, rerr := p.Snapshots.GetSnapshot(ctx, personID, on)
		if rerr != nil {
			return nil, fmt.Errorf("re-read snapshot %s@%s: %w", personID, on, rerr)
		}
		if winner == nil {
			return nil, fmt.Errorf("snapshot %s@%s reported duplicate but not readable", personID, on)
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert snapshot %s@%s: %w", personID, on, err)
	}
	return snap, nil
}

func (p *SnapshotProvider) capture(ctx context.Context, person Person, on Date) (*OrgSnapshot, error) {
	snap := &OrgSnapshot{
		ID:            SnapshotID(uuid.NewString()),
		PersonID:      person.ID,
		Date:          on,
		RoleID:        person.RoleID,
		OfficeID:      person.OfficeID,
		ReportsToID:   person.ReportsToID,
		RecruitedByID: person.RecruitedByID,
		SetterTier:    person.SetterTier,
		CreatedAt:     p.now(),
	}

	if p.Plans != nil {
		current, err := p.Plans.CurrentPayPlan(ctx, person.ID, &on)
		if err != nil {
			return nil, err
		}
		if current != nil {
			id := current.Plan.ID
			snap.PayPlanID = &id
		}
	}

	memberships, err := p.People.TeamMemberships(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("read team memberships for %s: %w", person.ID, err)
	}
	for _, m := range memberships {
		if m.Range.Contains(on) {
			snap.TeamIDs = append(snap.TeamIDs, m.TeamID)
		}
	}
	sort.Slice(snap.TeamIDs, func(i, j int) bool { return snap.TeamIDs[i] < snap.TeamIDs[j] })

	return snap, nil
}

func (p *SnapshotProvider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *SnapshotProvider) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
