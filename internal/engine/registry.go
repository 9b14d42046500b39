package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"staffline/internal/config"
	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/repo"
)

// SeedCatalog upserts the reference data from configuration and returns the number of items written.
func (e Engine) SeedCatalog(ctx context.Context, cat config.CatalogConfig) (int, error) {
	groups := []struct {
		kind    domain.CatalogKind
		entries []config.CatalogEntry
	}{
		{domain.CatalogProfile, cat.Profiles},
		{domain.CatalogSeniority, cat.Seniorities},
		{domain.CatalogLanguage, cat.Languages},
		{domain.CatalogExpertise, cat.Expertises},
	}
	n := 0
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		for _, g := range groups {
			for _, entry := range g.entries {
				item := domain.CatalogItem{Kind: g.kind, ID: strings.TrimSpace(entry.ID), Name: entry.Name, Rank: entry.Rank}
				if item.ID == "" {
					return invalidRequest("catalog %s entry without id", g.kind)
				}
				if item.Name == "" {
					item.Name = item.ID
				}
				if err := e.Repo.UpsertCatalogItem(ctx, tx, item); err != nil {
					return fmt.Errorf("seed catalog %s/%s: %w", g.kind, item.ID, err)
				}
				n++
			}
		}
		return nil
	})
	return n, err
}

// AddCatalogItem upserts one reference entry.
func (e Engine) AddCatalogItem(ctx context.Context, item domain.CatalogItem) (domain.CatalogItem, error) {
	if !item.Kind.Valid() {
		return item, invalidRequest("unknown catalog kind %q", item.Kind)
	}
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return item, invalidRequest("catalog id is required")
	}
	if item.Name == "" {
		item.Name = item.ID
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		return e.Repo.UpsertCatalogItem(ctx, tx, item)
	})
	return item, err
}

type UpsertCandidateOptions struct {
	ID           string
	DisplayName  string
	ProfileID    string
	Seniority    string
	Languages    []string
	Expertises   []string
	Availability domain.Availability
	ActorID      string
}

// UpsertCandidate registers or replaces a candidate record. New candidates default to available.
func (e Engine) UpsertCandidate(ctx context.Context, opts UpsertCandidateOptions) (domain.Candidate, error) {
	c := domain.Candidate{
		ID:           strings.TrimSpace(opts.ID),
		DisplayName:  strings.TrimSpace(opts.DisplayName),
		ProfileID:    strings.TrimSpace(opts.ProfileID),
		Seniority:    strings.TrimSpace(opts.Seniority),
		Languages:    repo.NormalizeSet(opts.Languages),
		Expertises:   repo.NormalizeSet(opts.Expertises),
		Availability: opts.Availability,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ProfileID == "" || c.Seniority == "" {
		return c, invalidRequest("candidate profile and seniority are required")
	}
	if c.Availability == "" {
		c.Availability = domain.AvailabilityAvailable
	}
	if !c.Availability.Valid() {
		return c, invalidRequest("unknown availability %q", c.Availability)
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.validateCatalogRefs(ctx, tx, c.ProfileID, c.Seniority, c.Languages, c.Expertises); err != nil {
			return err
		}
		now := e.stamp()
		c.CreatedAt, c.UpdatedAt = now, now
		existing, err := e.Repo.GetCandidateTx(ctx, tx, c.ID)
		switch {
		case err == nil:
			c.CreatedAt = existing.CreatedAt
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		if err := e.Repo.UpsertCandidate(ctx, tx, c); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.CandidateUpserted, "", "candidate", c.ID, opts.ActorID,
			events.EventPayload{"profile_id": c.ProfileID, "seniority": c.Seniority, "availability": c.Availability})
	})
	return c, err
}

// SetAvailability changes a candidate's availability. Pending offers are not touched;
// eligibility is checked again at the next offer.
func (e Engine) SetAvailability(ctx context.Context, candidateID string, availability domain.Availability, actorID string) (domain.Candidate, error) {
	var c domain.Candidate
	if !availability.Valid() {
		return c, invalidRequest("unknown availability %q", availability)
	}
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetCandidateAvailability(ctx, tx, candidateID, availability, e.stamp()); err != nil {
			return notFound(err, "candidate", candidateID)
		}
		var err error
		c, err = e.Repo.GetCandidateTx(ctx, tx, candidateID)
		if err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.CandidateUpserted, "", "candidate", c.ID, actorID,
			events.EventPayload{"availability": c.Availability})
	})
	return c, err
}
