package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"certflow/internal/certification/models"
	"certflow/internal/certification/ports"
	id "certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
)

// catalog is the bootstrap file format. Durations use Go syntax ("720h").
type catalog struct {
	Competencies []struct {
		ID            string   `json:"id"`
		Name          string   `json:"name"`
		RequiredKinds []string `json:"required_kinds"`
		Duration      string   `json:"duration"`
		Validity      string   `json:"validity"`
	} `json:"competencies"`
	Evaluators []struct {
		UserID       string   `json:"user_id"`
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
		Capacity     int      `json:"capacity"`
	} `json:"evaluators"`
	Managers []string `json:"managers"`
}

type capabilityGranter interface {
	GrantCapability(ctx context.Context, userID id.UserID, capability string) error
}

// memoryGranter is the in-memory store's grant, which cannot fail.
type memoryGranter interface {
	GrantCapability(userID id.UserID, capability string)
}

// loadCatalog upserts competencies and evaluators and grants the manager
// capability. Re-loading the same file is idempotent.
func loadCatalog(ctx context.Context, b backend, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var c catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	now := time.Now().UTC()

	for _, cc := range c.Competencies {
		compID, err := id.ParseCompetencyID(cc.ID)
		if err != nil {
			return fmt.Errorf("competency %q: %w", cc.ID, err)
		}
		duration, err := parseOptionalDuration(cc.Duration)
		if err != nil {
			return fmt.Errorf("competency %q duration: %w", cc.ID, err)
		}
		validity, err := parseOptionalDuration(cc.Validity)
		if err != nil {
			return fmt.Errorf("competency %q validity: %w", cc.ID, err)
		}
		if err := b.SaveCompetency(ctx, models.NewCompetency(compID, cc.Name, cc.RequiredKinds, duration, validity)); err != nil {
			return fmt.Errorf("save competency %q: %w", cc.ID, err)
		}
	}

	for _, ec := range c.Evaluators {
		userID, err := id.ParseUserID(ec.UserID)
		if err != nil {
			return fmt.Errorf("evaluator %q: %w", ec.Name, err)
		}
		caps := make([]id.CompetencyID, 0, len(ec.Capabilities))
		for _, raw := range ec.Capabilities {
			compID, err := id.ParseCompetencyID(raw)
			if err != nil {
				return fmt.Errorf("evaluator %q capability %q: %w", ec.Name, raw, err)
			}
			caps = append(caps, compID)
		}
		ev := models.NewEvaluator(userID, ec.Name, caps, ec.Capacity, now)
		existing, err := b.FindEvaluatorByUser(ctx, userID)
		switch {
		case err == nil:
			ev.ID = existing.ID
			ev.CreatedAt = existing.CreatedAt
		case !errors.Is(err, sentinel.ErrNotFound):
			return fmt.Errorf("find evaluator %q: %w", ec.Name, err)
		}
		if err := b.SaveEvaluator(ctx, ev); err != nil {
			return fmt.Errorf("save evaluator %q: %w", ec.Name, err)
		}
	}

	for _, raw := range c.Managers {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			return fmt.Errorf("manager %q: %w", raw, err)
		}
		switch g := b.(type) {
		case capabilityGranter:
			if err := g.GrantCapability(ctx, userID, ports.CapabilityManageCandidates); err != nil {
				return fmt.Errorf("grant manager %q: %w", raw, err)
			}
		case memoryGranter:
			g.GrantCapability(userID, ports.CapabilityManageCandidates)
		default:
			return fmt.Errorf("backend cannot grant capabilities")
		}
	}
	return nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
