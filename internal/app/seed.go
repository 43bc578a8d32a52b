package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"hamasa/internal/config"
	"hamasa/internal/domain"
	"hamasa/internal/engine"
	"hamasa/internal/logging"
	"hamasa/internal/repo"
)

// AdminOptions describes the first super_admin account.
type AdminOptions struct {
	FirstName   string
	LastName    string
	PhoneNumber string
	Email       string
	Password    string
}

// CreateSuperAdmin inserts an active super_admin. A generated password is
// returned once in the result when none is given.
func CreateSuperAdmin(ctx context.Context, e engine.Engine, opts AdminOptions) (engine.StaffCreated, error) {
	created, err := e.CreateStaffUser(ctx, System, engine.StaffCreateOptions{
		FirstName:   opts.FirstName,
		LastName:    opts.LastName,
		PhoneNumber: opts.PhoneNumber,
		Email:       opts.Email,
		Role:        string(domain.RoleSuperAdmin),
		Password:    opts.Password,
		IsActive:    true,
	})
	if err != nil {
		return engine.StaffCreated{}, err
	}
	logging.Or(e.Log).Info("super admin created", zap.String("id", created.ID), zap.String("phone_number", created.PhoneNumber))
	return created, nil
}

// SeedResult counts what a seed run inserted. Existing names are left alone.
type SeedResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func (s *SeedResult) record(err error) error {
	var ce repo.ConflictError
	switch {
	case err == nil:
		s.Created++
	case errors.As(err, &ce):
		s.Skipped++
	default:
		return err
	}
	return nil
}

// SeedCatalog fills the lookup collections from the seed section of the
// config. It can run any number of times.
func SeedCatalog(ctx context.Context, e engine.Engine, seed config.Seed) (SeedResult, error) {
	var res SeedResult
	flat := map[repo.CatalogKind][]string{
		repo.ProjectCategories:   seed.Categories,
		repo.ReportAvenues:       seed.ReportAvenues,
		repo.ReportTimes:         seed.ReportTimes,
		repo.ReportConsultations: seed.ReportConsultations,
	}
	for _, kind := range repo.CatalogKinds {
		for _, name := range flat[kind] {
			_, err := e.CreateCatalogItem(ctx, System, kind, engine.CatalogInput{Name: name})
			if err := res.record(err); err != nil {
				return res, fmt.Errorf("seed %s %q: %w", kind.Entity(), name, err)
			}
		}
	}
	for category, sources := range seed.MediaCategories {
		categoryID, err := ensureMediaCategory(ctx, e, category, &res)
		if err != nil {
			return res, err
		}
		for _, source := range sources {
			_, err := e.CreateMediaSource(ctx, System, engine.MediaSourceInput{Name: source, CategoryID: categoryID})
			if err := res.record(err); err != nil {
				return res, fmt.Errorf("seed media source %q: %w", source, err)
			}
		}
	}
	logging.Or(e.Log).Info("catalog seeded", zap.Int("created", res.Created), zap.Int("skipped", res.Skipped))
	return res, nil
}

func ensureMediaCategory(ctx context.Context, e engine.Engine, name string, res *SeedResult) (string, error) {
	item, err := e.CreateCatalogItem(ctx, System, repo.MediaCategories, engine.CatalogInput{Name: name})
	if rerr := res.record(err); rerr != nil {
		return "", fmt.Errorf("seed media category %q: %w", name, rerr)
	}
	if err == nil {
		return item.ID, nil
	}
	existing, err := e.Repo.FindCatalogItemByName(ctx, nil, repo.MediaCategories, strings.TrimSpace(name))
	if err != nil {
		return "", fmt.Errorf("find media category %q: %w", name, err)
	}
	return existing.ID, nil
}
