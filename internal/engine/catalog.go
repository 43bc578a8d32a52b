package engine

import (
	"context"
	"fmt"
	"strings"

	"hamasa/internal/domain"
	"hamasa/internal/engine/auth"
	"hamasa/internal/repo"
)

type CatalogInput struct {
	Name        string
	Description string
}

type CatalogUpdate struct {
	Name        *string
	Description *string
}

func (e Engine) CreateCatalogItem(ctx context.Context, actor auth.Principal, kind repo.CatalogKind, in CatalogInput) (domain.CatalogItem, error) {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return domain.CatalogItem{}, err
	}
	if err := required("name", in.Name); err != nil {
		return domain.CatalogItem{}, err
	}
	now := e.stamp()
	item := domain.CatalogItem{ID: newID(), Name: strings.TrimSpace(in.Name), Description: strings.TrimSpace(in.Description), CreatedAt: now, UpdatedAt: now}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.CheckCatalogName(ctx, tx, kind, item.Name, ""); err != nil {
		return domain.CatalogItem{}, err
	}
	if err := e.Repo.InsertCatalogItem(ctx, tx, kind, item); err != nil {
		return domain.CatalogItem{}, fmt.Errorf("insert %s: %w", kind.Entity(), err)
	}
	if err := tx.Commit(); err != nil {
		return domain.CatalogItem{}, err
	}
	return item, nil
}

func (e Engine) ListCatalog(ctx context.Context, actor auth.Principal, kind repo.CatalogKind, search, sort string, page repo.Page) (Paged[domain.CatalogItem], error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return Paged[domain.CatalogItem]{}, err
	}
	items, total, err := e.Repo.ListCatalog(ctx, kind, strings.TrimSpace(search), sort, page)
	if err != nil {
		return Paged[domain.CatalogItem]{}, err
	}
	return paged(items, total, page), nil
}

func (e Engine) GetCatalogItem(ctx context.Context, actor auth.Principal, kind repo.CatalogKind, id string) (domain.CatalogItem, error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return domain.CatalogItem{}, err
	}
	return e.Repo.GetCatalogItem(ctx, kind, id)
}

func (e Engine) UpdateCatalogItem(ctx context.Context, actor auth.Principal, kind repo.CatalogKind, id string, in CatalogUpdate) (domain.CatalogItem, error) {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return domain.CatalogItem{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	defer tx.Rollback()
	item, err := e.Repo.GetCatalogItemTx(ctx, tx, kind, id)
	if err != nil {
		return domain.CatalogItem{}, err
	}
	if in.Name != nil {
		item.Name = trimmed(in.Name)
		if err := required("name", item.Name); err != nil {
			return domain.CatalogItem{}, err
		}
		if err := e.Repo.CheckCatalogName(ctx, tx, kind, item.Name, item.ID); err != nil {
			return domain.CatalogItem{}, err
		}
	}
	if in.Description != nil {
		item.Description = trimmed(in.Description)
	}
	item.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateCatalogItem(ctx, tx, kind, item); err != nil {
		return domain.CatalogItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CatalogItem{}, err
	}
	return item, nil
}

func (e Engine) DeleteCatalogItem(ctx context.Context, actor auth.Principal, kind repo.CatalogKind, id string) error {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ArchiveCatalogItem(ctx, tx, kind, id, e.stamp()); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) CreateThematicArea(ctx context.Context, actor auth.Principal, in ThematicAreaInput) (domain.ThematicArea, error) {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return domain.ThematicArea{}, err
	}
	if err := in.validate(); err != nil {
		return domain.ThematicArea{}, err
	}
	ta := e.newThematicArea(in, e.stamp())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ThematicArea{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertThematicArea(ctx, tx, ta); err != nil {
		return domain.ThematicArea{}, fmt.Errorf("insert thematic area: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ThematicArea{}, err
	}
	return ta, nil
}

func (e Engine) ListThematicAreas(ctx context.Context, actor auth.Principal, search, sort string, page repo.Page) (Paged[domain.ThematicArea], error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return Paged[domain.ThematicArea]{}, err
	}
	items, total, err := e.Repo.ListThematicAreas(ctx, strings.TrimSpace(search), sort, page)
	if err != nil {
		return Paged[domain.ThematicArea]{}, err
	}
	return paged(items, total, page), nil
}

func (e Engine) GetThematicArea(ctx context.Context, actor auth.Principal, id string) (domain.ThematicArea, error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return domain.ThematicArea{}, err
	}
	return e.Repo.GetThematicArea(ctx, id)
}

type ThematicAreaUpdate struct {
	Area                 *string
	Title                *string
	Description          *string
	MonitoringObjectives []string
}

func (e Engine) UpdateThematicArea(ctx context.Context, actor auth.Principal, id string, in ThematicAreaUpdate) (domain.ThematicArea, error) {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return domain.ThematicArea{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ThematicArea{}, err
	}
	defer tx.Rollback()
	ta, err := e.Repo.GetThematicAreaTx(ctx, tx, id)
	if err != nil {
		return domain.ThematicArea{}, err
	}
	if in.Area != nil {
		ta.Area = trimmed(in.Area)
	}
	if in.Title != nil {
		ta.Title = trimmed(in.Title)
	}
	if in.Description != nil {
		ta.Description = trimmed(in.Description)
	}
	if in.MonitoringObjectives != nil {
		ta.MonitoringObjectives = e.newThematicArea(ThematicAreaInput{MonitoringObjectives: in.MonitoringObjectives}, "").MonitoringObjectives
	}
	if err := requireAll("area", ta.Area, "title", ta.Title); err != nil {
		return domain.ThematicArea{}, err
	}
	ta.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateThematicArea(ctx, tx, ta); err != nil {
		return domain.ThematicArea{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ThematicArea{}, err
	}
	return ta, nil
}

func (e Engine) DeleteThematicArea(ctx context.Context, actor auth.Principal, id string) error {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ArchiveThematicArea(ctx, tx, id, e.stamp()); err != nil {
		return err
	}
	return tx.Commit()
}

type MediaSourceInput struct {
	Name       string
	CategoryID string
}

type MediaSourceUpdate struct {
	Name       *string
	CategoryID *string
}

func (e Engine) CreateMediaSource(ctx context.Context, actor auth.Principal, in MediaSourceInput) (domain.MediaSource, error) {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return domain.MediaSource{}, err
	}
	if err := requireAll("name", in.Name, "category_id", in.CategoryID); err != nil {
		return domain.MediaSource{}, err
	}
	now := e.stamp()
	m := domain.MediaSource{ID: newID(), Name: strings.TrimSpace(in.Name), CategoryID: strings.TrimSpace(in.CategoryID), CreatedAt: now, UpdatedAt: now}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MediaSource{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetCatalogItemTx(ctx, tx, repo.MediaCategories, m.CategoryID); err != nil {
		return domain.MediaSource{}, err
	}
	if err := e.Repo.CheckMediaSourceName(ctx, tx, m.CategoryID, m.Name, ""); err != nil {
		return domain.MediaSource{}, err
	}
	if err := e.Repo.InsertMediaSource(ctx, tx, m); err != nil {
		return domain.MediaSource{}, fmt.Errorf("insert media source: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.MediaSource{}, err
	}
	return m, nil
}

func (e Engine) ListMediaSources(ctx context.Context, actor auth.Principal, categoryID, search, sort string, page repo.Page) (Paged[domain.MediaSource], error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return Paged[domain.MediaSource]{}, err
	}
	items, total, err := e.Repo.ListMediaSources(ctx, strings.TrimSpace(categoryID), strings.TrimSpace(search), sort, page)
	if err != nil {
		return Paged[domain.MediaSource]{}, err
	}
	return paged(items, total, page), nil
}

func (e Engine) GetMediaSource(ctx context.Context, actor auth.Principal, id string) (domain.MediaSource, error) {
	if err := auth.RequireRole(actor, allRoles...); err != nil {
		return domain.MediaSource{}, err
	}
	return e.Repo.GetMediaSource(ctx, id)
}

func (e Engine) UpdateMediaSource(ctx context.Context, actor auth.Principal, id string, in MediaSourceUpdate) (domain.MediaSource, error) {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return domain.MediaSource{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MediaSource{}, err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMediaSourceTx(ctx, tx, id)
	if err != nil {
		return domain.MediaSource{}, err
	}
	if in.Name != nil {
		m.Name = trimmed(in.Name)
	}
	if in.CategoryID != nil {
		m.CategoryID = trimmed(in.CategoryID)
		if _, err := e.Repo.GetCatalogItemTx(ctx, tx, repo.MediaCategories, m.CategoryID); err != nil {
			return domain.MediaSource{}, err
		}
	}
	if err := required("name", m.Name); err != nil {
		return domain.MediaSource{}, err
	}
	if err := e.Repo.CheckMediaSourceName(ctx, tx, m.CategoryID, m.Name, m.ID); err != nil {
		return domain.MediaSource{}, err
	}
	m.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateMediaSource(ctx, tx, m); err != nil {
		return domain.MediaSource{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MediaSource{}, err
	}
	return m, nil
}

func (e Engine) DeleteMediaSource(ctx context.Context, actor auth.Principal, id string) error {
	if err := auth.RequireRole(actor, catalogWriteRoles...); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ArchiveMediaSource(ctx, tx, id, e.stamp()); err != nil {
		return err
	}
	return tx.Commit()
}
