package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"hamasa/internal/domain"
	"hamasa/internal/engine"
	"hamasa/internal/repo"
)

var readErrors = []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}

type catalogPath struct {
	ID string `path:"id"`
}

type catalogListParams struct {
	pageParams
	Search string `query:"search"`
	Sort   string `query:"sort" doc:"asc or desc by name"`
}

func registerCatalog(api huma.API, rt routes) {
	for _, kind := range repo.CatalogKinds {
		registerCatalogKind(api, rt, kind)
	}
	registerThematicAreas(api, rt)
	registerMediaSources(api, rt)
}

func registerCatalogKind(api huma.API, rt routes, kind repo.CatalogKind) {
	base := "/projects/" + string(kind)
	name := kind.Entity()
	opID := strings.ReplaceAll(name, " ", "-")

	huma.Register(api, huma.Operation{
		OperationID:   "create-" + opID,
		Method:        http.MethodPost,
		Path:          base,
		Summary:       "Create " + name,
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CatalogRequest `json:"body"`
	}) (*response[domain.CatalogItem], error) {
		item, err := rt.e.CreateCatalogItem(ctx, actor(ctx), kind, engine.CatalogInput{Name: input.Body.Name, Description: input.Body.Description})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(item), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-" + opID,
		Method:      http.MethodGet,
		Path:        base,
		Summary:     "List " + strings.ReplaceAll(string(kind), "-", " "),
		Tags:        []string{"catalog"},
		Errors:      readErrors,
	}, func(ctx context.Context, input *catalogListParams) (*response[engine.Paged[domain.CatalogItem]], error) {
		res, err := rt.e.ListCatalog(ctx, actor(ctx), kind, input.Search, input.Sort, input.page())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-" + opID,
		Method:      http.MethodGet,
		Path:        base + "/{id}",
		Summary:     "Get " + name,
		Tags:        []string{"catalog"},
		Errors:      readErrors,
	}, func(ctx context.Context, input *catalogPath) (*response[domain.CatalogItem], error) {
		item, err := rt.e.GetCatalogItem(ctx, actor(ctx), kind, input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(item), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-" + opID,
		Method:      http.MethodPut,
		Path:        base + "/{id}",
		Summary:     "Update " + name,
		Tags:        []string{"catalog"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateCatalogRequest `json:"body"`
	}) (*response[domain.CatalogItem], error) {
		item, err := rt.e.UpdateCatalogItem(ctx, actor(ctx), kind, input.ID, engine.CatalogUpdate{Name: input.Body.Name, Description: input.Body.Description})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(item), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-" + opID,
		Method:        http.MethodDelete,
		Path:          base + "/{id}",
		Summary:       "Delete " + name,
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *catalogPath) (*struct{}, error) {
		if err := rt.e.DeleteCatalogItem(ctx, actor(ctx), kind, input.ID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})
}

func registerThematicAreas(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-thematic-area",
		Method:        http.MethodPost,
		Path:          "/projects/thematic-areas",
		Summary:       "Create thematic area",
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body ThematicAreaRequest `json:"body"`
	}) (*response[domain.ThematicArea], error) {
		ta, err := rt.e.CreateThematicArea(ctx, actor(ctx), input.Body.input())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(ta), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-thematic-areas",
		Method:      http.MethodGet,
		Path:        "/projects/thematic-areas",
		Summary:     "List thematic areas",
		Tags:        []string{"catalog"},
		Errors:      readErrors,
	}, func(ctx context.Context, input *catalogListParams) (*response[engine.Paged[domain.ThematicArea]], error) {
		res, err := rt.e.ListThematicAreas(ctx, actor(ctx), input.Search, input.Sort, input.page())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-thematic-area",
		Method:      http.MethodGet,
		Path:        "/projects/thematic-areas/{id}",
		Summary:     "Get thematic area",
		Tags:        []string{"catalog"},
		Errors:      readErrors,
	}, func(ctx context.Context, input *catalogPath) (*response[domain.ThematicArea], error) {
		ta, err := rt.e.GetThematicArea(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(ta), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-thematic-area",
		Method:      http.MethodPut,
		Path:        "/projects/thematic-areas/{id}",
		Summary:     "Update thematic area",
		Tags:        []string{"catalog"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body UpdateThematicAreaRequest `json:"body"`
	}) (*response[domain.ThematicArea], error) {
		b := input.Body
		ta, err := rt.e.UpdateThematicArea(ctx, actor(ctx), input.ID, engine.ThematicAreaUpdate{
			Area:                 b.Area,
			Title:                b.Title,
			Description:          b.Description,
			MonitoringObjectives: b.MonitoringObjectives,
		})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(ta), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-thematic-area",
		Method:        http.MethodDelete,
		Path:          "/projects/thematic-areas/{id}",
		Summary:       "Delete thematic area",
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *catalogPath) (*struct{}, error) {
		if err := rt.e.DeleteThematicArea(ctx, actor(ctx), input.ID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})
}

func registerMediaSources(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-media-source",
		Method:        http.MethodPost,
		Path:          "/projects/media-sources",
		Summary:       "Create media source",
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body MediaSourceRequest `json:"body"`
	}) (*response[domain.MediaSource], error) {
		ms, err := rt.e.CreateMediaSource(ctx, actor(ctx), engine.MediaSourceInput{Name: input.Body.Name, CategoryID: input.Body.CategoryID})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(ms), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-media-sources",
		Method:      http.MethodGet,
		Path:        "/projects/media-sources",
		Summary:     "List media sources",
		Tags:        []string{"catalog"},
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		catalogListParams
		CategoryID string `query:"category_id"`
	}) (*response[engine.Paged[domain.MediaSource]], error) {
		res, err := rt.e.ListMediaSources(ctx, actor(ctx), input.CategoryID, input.Search, input.Sort, input.page())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-media-source",
		Method:      http.MethodGet,
		Path:        "/projects/media-sources/{id}",
		Summary:     "Get media source",
		Tags:        []string{"catalog"},
		Errors:      readErrors,
	}, func(ctx context.Context, input *catalogPath) (*response[domain.MediaSource], error) {
		ms, err := rt.e.GetMediaSource(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(ms), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-media-source",
		Method:      http.MethodPut,
		Path:        "/projects/media-sources/{id}",
		Summary:     "Update media source",
		Tags:        []string{"catalog"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body UpdateMediaSourceRequest `json:"body"`
	}) (*response[domain.MediaSource], error) {
		ms, err := rt.e.UpdateMediaSource(ctx, actor(ctx), input.ID, engine.MediaSourceUpdate{Name: input.Body.Name, CategoryID: input.Body.CategoryID})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(ms), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-media-source",
		Method:        http.MethodDelete,
		Path:          "/projects/media-sources/{id}",
		Summary:       "Delete media source",
		Tags:          []string{"catalog"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *catalogPath) (*struct{}, error) {
		if err := rt.e.DeleteMediaSource(ctx, actor(ctx), input.ID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})
}
