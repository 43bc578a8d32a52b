package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"hamasa/internal/domain"
	"hamasa/internal/engine"
	"hamasa/internal/repo"
)

type projectPath struct {
	ID string `path:"id"`
}

type collaboratorPath struct {
	ID     string `path:"id"`
	UserID string `path:"user_id"`
}

func registerProjects(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		Tags:          []string{"projects"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*response[domain.ProjectDetail], error) {
		p, err := rt.e.CreateProject(ctx, actor(ctx), input.Body.options())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Tags:        []string{"projects"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		pageParams
		Title    string `query:"title"`
		ClientID string `query:"client_id"`
		Status   string `query:"status"`
		Sort     string `query:"sort" doc:"asc or desc by creation time"`
	}) (*response[engine.Paged[domain.Project]], error) {
		f := repo.ProjectFilters{Title: input.Title, ClientID: input.ClientID, Status: input.Status, Sort: input.Sort}
		res, err := rt.e.ListProjects(ctx, actor(ctx), f, input.page())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Tags:        []string{"projects"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*response[domain.ProjectDetail], error) {
		p, err := rt.e.GetProject(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPut,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Description: "Status is changed through PATCH /projects/{id}/status only.",
		Tags:        []string{"projects"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*response[domain.ProjectDetail], error) {
		p, err := rt.e.UpdateProject(ctx, actor(ctx), input.ID, input.Body.options())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{id}",
		Summary:       "Delete project",
		Tags:          []string{"projects"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *projectPath) (*struct{}, error) {
		if err := rt.e.DeleteProject(ctx, actor(ctx), input.ID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}/status",
		Summary:     "Move a project to another status",
		Tags:        []string{"projects"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*response[engine.ProjectTransition], error) {
		res, err := rt.e.TransitionProject(ctx, actor(ctx), input.ID, input.Body.options())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/progress",
		Summary:     "Project status history",
		Tags:        []string{"projects"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*response[[]domain.ProgressEntry], error) {
		log, err := rt.e.ProjectProgress(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(log), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-collaborator",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/collaborators/{user_id}",
		Summary:       "Add a client user as collaborator",
		Tags:          []string{"projects"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *collaboratorPath) (*response[domain.ProjectDetail], error) {
		p, err := rt.e.AddCollaborator(ctx, actor(ctx), input.ID, input.UserID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-collaborator",
		Method:      http.MethodDelete,
		Path:        "/projects/{id}/collaborators/{user_id}",
		Summary:     "Remove a collaborator",
		Tags:        []string{"projects"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *collaboratorPath) (*response[domain.ProjectDetail], error) {
		p, err := rt.e.RemoveCollaborator(ctx, actor(ctx), input.ID, input.UserID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(p), nil
	})
}

func registerML(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID: "project-ml-details",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/ml-details",
		Summary:     "Project context for analysis jobs",
		Tags:        []string{"ml"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*response[engine.MLDetails], error) {
		d, err := rt.e.MLDetails(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-ml-csv",
		Method:      http.MethodPost,
		Path:        "/projects/ml-csv-url",
		Summary:     "Import an analysis CSV as unverified reports",
		Tags:        []string{"ml"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body MLImportRequest `json:"body"`
	}) (*response[engine.MLImportResult], error) {
		res, err := rt.e.ImportMLCSV(ctx, actor(ctx), input.Body.UID, input.Body.CSVURL)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-ml-results",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/ml-results",
		Summary:     "Stored analysis rows of a project",
		Tags:        []string{"ml"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
		pageParams
	}) (*response[engine.Paged[domain.MLResult]], error) {
		res, err := rt.e.MLResults(ctx, actor(ctx), input.ID, input.page())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})
}

type reportPath struct {
	ID string `path:"id"`
}

func registerReports(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-report",
		Method:        http.MethodPost,
		Path:          "/project/{project_id}/reports",
		Summary:       "Create report",
		Tags:          []string{"reports"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string        `path:"project_id"`
		Body      ReportRequest `json:"body"`
	}) (*response[domain.Report], error) {
		rep, err := rt.e.CreateReport(ctx, actor(ctx), input.ProjectID, input.Body.input())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/project/{project_id}/reports",
		Summary:     "List a project's reports, newest first",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		pageParams
		Status string `query:"status"`
		Search string `query:"search"`
	}) (*response[engine.Paged[domain.Report]], error) {
		res, err := rt.e.ListReports(ctx, actor(ctx), input.ProjectID, repo.ReportFilters{Status: input.Status, Search: input.Search}, input.page())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/project/report/{id}",
		Summary:     "Get report",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*response[domain.Report], error) {
		rep, err := rt.e.GetReport(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report",
		Method:      http.MethodPut,
		Path:        "/project/report/{id}",
		Summary:     "Update report",
		Tags:        []string{"reports"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateReportRequest `json:"body"`
	}) (*response[domain.Report], error) {
		rep, err := rt.e.UpdateReport(ctx, actor(ctx), input.ID, input.Body.options())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-report",
		Method:        http.MethodDelete,
		Path:          "/project/report/{id}",
		Summary:       "Delete report",
		Tags:          []string{"reports"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *reportPath) (*struct{}, error) {
		if err := rt.e.DeleteReport(ctx, actor(ctx), input.ID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report-status",
		Method:      http.MethodPatch,
		Path:        "/project/report/{id}/status",
		Summary:     "Verify or reject a report",
		Tags:        []string{"reports"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*response[engine.ReportTransition], error) {
		res, err := rt.e.SetReportStatus(ctx, actor(ctx), input.ID, input.Body.options())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "report-progress",
		Method:      http.MethodGet,
		Path:        "/project/report/{id}/progress",
		Summary:     "Report status history",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*response[[]domain.ProgressEntry], error) {
		log, err := rt.e.ReportProgress(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(log), nil
	})
}

func registerDashboard(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-overview",
		Method:      http.MethodGet,
		Path:        "/dashboards/overview",
		Summary:     "Overview counters",
		Tags:        []string{"dashboard"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*response[domain.Dashboard], error) {
		d, err := rt.e.Dashboard(ctx, actor(ctx))
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(d), nil
	})
}
