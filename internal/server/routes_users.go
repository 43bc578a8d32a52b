package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"hamasa/internal/domain"
	"hamasa/internal/engine"
	"hamasa/internal/repo"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
}

type userPath struct {
	ID string `path:"id"`
}

type assignmentPath struct {
	ID       string `path:"id"`
	ClientID string `path:"client_id"`
}

func registerStaff(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-staff-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create staff user",
		Tags:          []string{"users"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateStaffRequest `json:"body"`
	}) (*response[engine.StaffCreated], error) {
		u, err := rt.e.CreateStaffUser(ctx, actor(ctx), input.Body.options())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-staff-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List staff users",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		pageParams
		Role   string `query:"role"`
		Search string `query:"search"`
	}) (*response[engine.Paged[engine.Account]], error) {
		res, err := rt.e.ListStaffUsers(ctx, actor(ctx), repo.StaffFilters{Role: input.Role, Search: input.Search}, input.page())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-staff-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get staff user",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *userPath) (*response[engine.Account], error) {
		u, err := rt.e.GetStaffUser(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-staff-user",
		Method:      http.MethodPatch,
		Path:        "/users/{id}",
		Summary:     "Update or archive staff user",
		Tags:        []string{"users"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateStaffRequest `json:"body"`
	}) (*response[engine.Account], error) {
		b := input.Body
		u, err := rt.e.UpdateStaffUser(ctx, actor(ctx), input.ID, engine.StaffUpdateOptions{
			FirstName:   b.FirstName,
			LastName:    b.LastName,
			PhoneNumber: b.PhoneNumber,
			Email:       b.Email,
			Gender:      b.Gender,
			Role:        b.Role,
			IsActive:    b.IsActive,
		})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-staff-user",
		Method:        http.MethodDelete,
		Path:          "/users/{id}",
		Summary:       "Permanently delete staff user",
		Tags:          []string{"users"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *userPath) (*struct{}, error) {
		if err := rt.e.DeleteStaffUser(ctx, actor(ctx), input.ID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-staff-assignments",
		Method:      http.MethodGet,
		Path:        "/users/{id}/clients",
		Summary:     "List the clients a staff user is assigned to",
		Tags:        []string{"users"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *userPath) (*response[[]domain.StaffClientAssignment], error) {
		out, err := rt.e.ListStaffAssignments(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-staff-client",
		Method:        http.MethodPost,
		Path:          "/users/{id}/clients/{client_id}",
		Summary:       "Assign a staff user to a client",
		Tags:          []string{"users"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *assignmentPath) (*response[domain.StaffClientAssignment], error) {
		a, err := rt.e.AssignStaff(ctx, actor(ctx), input.ID, input.ClientID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "unassign-staff-client",
		Method:        http.MethodDelete,
		Path:          "/users/{id}/clients/{client_id}",
		Summary:       "Remove a staff user from a client",
		Tags:          []string{"users"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *assignmentPath) (*struct{}, error) {
		if err := rt.e.UnassignStaff(ctx, actor(ctx), input.ID, input.ClientID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})
}

type clientPath struct {
	ID string `path:"id"`
}

func registerClients(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Create client with its org admin",
		Tags:          []string{"clients"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest `json:"body"`
	}) (*response[engine.ClientCreated], error) {
		b := input.Body
		res, err := rt.e.CreateClient(ctx, actor(ctx), engine.ClientCreateOptions{
			Name:        b.Name,
			Country:     b.Country,
			FirstName:   b.FirstName,
			LastName:    b.LastName,
			PhoneNumber: b.PhoneNumber,
			Email:       b.Email,
		})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
		Tags:        []string{"clients"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		pageParams
		Name    string `query:"name"`
		Country string `query:"country"`
		Sort    string `query:"sort" doc:"asc or desc by name"`
	}) (*response[engine.Paged[domain.Client]], error) {
		res, err := rt.e.ListClients(ctx, actor(ctx), repo.ClientFilters{Name: input.Name, Country: input.Country, Sort: input.Sort}, input.page())
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/clients/{id}",
		Summary:     "Get client",
		Tags:        []string{"clients"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *clientPath) (*response[domain.Client], error) {
		c, err := rt.e.GetClient(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-client",
		Method:      http.MethodPatch,
		Path:        "/clients/{id}",
		Summary:     "Update client",
		Tags:        []string{"clients"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateClientRequest `json:"body"`
	}) (*response[domain.Client], error) {
		b := input.Body
		c, err := rt.e.UpdateClient(ctx, actor(ctx), input.ID, engine.ClientUpdateOptions{
			Name:        b.Name,
			Country:     b.Country,
			FirstName:   b.FirstName,
			LastName:    b.LastName,
			PhoneNumber: b.PhoneNumber,
			Email:       b.Email,
		})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-client",
		Method:        http.MethodDelete,
		Path:          "/clients/{id}",
		Summary:       "Delete client with its users and projects",
		Tags:          []string{"clients"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *clientPath) (*struct{}, error) {
		if err := rt.e.DeleteClient(ctx, actor(ctx), input.ID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})
}

type clientUserPath struct {
	ID     string `path:"id"`
	UserID string `path:"user_id"`
}

func registerClientUsers(api huma.API, rt routes) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client-user",
		Method:        http.MethodPost,
		Path:          "/clients/{id}/users",
		Summary:       "Create client user",
		Tags:          []string{"clients"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body CreateClientUserRequest `json:"body"`
	}) (*response[engine.ClientUserCreated], error) {
		b := input.Body
		u, err := rt.e.CreateClientUser(ctx, actor(ctx), input.ID, engine.ClientUserCreateOptions{
			FirstName:   b.FirstName,
			LastName:    b.LastName,
			PhoneNumber: b.PhoneNumber,
			Email:       b.Email,
			Role:        b.Role,
			Password:    b.Password,
			IsActive:    b.IsActive != nil && *b.IsActive,
		})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-client-users",
		Method:      http.MethodGet,
		Path:        "/clients/{id}/users",
		Summary:     "List client users",
		Tags:        []string{"clients"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *clientPath) (*response[[]engine.Account], error) {
		users, err := rt.e.ListClientUsers(ctx, actor(ctx), input.ID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(users), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client-user",
		Method:      http.MethodGet,
		Path:        "/clients/{id}/users/{user_id}",
		Summary:     "Get client user",
		Tags:        []string{"clients"},
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *clientUserPath) (*response[engine.Account], error) {
		u, err := rt.e.GetClientUser(ctx, actor(ctx), input.ID, input.UserID)
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-client-user",
		Method:      http.MethodPatch,
		Path:        "/clients/{id}/users/{user_id}",
		Summary:     "Update client user",
		Tags:        []string{"clients"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID     string                  `path:"id"`
		UserID string                  `path:"user_id"`
		Body   UpdateClientUserRequest `json:"body"`
	}) (*response[engine.Account], error) {
		b := input.Body
		u, err := rt.e.UpdateClientUser(ctx, actor(ctx), input.ID, input.UserID, engine.ClientUserUpdateOptions{
			FirstName:   b.FirstName,
			LastName:    b.LastName,
			PhoneNumber: b.PhoneNumber,
			Email:       b.Email,
			Role:        b.Role,
			IsActive:    b.IsActive,
		})
		if err != nil {
			return nil, rt.handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-client-user",
		Method:        http.MethodDelete,
		Path:          "/clients/{id}/users/{user_id}",
		Summary:       "Delete client user",
		Tags:          []string{"clients"},
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *clientUserPath) (*struct{}, error) {
		if err := rt.e.DeleteClientUser(ctx, actor(ctx), input.ID, input.UserID); err != nil {
			return nil, rt.handleError(err)
		}
		return nil, nil
	})
}
