package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"hamasa/internal/engine"
	"hamasa/internal/engine/auth"
	"hamasa/internal/metrics"
	"hamasa/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// RateLimitPerMinute bounds login and OTP requests per client IP. Zero disables it.
	RateLimitPerMinute int
	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP replace the socket
	// address. Without it the limiter keys on the connection peer.
	TrustProxyHeaders bool
}

// apiError is the error envelope every failure is rendered with.
type apiError struct {
	status  int
	Detail  string         `json:"detail" example:"You do not have permission to access this resource"`
	Code    string         `json:"code" example:"forbidden"`
	Context map[string]any `json:"context,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Detail }

type response[T any] struct {
	Body T `json:"body"`
}

func reply[T any](v T) *response[T] { return &response[T]{Body: v} }

type message struct {
	Message string `json:"message"`
}

// routes carries what every operation handler needs.
type routes struct {
	e   engine.Engine
	log *zap.Logger
}

// New returns an HTTP handler exposing the Hamasa API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/hamasa-api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Engine.Metrics == nil {
		cfg.Engine.Metrics = cfg.Metrics
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return schemaError(status, msg, errs)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return schemaError(status, msg, errs)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(cfg.Metrics.Middleware)
	router.Use(newRateLimiter(basePath, cfg.RateLimitPerMinute).Middleware)
	router.Use(newAuthMiddleware(basePath, cfg.Engine))

	hcfg := huma.DefaultConfig("Hamasa API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	rt := routes{e: cfg.Engine, log: log}
	registerDocs(router, basePath)
	router.Handle("/metrics", cfg.Metrics.Handler())
	registerHealth(group)
	registerAuth(group, rt)
	registerStaff(group, rt)
	registerClients(group, rt)
	registerClientUsers(group, rt)
	registerCatalog(group, rt)
	registerProjects(group, rt)
	registerML(group, rt)
	registerReports(group, rt)
	registerDashboard(group, rt)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, detail string, context map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Detail: detail, Code: code, Context: context}
}

// schemaError renders huma's own request validation failures. Those are bad
// input, so 422 becomes 400.
func schemaError(status int, msg string, errs []error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}
	var context map[string]any
	if len(errs) > 0 {
		details := make([]string, 0, len(errs))
		for _, err := range errs {
			if err != nil {
				details = append(details, err.Error())
			}
		}
		context = map[string]any{"errors": details}
	}
	return newAPIError(status, "", msg, context)
}

// handleError maps engine and repository errors onto the envelope. Anything
// unrecognised is logged and reported as an opaque 500.
func (rt routes) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var unauth auth.UnauthenticatedError
	if errors.As(err, &unauth) {
		return newAPIError(http.StatusUnauthorized, "", err.Error(), nil)
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		var ctx map[string]any
		if fe.Role != "" {
			ctx = map[string]any{"role": fe.Role}
		}
		return newAPIError(http.StatusForbidden, "", err.Error(), ctx)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "", err.Error(), nil)
	}
	var ce repo.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "", err.Error(), map[string]any{"field": ce.Field})
	}
	if errors.Is(err, engine.ErrConcurrentUpdate) {
		return newAPIError(http.StatusConflict, "", err.Error(), nil)
	}
	var ite engine.InvalidTransitionError
	if errors.As(err, &ite) {
		allowed := ite.Allowed
		if allowed == nil {
			allowed = []string{}
		}
		return newAPIError(http.StatusBadRequest, "invalid_transition", err.Error(), map[string]any{
			"entity":  ite.Entity,
			"from":    ite.From,
			"to":      ite.To,
			"allowed": allowed,
		})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		var ctx map[string]any
		if ve.Field != "" {
			ctx = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "", err.Error(), ctx)
	}
	rt.log.Error("request failed", zap.Error(err))
	return newAPIError(http.StatusInternalServerError, "", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// actor returns the principal the auth middleware resolved. Public routes get
// the zero principal, which every role gate rejects as unauthenticated.
func actor(ctx context.Context) auth.Principal {
	p, _ := principalFromContext(ctx)
	return p
}

type pageParams struct {
	Page     int `query:"page" minimum:"0" doc:"1-based page number"`
	PageSize int `query:"page_size" minimum:"0" doc:"Items per page, at most 100"`
}

func (p pageParams) page() repo.Page {
	return repo.Page{Number: p.Page, Size: p.PageSize}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	serve := func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			decorateOpenAPI(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	}
	r.Get("/openapi.json", serve)
	r.Get(path.Join(basePath, "openapi.json"), serve)
}

// decorateOpenAPI adds the error envelope as every operation's default
// response and marks all but the public routes as bearer-protected.
func decorateOpenAPI(oas *huma.OpenAPI, basePath string) {
	errorSchema := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := publicPaths(basePath)
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Post, item.Put, item.Patch, item.Delete} {
			if op == nil {
				continue
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content:     map[string]*huma.MediaType{"application/json": {Schema: errorSchema}},
			}
			op.Security = security
			if public[route] {
				op.Security = []map[string][]string{}
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Hamasa API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; from POST /auth/login.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"ops"},
	}, func(ctx context.Context, _ *struct{}) (*response[map[string]string], error) {
		return reply(map[string]string{"status": "ok"}), nil
	})
}
