package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/saga/internal/profile"
	"github.com/hrygo/saga/internal/observability"
	"github.com/hrygo/saga/server/service/journal"
	"github.com/hrygo/saga/store"
)

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Entries *journal.EntryService
	Prompts *journal.PromptService
	Metrics *observability.Metrics
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, entries *journal.EntryService, prompts *journal.PromptService, metrics *observability.Metrics) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		Entries: entries,
		Prompts: prompts,
		Metrics: metrics,
	}
}

// RegisterRoutes registers the journal API with the given Echo instance.
// The given middlewares wrap every API route.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo, middlewares ...echo.MiddlewareFunc) {
	echoServer.GET("/healthz", s.Healthz)
	if s.Metrics != nil {
		echoServer.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	g := echoServer.Group("", append([]echo.MiddlewareFunc{
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		}),
		s.requestMiddleware,
	}, middlewares...)...)

	g.GET("/", s.Home)
	for _, prefix := range []string{"/journal", "/journal/"} {
		g.POST(prefix, s.CreateEntry)
		g.GET(prefix, s.ListEntries)
	}
	g.GET("/journal/feed.atom", s.GetFeed)
	g.GET("/journal/:id", s.GetEntry)
	g.PUT("/journal/:id", s.UpdateEntry)
	g.DELETE("/journal/:id", s.DeleteEntry)
	g.POST("/generate-prompt", s.GeneratePrompt)
}

// Home greets API clients.
// GET /
func (*APIV1Service) Home(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Welcome to Journal API"})
}

// Healthz reports whether the database is reachable.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	if err := s.Store.GetDriver().GetDB().PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
