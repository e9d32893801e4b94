package router

import (
	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts a handler's routes on a router group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// API collects the registrars served under /api/{version}. Middleware added with
// Use applies to the API only; system endpoints on the engine do not see it.
type API struct {
	version    string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// NewAPI creates the versioned API; an empty version means "v1".
func NewAPI(version string) *API {
	if version == "" {
		version = "v1"
	}
	return &API{version: version}
}

// Use appends API middleware.
func (a *API) Use(middleware ...gin.HandlerFunc) *API {
	a.middleware = append(a.middleware, middleware...)
	return a
}

// Register appends registrars. They are mounted by Mount in the order given.
func (a *API) Register(registrars ...RouteRegistrar) *API {
	a.registrars = append(a.registrars, registrars...)
	return a
}

// Mount creates the /api/{version} group on engine and mounts every registrar.
func (a *API) Mount(engine *gin.Engine) *gin.RouterGroup {
	api := engine.Group("/api/"+a.version, a.middleware...)
	for _, registrar := range a.registrars {
		registrar.RegisterRoutes(api)
	}
	return api
}

// Group mounts registrars below a path prefix with middleware of its own.
type Group struct {
	prefix     string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// NewGroup creates a group at prefix, e.g. "/returns".
func NewGroup(prefix string, registrars ...RouteRegistrar) *Group {
	return &Group{prefix: prefix, registrars: registrars}
}

// Use appends group middleware; it runs after the API middleware.
func (g *Group) Use(middleware ...gin.HandlerFunc) *Group {
	g.middleware = append(g.middleware, middleware...)
	return g
}

// RegisterRoutes implements RouteRegistrar.
func (g *Group) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(g.prefix, g.middleware...)
	for _, registrar := range g.registrars {
		registrar.RegisterRoutes(group)
	}
}
