package handlers

import (
	"drone_commander/internal/logger"
	"drone_commander/internal/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	limiter  *rate.Limiter // nil disables command rate limiting
}

// Option customizes a Handler.
type Option func(*Handler)

// WithCommandRate limits drone command routes to rps requests per second
// with the given burst. A non-positive rps disables the limit.
func WithCommandRate(rps float64, burst int) Option {
	return func(h *Handler) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{services: services, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// state and command log stream on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.authMiddleware)
	{
		api.GET("/me", h.me)
		h.registerDroneRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerDroneRoutes(api *gin.RouterGroup) {
	drone := api.Group("/drone")
	{
		drone.GET("/state", h.getState)

		cmds := drone.Group("", h.rateLimitMiddleware)
		// Body example: {"command":"battery?"}
		cmds.POST("/command", h.rawCommand)
		cmds.POST("/takeoff", h.takeoff)
		cmds.POST("/land", h.land)
		cmds.POST("/emergency", h.emergency)
		cmds.POST("/streamon", h.streamOn)
		cmds.POST("/streamoff", h.streamOff)
		// Body example: {"direction":"forward","distance_cm":100}
		cmds.POST("/move", h.move)
		// Body example: {"direction":"cw","degrees":90}
		cmds.POST("/rotate", h.rotate)
		cmds.POST("/speed", h.setSpeed)
		cmds.GET("/query/:name", h.query)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
		logs.GET("/live", h.getLiveLogs)
		logs.GET("/export", h.exportLogs)
		logs.POST("/flush", h.flushLogs)
	}
}
