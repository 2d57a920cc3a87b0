package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/httpapi"
	"github.com/MarkoPoloResearchLab/cmsconsole/internal/metrics"
)

const (
	routeRoot               = "/"
	routeForgotSendOTP      = httpapi.RouteForgot + "/send-otp"
	routeForgotValidateOTP  = httpapi.RouteForgot + "/validate-otp"
	routeForgotReset        = httpapi.RouteForgot + "/reset"
	routeForgotGenerate     = httpapi.RouteForgot + "/generate"
	corsHeaderAuthorization = "Authorization"
	corsHeaderContentType   = "Content-Type"
	corsMaxAge              = 12 * time.Hour
)

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodOptions}
	corsAllowedHeaders = []string{corsHeaderAuthorization, corsHeaderContentType}
	corsExposedHeaders = []string{corsHeaderContentType}
)

type routerDependencies struct {
	logger           *zap.Logger
	metrics          *metrics.Collector
	authManager      *httpapi.AuthManager
	authHandlers     *httpapi.AuthHandlers
	consoleHandlers  *httpapi.ConsoleHandlers
	activityHandlers *httpapi.ActivityHandlers
	healthHandlers   *httpapi.HealthHandlers
	loginThrottle    *httpapi.Throttle
	forgotThrottle   *httpapi.Throttle
	allowedOrigin    string
}

func buildRouter(dependencies routerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(dependencies.logger, dependencies.metrics))

	router.GET(routeRoot, func(context *gin.Context) {
		context.Redirect(http.StatusFound, httpapi.RouteDashboard)
	})
	router.GET(httpapi.RouteHealth, dependencies.healthHandlers.Health)
	router.GET(httpapi.RouteMetrics, gin.WrapH(dependencies.metrics.Handler()))

	registerAuthRoutes(router, dependencies)
	httpapi.RegisterConsoleRoutes(router.Group("", dependencies.authManager.RequireAuthenticatedWeb()), dependencies.consoleHandlers)
	registerAPIRoutes(router, dependencies)

	return router
}

func registerAuthRoutes(router *gin.Engine, dependencies routerDependencies) {
	handlers := dependencies.authHandlers
	router.GET(httpapi.RouteLogin, handlers.RenderLogin)
	router.POST(httpapi.RouteLogin, dependencies.loginThrottle.Middleware(), handlers.Login)
	router.POST(httpapi.RouteLogout, handlers.Logout)
	router.GET(httpapi.RouteForgot, handlers.RenderForgot)

	forgotGroup := router.Group("", dependencies.forgotThrottle.Middleware())
	forgotGroup.POST(routeForgotSendOTP, handlers.SendOTP)
	forgotGroup.POST(routeForgotValidateOTP, handlers.ValidateOTP)
	forgotGroup.POST(routeForgotReset, handlers.ResetPassword)
	router.POST(routeForgotGenerate, handlers.GeneratePassword)
}

func registerAPIRoutes(router *gin.Engine, dependencies routerDependencies) {
	apiCORS := cors.New(cors.Config{
		AllowOrigins:     []string{dependencies.allowedOrigin},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
	router.OPTIONS(httpapi.RouteActivity, apiCORS)
	router.GET(httpapi.RouteActivity, apiCORS, dependencies.authManager.RequireAuthenticatedJSON(), dependencies.activityHandlers.Recent)
}
