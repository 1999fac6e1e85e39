package api

import (
	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/api/handlers"
)

func setupRoutes(router *gin.Engine, deps *Dependencies) {
	handlers.SetupHealth(router, deps.Health)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	handlers.SetupSearch(router, deps.Logger, deps.Search, deps.Validator)
	handlers.SetupPopular(router, deps.Logger, deps.Popularity, deps.Validator)
	handlers.SetupSync(router, deps.Logger, deps.Syncer, deps.Validator)
	handlers.SetupIndex(router, deps.Logger, deps.SearchDB, deps.Search, deps.Config.GetIndexName())
}

func newRouter() *gin.Engine {
	router := gin.New()
	router.UseRawPath = true
	router.Use(_CORSMiddleware())
	router.Use(gin.Recovery())

	return router
}
