package apigateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greek-asr-platform/backend/internal/auth"
	"greek-asr-platform/backend/internal/callbackclient"
	"greek-asr-platform/backend/internal/jobmanagement"
	"greek-asr-platform/backend/internal/progresshub"
)

// Deps are the constructed singletons the router wires together. They
// are built once in main and injected here; no package holds hidden
// global state.
type Deps struct {
	Verifier  *auth.Verifier
	Jobs      *jobmanagement.JobHandlers
	Callbacks *jobmanagement.CallbackHandlers
	Hub       *progresshub.Hub
}

// SetupRouter initializes the main gin router for the backend server.
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Internal-network callback ingestion from the ASR workers.
	router.POST(callbackclient.CallbackPath, deps.Callbacks.Receive)

	// Progress subscription protocol.
	router.GET("/ws/transcriptions", deps.Hub.ServeWS)

	api := router.Group("/api")
	api.Use(auth.OptionalAuth(deps.Verifier))
	{
		transcriptions := api.Group("/transcriptions")
		{
			transcriptions.POST("", deps.Jobs.Create)
			transcriptions.GET("", deps.Jobs.List)
			transcriptions.GET("/:id", deps.Jobs.Get)
			transcriptions.POST("/:id/restart", deps.Jobs.Restart)
		}
	}

	return router
}
