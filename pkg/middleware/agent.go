package middleware

import "github.com/gin-gonic/gin"

const (
	// AgentIDHeader carries the id of the agent acting on a transaction
	AgentIDHeader = "X-User-ID"

	// ContextKeyAgentID is the gin context key holding the agent id
	ContextKeyAgentID = "agent_id"
)

// AgentMiddleware copies the agent id header into the gin context
func AgentMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(AgentIDHeader); id != "" {
			c.Set(ContextKeyAgentID, id)
		}
		c.Next()
	}
}
