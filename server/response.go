package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func writeJSONError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	writeJSONError(c, http.StatusBadRequest, msg)
}

func notFound(c *gin.Context, msg string) {
	writeJSONError(c, http.StatusNotFound, msg)
}

func internalServerError(c *gin.Context, msg string) {
	writeJSONError(c, http.StatusInternalServerError, msg)
}
