package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/db"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Client-Id, X-Client-Secret")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func LoggingMiddleware() gin.HandlerFunc {
	log := logger.Get()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled")
	}
}

func RecoveryMiddleware() gin.HandlerFunc {
	log := logger.Get()
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("Panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// APIClientAuthMiddleware authorizes inbound notification calls against the
// api_clients table: known client id, matching secret, active flag, and an
// optional source-address allow-list.
func APIClientAuthMiddleware(repo db.Repository) gin.HandlerFunc {
	log := logger.Get()
	return func(c *gin.Context) {
		clientID := c.GetHeader("X-Client-Id")
		clientSecret := c.GetHeader("X-Client-Secret")

		if clientID == "" || clientSecret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing client credentials"})
			return
		}

		client, err := repo.GetAPIClient(c.Request.Context(), clientID)
		if err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("Failed to look up api client")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		if client == nil || !client.Active {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid client"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid client"})
			return
		}

		if client.AllowedSources != nil && *client.AllowedSources != "" {
			if !sourceAllowed(*client.AllowedSources, c.ClientIP()) {
				log.Warn().
					Str("client_id", clientID).
					Str("client_ip", c.ClientIP()).
					Msg("Request from disallowed source address")
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Source address not allowed"})
				return
			}
		}

		c.Next()
	}
}

func sourceAllowed(allowed, ip string) bool {
	for _, candidate := range strings.Split(allowed, ",") {
		if strings.TrimSpace(candidate) == ip {
			return true
		}
	}
	return false
}
