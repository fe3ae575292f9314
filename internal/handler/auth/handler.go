package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rxlens/rxlens-api/internal/handler"
	"github.com/rxlens/rxlens-api/internal/model"
	"github.com/rxlens/rxlens-api/pkg/auth"
	"github.com/rxlens/rxlens-api/pkg/security"
)

type Handler struct {
	verifier   *security.APIKeyVerifier
	jwtService auth.JWTService
}

func NewHandler(verifier *security.APIKeyVerifier, jwtService auth.JWTService) *Handler {
	return &Handler{
		verifier:   verifier,
		jwtService: jwtService,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/token", h.Token)
	}
}

// Token exchanges a client's API key for a short-lived bearer token.
func (h *Handler) Token(c *gin.Context) {
	var req model.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.verifier.Verify(req.ClientID, req.APIKey); err != nil {
		log.Warn().Str("client_id", req.ClientID).Str("client_ip", c.ClientIP()).Msg("API key verification failed")
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid credentials"))
		return
	}

	token, err := h.jwtService.GenerateAccessToken(req.ClientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse("failed to issue token"))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(model.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int(h.jwtService.Expiry().Seconds()),
	}))
}
