package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/opsledger/internal/apperr"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/audit/masking"
	authdomain "github.com/smallbiznis/opsledger/internal/auth/domain"
	"github.com/smallbiznis/opsledger/internal/session"
	"go.uber.org/zap"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.authsvc.Signup(c.Request.Context(), authdomain.SignupRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"id":    profile.ID.String(),
		"email": profile.Email,
		"name":  profile.Name,
	}})
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := strings.TrimSpace(req.Email)
	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindRemote) {
			AbortWithError(c, err)
			return
		}
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, auditdomain.ActorTypeUser, nil, "user.login_failed", "user", nil, map[string]any{
			"email": masking.MaskEmail(email),
		})
		// Unknown email, wrong password and inactive profile look the same.
		AbortWithError(c, authdomain.ErrInvalidCredentials)
		return
	}

	s.cookies.Set(c, result.RawToken, result.ExpiresAt)

	userID := result.ProfileID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, auditdomain.ActorTypeUser, &userID, "user.login", "user", &userID, map[string]any{
		"email": masking.MaskEmail(email),
	})

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id":    userID,
		"expires_at": result.ExpiresAt,
	}})
}

func (s *Server) Logout(c *gin.Context) {
	token, ok := s.cookies.ReadToken(c)
	if ok {
		if err := s.authsvc.Logout(c.Request.Context(), token); err != nil && !apperr.IsKind(err, apperr.KindUnauthorized) {
			s.log.Warn("logout failed", zap.Error(err))
		}
	}
	s.cookies.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	sess, err := session.Require(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{
		"user_id":   sess.UserID.String(),
		"email":     sess.Email,
		"name":      sess.Name,
		"role":      sess.Role,
		"user_type": sess.UserType,
		"loaded_at": sess.LoadedAt,
	}
	if sess.HasCompany() {
		resp["company"] = gin.H{
			"id":   sess.CompanyID.String(),
			"name": sess.CompanyName,
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
