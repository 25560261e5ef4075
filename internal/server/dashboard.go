package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/opsledger/internal/audit/domain"
	"github.com/smallbiznis/opsledger/internal/session"
)

func (s *Server) GetDashboardSummary(c *gin.Context) {
	from, to, err := queryRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.dashboardSvc.Summary(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) AuditIsolation(c *gin.Context) {
	sess, err := session.RequireAdmin(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.guard.AuditIsolation(c.Request.Context(), sess.CompanyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var req auditdomain.ListAuditLogRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
