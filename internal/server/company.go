package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	accesscodedomain "github.com/smallbiznis/opsledger/internal/accesscode/domain"
	companydomain "github.com/smallbiznis/opsledger/internal/company/domain"
)

func (s *Server) CreateCompany(c *gin.Context) {
	var req companydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.companySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetCurrentCompany(c *gin.Context) {
	resp, err := s.companySvc.Current(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListEmployees(c *gin.Context) {
	employees, err := s.profileSvc.ListEmployees(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": employees})
}

func (s *Server) DeactivateEmployee(c *gin.Context) {
	if err := s.profileSvc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListAccessCodes(c *gin.Context) {
	var req accesscodedomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.accessCodeSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) IssueAccessCode(c *gin.Context) {
	var req accesscodedomain.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	code, err := s.accessCodeSvc.Issue(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": code})
}

func (s *Server) RevokeAccessCode(c *gin.Context) {
	if err := s.accessCodeSvc.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
