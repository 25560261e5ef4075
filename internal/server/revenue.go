package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	revenuedomain "github.com/smallbiznis/opsledger/internal/revenue/domain"
)

type confirmRevenueRequest struct {
	AccountID     string `json:"account_id"`
	AccountType   string `json:"account_type"`
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) ListPendingRevenues(c *gin.Context) {
	var req revenuedomain.ListPendingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.revenueSvc.ListPending(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreatePendingRevenue(c *gin.Context) {
	var req revenuedomain.CreatePendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	r, err := s.revenueSvc.CreatePending(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": r})
}

func (s *Server) GetPendingRevenue(c *gin.Context) {
	r, err := s.revenueSvc.GetPending(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": r})
}

func (s *Server) ConfirmPendingRevenue(c *gin.Context) {
	var req confirmRevenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.revenueSvc.Confirm(c.Request.Context(), revenuedomain.ConfirmRequest{
		PendingRevenueID: c.Param("id"),
		AccountID:        req.AccountID,
		AccountType:      req.AccountType,
		PaymentMethod:    req.PaymentMethod,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CancelPendingRevenue(c *gin.Context) {
	r, err := s.revenueSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": r})
}

func (s *Server) ListConfirmedRevenues(c *gin.Context) {
	var req revenuedomain.ListConfirmedRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.revenueSvc.ListConfirmed(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetConfirmedRevenue(c *gin.Context) {
	r, err := s.revenueSvc.GetConfirmed(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": r})
}
