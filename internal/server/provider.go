package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	balancedomain "github.com/smallbiznis/opsledger/internal/balance/domain"
	providerdomain "github.com/smallbiznis/opsledger/internal/provider/domain"
)

func (s *Server) ListProviders(c *gin.Context) {
	var req providerdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.providerSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateProvider(c *gin.Context) {
	var req providerdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	p, err := s.providerSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": p})
}

func (s *Server) GetProvider(c *gin.Context) {
	p, err := s.providerSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (s *Server) UpdateProvider(c *gin.Context) {
	var req providerdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	p, err := s.providerSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (s *Server) DeactivateProvider(c *gin.Context) {
	p, err := s.providerSvc.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (s *Server) GetProviderBalance(c *gin.Context) {
	balance, err := s.balanceSvc.ComputeBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) RecalculateProvider(c *gin.Context) {
	current, err := s.balanceSvc.Recalculate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"current_balance": current}})
}

type settleProviderRequest struct {
	Amount int64  `json:"amount"`
	Date   string `json:"date"`
}

func (s *Server) SettleProvider(c *gin.Context) {
	var req settleProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	date, err := parseRequiredDate(req.Date)
	if err != nil {
		AbortWithError(c, balancedomain.ErrInvalidDate)
		return
	}

	result, err := s.balanceSvc.SettlePending(c.Request.Context(), balancedomain.SettleRequest{
		ProviderID:  c.Param("id"),
		Amount:      req.Amount,
		PaymentDate: date,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
