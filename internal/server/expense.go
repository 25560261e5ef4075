package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	expensedomain "github.com/smallbiznis/opsledger/internal/expense/domain"
)

func (s *Server) ListExpenses(c *gin.Context) {
	var req expensedomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.expenseSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) RecordExpense(c *gin.Context) {
	var req expensedomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	e, err := s.expenseSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": e})
}

func (s *Server) GetExpense(c *gin.Context) {
	e, err := s.expenseSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": e})
}

func (s *Server) ApproveExpense(c *gin.Context) {
	s.transitionExpense(c, s.expenseSvc.Approve)
}

func (s *Server) RejectExpense(c *gin.Context) {
	s.transitionExpense(c, s.expenseSvc.Reject)
}

func (s *Server) ReimburseExpense(c *gin.Context) {
	s.transitionExpense(c, s.expenseSvc.Reimburse)
}

func (s *Server) transitionExpense(c *gin.Context, fn func(ctx context.Context, id string) (*expensedomain.Expense, error)) {
	e, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": e})
}
