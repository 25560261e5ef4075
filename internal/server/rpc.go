package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/opsledger/internal/apperr"
	balancedomain "github.com/smallbiznis/opsledger/internal/balance/domain"
	revenuedomain "github.com/smallbiznis/opsledger/internal/revenue/domain"
)

const (
	redeemFailedMessage  = "Invalid or expired access code"
	rateLimitedMessage   = "Too many attempts, try again later"
	internalErrorMessage = "Something went wrong, try again later"
)

type redeemAccessCodeRequest struct {
	Code string `json:"code"`
}

type redeemAccessCodeResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	CompanyID string `json:"companyId,omitempty"`
}

type convertRevenueResponse struct {
	Success     bool   `json:"success"`
	TotalAmount *int64 `json:"totalAmount,omitempty"`
	Message     string `json:"message,omitempty"`
}

type recalculateBalanceRequest struct {
	ProviderID string `json:"providerId"`
}

type settlePaymentsRequest struct {
	ProviderID string `json:"providerId"`
	Amount     int64  `json:"amount"`
	Date       string `json:"date"`
}

type settlePaymentsResponse struct {
	Success      bool   `json:"success"`
	SettledCount int    `json:"settledCount"`
	Message      string `json:"message,omitempty"`
}

// RPC handlers answer failures with a result object instead of the error
// envelope; the status code still reflects the failure kind and the error is
// recorded for request logging.
func rpcFailure(c *gin.Context, err error) (int, string) {
	_ = c.Error(err)
	status, payload := mapError(err)
	if apperr.KindOf(err) == apperr.KindRemote {
		return status, internalErrorMessage
	}
	if payload.Code != "" {
		return status, payload.Code
	}
	return status, payload.Message
}

func (s *Server) RedeemAccessCode(c *gin.Context) {
	var req redeemAccessCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.accessCodeSvc.Redeem(c.Request.Context(), req.Code)
	if err != nil {
		status, _ := rpcFailure(c, err)
		// The reason a code was rejected is never revealed.
		message := redeemFailedMessage
		switch apperr.KindOf(err) {
		case apperr.KindRateLimited:
			message = rateLimitedMessage
		case apperr.KindRemote:
			message = internalErrorMessage
		}
		c.JSON(status, redeemAccessCodeResponse{Success: false, Message: message})
		return
	}

	c.JSON(http.StatusOK, redeemAccessCodeResponse{
		Success:   true,
		Message:   "Access code redeemed",
		CompanyID: result.CompanyID,
	})
}

func (s *Server) ConvertPendingRevenue(c *gin.Context) {
	var req revenuedomain.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.revenueSvc.Confirm(c.Request.Context(), req)
	if err != nil {
		status, message := rpcFailure(c, err)
		c.JSON(status, convertRevenueResponse{Success: false, Message: message})
		return
	}

	total := result.Revenue.TotalAmount
	c.JSON(http.StatusOK, convertRevenueResponse{Success: true, TotalAmount: &total})
}

func (s *Server) RecalculateProviderBalance(c *gin.Context) {
	var req recalculateBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	balance, err := s.balanceSvc.Recalculate(c.Request.Context(), req.ProviderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (s *Server) SettlePendingPayments(c *gin.Context) {
	var req settlePaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	date, err := parseRequiredDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, settlePaymentsResponse{Success: false, Message: balancedomain.ErrInvalidDate.Code})
		return
	}

	result, err := s.balanceSvc.SettlePending(c.Request.Context(), balancedomain.SettleRequest{
		ProviderID:  req.ProviderID,
		Amount:      req.Amount,
		PaymentDate: date,
	})
	if err != nil {
		status, message := rpcFailure(c, err)
		c.JSON(status, settlePaymentsResponse{Success: false, Message: message})
		return
	}

	c.JSON(http.StatusOK, settlePaymentsResponse{Success: true, SettledCount: result.SettledCount})
}
