package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	missiondomain "github.com/smallbiznis/opsledger/internal/mission/domain"
)

type missionStatusRequest struct {
	Status string `json:"status"`
}

type missionProvidersRequest struct {
	ProviderIDs []string `json:"provider_ids"`
}

func (s *Server) ListMissions(c *gin.Context) {
	var req missiondomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.missionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreateMission(c *gin.Context) {
	var req missiondomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	m, err := s.missionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": m})
}

func (s *Server) GetMission(c *gin.Context) {
	m, err := s.missionSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (s *Server) UpdateMissionStatus(c *gin.Context) {
	var req missionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	m, err := s.missionSvc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (s *Server) ApproveMission(c *gin.Context) {
	m, err := s.missionSvc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": m})
}

func (s *Server) AssignMissionProviders(c *gin.Context) {
	var req missionProvidersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	m, err := s.missionSvc.AssignProviders(c.Request.Context(), c.Param("id"), req.ProviderIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": m})
}
