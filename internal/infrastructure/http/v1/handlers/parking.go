package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkcore/internal/domain/parking"
	"parkcore/internal/infrastructure/http/v1/dto"
)

// ParkingHandler handles parking orchestration endpoints.
type ParkingHandler struct {
	*BaseHandler
	service *parking.Service
}

// NewParkingHandler creates a new parking handler.
func NewParkingHandler(base *BaseHandler, service *parking.Service) *ParkingHandler {
	return &ParkingHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Park handles POST /parking/park
func (h *ParkingHandler) Park(c *gin.Context) {
	var req dto.ParkRequest
	if !h.BindJSON(c, &req) {
		return
	}

	svcReq, err := req.ToService()
	if err != nil {
		h.Error(c, err)
		return
	}

	res := h.service.Park(c.Request.Context(), svcReq)
	h.Result(c, res, http.StatusCreated)
}

// Exit handles POST /parking/exit
func (h *ParkingHandler) Exit(c *gin.Context) {
	var req dto.ExitRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res := h.service.ExitVehicle(c.Request.Context(), req.ToService())
	h.Result(c, res, http.StatusOK)
}

// Transfer handles POST /parking/transfer
func (h *ParkingHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	svcReq, err := req.ToService()
	if err != nil {
		h.Error(c, err)
		return
	}

	res := h.service.TransferVehicle(c.Request.Context(), svcReq)
	h.Result(c, res, http.StatusOK)
}

// BulkUpdateStatus handles POST /parking/spots/bulk-status
func (h *ParkingHandler) BulkUpdateStatus(c *gin.Context) {
	var req dto.BulkUpdateStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	svcReq, err := req.ToService()
	if err != nil {
		h.Error(c, err)
		return
	}

	res := h.service.BulkUpdateSpotStatus(c.Request.Context(), svcReq)
	h.Result(c, res, http.StatusOK)
}

// ProvisionSpots handles POST /parking/spots
func (h *ParkingHandler) ProvisionSpots(c *gin.Context) {
	var req dto.ProvisionSpotsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res := h.service.ProvisionSpots(c.Request.Context(), req.ToService())
	h.Result(c, res, http.StatusCreated)
}

// ListSpots handles GET /parking/spots?status=AVAILABLE
func (h *ParkingHandler) ListSpots(c *gin.Context) {
	status := parking.SpotStatus(c.DefaultQuery("status", string(parking.SpotAvailable)))
	res := h.service.ListSpotsByStatus(c.Request.Context(), status)
	h.Result(c, res, http.StatusOK)
}

// GetActiveSession handles GET /parking/sessions/:plate
func (h *ParkingHandler) GetActiveSession(c *gin.Context) {
	res := h.service.GetActiveSessionByPlate(c.Request.Context(), c.Param("plate"))
	h.Result(c, res, http.StatusOK)
}

// ListActiveSessions handles GET /parking/sessions
func (h *ParkingHandler) ListActiveSessions(c *gin.Context) {
	res := h.service.ListActiveSessions(c.Request.Context())
	h.Result(c, res, http.StatusOK)
}
