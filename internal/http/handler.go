package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parking-service/internal/config"
	"parking-service/internal/domain/parking"
	"parking-service/internal/http/middleware"
	"parking-service/internal/service"
)

const retryAfterSeconds = "5"

type Handler struct {
	parkingService *service.ParkingService
	config         *config.Config
	log            zerolog.Logger
}

func NewHandler(
	parkingService *service.ParkingService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		parkingService: parkingService,
		config:         cfg,
		log:            log,
	}
}

// Register mounts the routes. entryMiddleware runs only in front of
// POST /entry (idempotency replay).
func (h *Handler) Register(r *gin.Engine, entryMiddleware ...gin.HandlerFunc) {
	r.GET("/", h.health)
	r.GET("/version", h.version)
	r.GET("/status", h.status)

	r.POST("/entry", append(entryMiddleware, h.entry)...)
	r.POST("/exit", h.exit)

	r.GET("/tickets", h.listTickets)
	r.GET("/tickets/:ticketId", h.getTicket)
}

func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, "Parking Lot Management System - Status: OK")
}

func (h *Handler) version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     h.config.App.Version,
		"environment": h.config.App.Env,
		"store":       h.config.Store.Driver,
	})
}

func (h *Handler) status(c *gin.Context) {
	if err := h.parkingService.CheckStore(c.Request.Context()); err != nil {
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "error",
			"message":   "Failed to connect to ticket store",
			"store":     h.config.Store.Driver,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"store":     h.config.Store.Driver,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) entry(c *gin.Context) {
	req := parking.EntryRequest{
		Plate: c.Query("plate"),
		LotID: c.Query("parkingLot"),
		Meta: map[string]interface{}{
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"request_id": middleware.GetRequestID(c),
		},
	}

	result, err := h.parkingService.Enter(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticketId":   result.TicketID,
		"plate":      result.Plate,
		"parkingLot": result.LotID,
		"timestamp":  formatTime(result.Timestamp),
	})
}

func (h *Handler) exit(c *gin.Context) {
	receipt, err := h.parkingService.Exit(c.Request.Context(), c.Query("ticketId"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticketId":         receipt.TicketID,
		"plate":            receipt.Plate,
		"parkingLot":       receipt.LotID,
		"entryTime":        formatTime(receipt.EntryTime),
		"exitTime":         formatTime(receipt.ExitTime),
		"totalTimeMinutes": receipt.TotalMinutes,
		"charge":           receipt.Fee,
	})
}

func (h *Handler) getTicket(c *gin.Context) {
	ticket, err := h.parkingService.GetTicket(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(ticket))
}

func (h *Handler) listTickets(c *gin.Context) {
	plate := strings.TrimSpace(c.Query("plate"))
	if plate == "" {
		c.JSON(http.StatusBadRequest, paramErrorResponse("plate", "plate parameter is required"))
		return
	}

	limit := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	tickets, err := h.parkingService.FindTicketsByPlate(c.Request.Context(), plate, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(tickets))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var paramErr *service.ParamError
	var stateErr *service.StateError

	switch {
	case errors.As(err, &paramErr):
		c.JSON(http.StatusBadRequest, paramErrorResponse(paramErr.Param, paramErr.Message))
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.As(err, &stateErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid ticket status",
			"message": "Ticket already processed",
			"status":  stateErr.Status,
		})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not found",
			"message": "Ticket not found",
		})
	case errors.Is(err, service.ErrStoreUnavailable):
		c.Header("Retry-After", retryAfterSeconds)
		resp := gin.H{
			"error":   "Database service unavailable",
			"message": "Could not reach the ticket store at this time",
		}
		if h.config.IsDev() {
			resp["details"] = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, resp)
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func paramErrorResponse(param, message string) gin.H {
	return gin.H{
		"error":   "Missing parameter",
		"message": message,
		"param":   param,
	}
}
