package handler

import (
	"encoding/json"
	"net/http"

	"roomstay/internal/bookings/service"
	apperrors "roomstay/pkg/errors"
	pkghttp "roomstay/pkg/http"
	"roomstay/pkg/logger"
	"roomstay/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// requesterHeader identifies the caller on mutating requests. Upstream auth
// terminates at the gateway; this service only needs the resolved identity.
const requesterHeader = "X-User-ID"

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(bookingService service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: bookingService,
		log:     log,
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/bookings", h.Submit)
	router.GET("/api/bookings/:id", h.GetByID)
	router.PUT("/api/bookings/:id/cancel", h.Cancel)
	router.GET("/api/rooms/:roomId/availability", h.CheckAvailability)
	router.GET("/api/rooms/:roomId/bookings", h.ListByRoom)
	router.GET("/api/users/:userId/bookings", h.ListByUser)
}

func (h *BookingHandler) Submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("invalid request body"))
		return
	}

	confirmation, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := pkghttp.WriteCreated(w, confirmation); err != nil {
		h.log.Error("Failed to write response", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), params.ByName("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := pkghttp.WriteSuccess(w, booking); err != nil {
		h.log.Error("Failed to write response", "error", err)
	}
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	requesterID := r.Header.Get(requesterHeader)

	booking, err := h.service.Cancel(r.Context(), params.ByName("id"), requesterID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := pkghttp.WriteSuccess(w, booking); err != nil {
		h.log.Error("Failed to write response", "error", err)
	}
}

func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	roomID := params.ByName("roomId")
	date := r.URL.Query().Get("date")

	availability, err := h.service.CheckAvailability(r.Context(), roomID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := pkghttp.WriteSuccess(w, availability); err != nil {
		h.log.Error("Failed to write response", "error", err)
	}
}

func (h *BookingHandler) ListByRoom(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit, offset, err := pkghttp.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	bookings, total, err := h.service.ListByRoom(r.Context(), params.ByName("roomId"), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := pkghttp.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("Failed to write response", "error", err)
	}
}

func (h *BookingHandler) ListByUser(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	limit, offset, err := pkghttp.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	bookings, total, err := h.service.ListByUser(r.Context(), params.ByName("userId"), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := pkghttp.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("Failed to write response", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.log.Error("Request failed", "code", appErr.Code, "error", appErr.Error())
	}
	if werr := pkghttp.WriteError(w, appErr); werr != nil {
		h.log.Error("Failed to write error response", "error", werr)
	}
}
