package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nabil-hossain/ridepulse/events"
	"github.com/nabil-hossain/ridepulse/libs/auth"
	"github.com/nabil-hossain/ridepulse/libs/db"
	"github.com/nabil-hossain/ridepulse/outbox"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/model"
	"github.com/nabil-hossain/ridepulse/services/booking-service/internal/storage"
)

// BookingHandler is the business-transaction writer: every state change it
// makes stages its outbox event in the same transaction.
type BookingHandler struct {
	pool       *db.Pool
	repo       *storage.BookingRepository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	jwtSecret  string
}

func NewBookingHandler(pool *db.Pool, repo *storage.BookingRepository, outboxRepo *outbox.Repository, logger *slog.Logger, jwtSecret string) *BookingHandler {
	return &BookingHandler{
		pool:       pool,
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
		jwtSecret:  jwtSecret,
	}
}

type createBookingRequest struct {
	PickupAddress  string `json:"pickup_address"`
	DropoffAddress string `json:"dropoff_address"`
}

type bookingResponse struct {
	BookingID      string `json:"booking_id"`
	UserID         string `json:"user_id"`
	RideID         string `json:"ride_id,omitempty"`
	PickupAddress  string `json:"pickup_address"`
	DropoffAddress string `json:"dropoff_address"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type statusChangeItem struct {
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	Reason     string `json:"reason,omitempty"`
	At         string `json:"at"`
}

// Bookings serves /api/v1/bookings: POST creates, GET fetches by id.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.get(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r, auth.RoleUser)
	if !ok {
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PickupAddress = strings.TrimSpace(req.PickupAddress)
	req.DropoffAddress = strings.TrimSpace(req.DropoffAddress)
	if req.PickupAddress == "" || req.DropoffAddress == "" {
		http.Error(w, "missing pickup or dropoff address", http.StatusBadRequest)
		return
	}

	booking := model.Booking{
		UserID:         id.ID,
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		Status:         model.StatusRequested,
	}

	var bookingID string
	err := h.pool.WithTx(r.Context(), func(tx pgx.Tx) error {
		var err error
		bookingID, err = h.repo.Create(r.Context(), tx, &booking)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(events.RideRequested{
			BookingID:      bookingID,
			UserID:         id.ID,
			PickupAddress:  req.PickupAddress,
			DropoffAddress: req.DropoffAddress,
		})
		if err != nil {
			return err
		}
		return h.outboxRepo.Insert(r.Context(), tx, outbox.Event{
			AggregateType: "booking",
			AggregateID:   bookingID,
			EventType:     events.TypeRideRequested,
			Payload:       payload,
		})
	})
	if err != nil {
		h.logger.Error("create booking failed", "err", err, "user_id", id.ID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, bookingResponse{
		BookingID:      bookingID,
		UserID:         id.ID,
		PickupAddress:  req.PickupAddress,
		DropoffAddress: req.DropoffAddress,
		Status:         string(model.StatusRequested),
	})
}

func (h *BookingHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(w, r, auth.RoleUser, auth.RoleDriver)
	if !ok {
		return
	}

	bookingID := strings.TrimSpace(r.URL.Query().Get("id"))
	if bookingID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	booking, err := h.repo.Get(r.Context(), bookingID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get booking failed", "err", err, "booking_id", bookingID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if id.Role == auth.RoleUser && booking.UserID != id.ID {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, bookingResponse{
		BookingID:      booking.ID,
		UserID:         booking.UserID,
		RideID:         booking.RideID,
		PickupAddress:  booking.PickupAddress,
		DropoffAddress: booking.DropoffAddress,
		Status:         string(booking.Status),
		CreatedAt:      booking.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Cancel serves POST /api/v1/bookings/cancel. The guarded transition, the
// ledger entry and the outbox event commit as one unit.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := h.identify(w, r, auth.RoleUser)
	if !ok {
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id is required", http.StatusBadRequest)
		return
	}

	booking, err := h.repo.Get(r.Context(), req.BookingID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get booking failed", "err", err, "booking_id", req.BookingID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if booking.UserID != id.ID {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}

	var applied bool
	err = h.pool.WithTx(r.Context(), func(tx pgx.Tx) error {
		from, ok, err := h.repo.Cancel(r.Context(), tx, req.BookingID)
		if err != nil {
			return err
		}
		applied = ok
		if !ok {
			return nil
		}
		if err := h.repo.AppendStatusChange(r.Context(), tx, model.StatusChange{
			BookingID:  req.BookingID,
			FromStatus: from,
			ToStatus:   model.StatusCancelled,
			Reason:     req.Reason,
		}); err != nil {
			return err
		}
		payload, err := json.Marshal(events.BookingCancelled{
			BookingID: req.BookingID,
			UserID:    booking.UserID,
			Reason:    req.Reason,
		})
		if err != nil {
			return err
		}
		return h.outboxRepo.Insert(r.Context(), tx, outbox.Event{
			AggregateType: "booking",
			AggregateID:   req.BookingID,
			EventType:     events.TypeBookingCancelled,
			Payload:       payload,
		})
	})
	if err != nil {
		h.logger.Error("cancel booking failed", "err", err, "booking_id", req.BookingID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !applied {
		http.Error(w, "booking can no longer be cancelled", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"booking_id": req.BookingID,
		"status":     string(model.StatusCancelled),
	})
}

// History serves GET /api/v1/bookings/history?id=... with the transition ledger.
func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := h.identify(w, r, auth.RoleUser, auth.RoleDriver)
	if !ok {
		return
	}

	bookingID := strings.TrimSpace(r.URL.Query().Get("id"))
	if bookingID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	booking, err := h.repo.Get(r.Context(), bookingID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get booking failed", "err", err, "booking_id", bookingID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if id.Role == auth.RoleUser && booking.UserID != id.ID {
		http.Error(w, "booking not found", http.StatusNotFound)
		return
	}

	changes, err := h.repo.ListStatusChanges(r.Context(), bookingID)
	if err != nil {
		h.logger.Error("list status changes failed", "err", err, "booking_id", bookingID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	items := make([]statusChangeItem, 0, len(changes))
	for _, c := range changes {
		items = append(items, statusChangeItem{
			FromStatus: string(c.FromStatus),
			ToStatus:   string(c.ToStatus),
			Reason:     c.Reason,
			At:         c.At.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) identify(w http.ResponseWriter, r *http.Request, roles ...string) (auth.Identity, bool) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	claims, err := auth.ParseAndVerifyHS256(token, h.jwtSecret)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	id, err := claims.Identity()
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	for _, role := range roles {
		if id.Role == role {
			return id, true
		}
	}
	http.Error(w, "forbidden", http.StatusForbidden)
	return auth.Identity{}, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
