// internal/api/reservations/handlers.go
package reservations

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ihor-metko/courtflow/internal/api"
	"github.com/ihor-metko/courtflow/internal/api/apiutil"
	"github.com/ihor-metko/courtflow/internal/booking"
	"github.com/ihor-metko/courtflow/internal/ratelimit"
)

const reservationQueryTimeout = 5 * time.Second

// Handler exposes the reservation engine over REST. Constructed by the
// composition root; it holds no package-level state.
type Handler struct {
	engine  *booking.Engine
	limiter *ratelimit.Limiter
}

// NewHandler builds the handler. A nil limiter disables attempt
// throttling.
func NewHandler(engine *booking.Engine, limiter *ratelimit.Limiter) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("reservations handler requires an engine")
	}
	return &Handler{engine: engine, limiter: limiter}, nil
}

type createRequest struct {
	CourtID string `json:"courtId"`
	Start   string `json:"start"`
	End     string `json:"end"`
	// The holder is always the authenticated caller. A client-supplied
	// user id is ignored: it is not a trustworthy input for a
	// security-sensitive write.
	UserID string `json:"userId,omitempty"`
}

type reservationResponse struct {
	ReservationID string     `json:"reservationId"`
	CourtID       string     `json:"courtId"`
	ClubID        string     `json:"clubId"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Status        string     `json:"status"`
	PriceCents    int64      `json:"priceCents"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func toResponse(r booking.Reservation) reservationResponse {
	return reservationResponse{
		ReservationID: r.ID,
		CourtID:       r.CourtID,
		ClubID:        r.ClubID,
		Start:         r.Start,
		End:           r.End,
		Status:        string(r.Status),
		PriceCents:    r.PriceCents,
		ExpiresAt:     r.ExpiresAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// POST /api/v1/reservations
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	holderID := api.PrincipalFromContext(r.Context())
	if holderID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if h.limiter != nil {
		ip := ratelimit.GetClientIP(r, false)
		if res := h.limiter.CheckReserve(holderID, ip); !res.Allowed {
			ratelimit.LogRateLimitExceeded(holderID, ip, res.Reason)
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			http.Error(w, "Too many reservation attempts", http.StatusTooManyRequests)
			return
		}
		h.limiter.RecordReserve(holderID, ip)
	}

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.CourtID == "" {
		http.Error(w, apiutil.FieldError{Field: "courtId", Reason: "is required"}.Error(), http.StatusBadRequest)
		return
	}

	start, err := parseUTCInstant("start", req.Start)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := parseUTCInstant("end", req.End)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	created, err := h.engine.Reserve(ctx, req.CourtID, start, end, holderID)
	if err != nil {
		writeEngineError(w, logger, err, "Failed to create reservation")
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, toResponse(created))
}

// POST /api/v1/reservations/{id}/confirm
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if api.PrincipalFromContext(r.Context()) == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "reservation id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	confirmed, err := h.engine.Confirm(ctx, id)
	if err != nil {
		writeEngineError(w, logger, err, "Failed to confirm reservation")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, toResponse(confirmed))
}

// DELETE /api/v1/reservations/{id}
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if api.PrincipalFromContext(r.Context()) == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "reservation id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	if _, err := h.engine.Cancel(ctx, id); err != nil {
		writeEngineError(w, logger, err, "Failed to cancel reservation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/availability?court_ids=a,b&from=...&to=...&granularity=1h
func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	courtIDs := splitCSV(r.URL.Query().Get("court_ids"))
	if len(courtIDs) == 0 {
		http.Error(w, apiutil.FieldError{Field: "court_ids", Reason: "is required"}.Error(), http.StatusBadRequest)
		return
	}

	from, err := parseUTCInstant("from", r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseUTCInstant("to", r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	granularity := time.Hour
	if raw := r.URL.Query().Get("granularity"); raw != "" {
		granularity, err = time.ParseDuration(raw)
		if err != nil {
			http.Error(w, apiutil.FieldError{Field: "granularity", Reason: "must be a duration"}.Error(), http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), reservationQueryTimeout)
	defer cancel()

	grid, err := h.engine.Availability(ctx, courtIDs, from, to, granularity)
	if err != nil {
		writeEngineError(w, logger, err, "Failed to compute availability")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, grid)
}

// writeEngineError maps the engine's error taxonomy onto distinct HTTP
// statuses. Anything unexpected becomes a generic 500 so storage details
// never leak to clients.
func writeEngineError(w http.ResponseWriter, logger *zerolog.Logger, err error, internalMsg string) {
	he := classifyEngineError(err)
	if he.Status == http.StatusInternalServerError {
		logger.Error().Err(he.Err).Msg(internalMsg)
	}
	http.Error(w, he.Message, he.Status)
}

func classifyEngineError(err error) apiutil.HandlerError {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	case errors.Is(err, booking.ErrNotFound):
		return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Not found", Err: err}
	case errors.Is(err, booking.ErrConflict):
		return apiutil.HandlerError{Status: http.StatusConflict, Message: "Slot already booked or held", Err: err}
	case errors.Is(err, booking.ErrExpired):
		return apiutil.HandlerError{Status: http.StatusGone, Message: "Hold expired, please reserve again", Err: err}
	default:
		return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Internal Server Error", Err: err}
	}
}

// parseUTCInstant accepts only UTC-suffixed RFC 3339 instants. A non-UTC
// offset is a validation error, never a silent local-time interpretation.
func parseUTCInstant(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apiutil.FieldError{Field: field, Reason: "is required"}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apiutil.FieldError{Field: field, Reason: "must be an RFC 3339 timestamp"}
	}
	if !strings.HasSuffix(raw, "Z") {
		return time.Time{}, apiutil.FieldError{Field: field, Reason: "must be UTC (Z-suffixed)"}
	}
	return t.UTC(), nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
