package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pushfleet/broadcast-engine/internal/domain"
	"github.com/pushfleet/broadcast-engine/internal/repository"
	"github.com/pushfleet/broadcast-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	defaultOutcomeLimit = 100
	maxOutcomeLimit     = 1000
)

type BroadcastService interface {
	Schedule(ctx context.Context, req service.ScheduleRequest) (*domain.Notification, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	Cancel(ctx context.Context, id string) error
	ListOutcomes(ctx context.Context, notificationID string, limit int) ([]domain.BatchOutcome, error)
}

// BroadcastTicker drives one delivery batch per call. The HTTP tick endpoint
// exists so external schedulers can drive delivery without the built-in
// runner.
type BroadcastTicker interface {
	Tick(ctx context.Context, notificationID string) error
}

type BroadcastHandler struct {
	service BroadcastService
	ticker  BroadcastTicker
}

func NewBroadcastHandler(service BroadcastService, ticker BroadcastTicker) (*BroadcastHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("broadcast service is required")
	}
	if ticker == nil {
		return nil, fmt.Errorf("broadcast ticker is required")
	}
	return &BroadcastHandler{service: service, ticker: ticker}, nil
}

func RegisterBroadcastRoutes(router fiber.Router, service BroadcastService, ticker BroadcastTicker) error {
	h, err := NewBroadcastHandler(service, ticker)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/broadcasts", h.ScheduleBroadcast)
	v1.Get("/broadcasts", h.ListBroadcasts)
	v1.Get("/broadcasts/:id", h.GetBroadcast)
	v1.Get("/broadcasts/:id/outcomes", h.ListOutcomes)
	v1.Post("/broadcasts/:id/tick", h.TickBroadcast)
	v1.Post("/broadcasts/:id/cancel", h.CancelBroadcast)

	return nil
}

type scheduleBroadcastRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	ImageURL  string `json:"imageUrl"`
	TargetURL string `json:"targetUrl"`
}

type broadcastResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	TargetURL    string    `json:"targetUrl,omitempty"`
	Status       string    `json:"status"`
	TotalAtStart int       `json:"totalAtStart"`
	SentCount    int       `json:"sentCount"`
	FailedCount  int       `json:"failedCount"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

type listBroadcastsResponse struct {
	Data []broadcastResponse `json:"data"`
	Meta listMeta            `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type outcomeResponse struct {
	SubscriberID    int64     `json:"subscriberId"`
	Result          string    `json:"result"`
	TransportStatus int       `json:"transportStatus,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitempty"`
}

func (h *BroadcastHandler) ScheduleBroadcast(c *fiber.Ctx) error {
	var req scheduleBroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	n, err := h.service.Schedule(c.Context(), service.ScheduleRequest{
		Title:     req.Title,
		Body:      req.Body,
		ImageURL:  req.ImageURL,
		TargetURL: req.TargetURL,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toBroadcastResponse(n))
}

func (h *BroadcastHandler) GetBroadcast(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	n, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBroadcastResponse(n))
}

func (h *BroadcastHandler) ListBroadcasts(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	broadcasts, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]broadcastResponse, 0, len(broadcasts))
	for i := range broadcasts {
		data = append(data, toBroadcastResponse(&broadcasts[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listBroadcastsResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *BroadcastHandler) ListOutcomes(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	limit := c.QueryInt("limit", defaultOutcomeLimit)
	if limit < 1 || limit > maxOutcomeLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxOutcomeLimit))
	}

	// 404 for unknown broadcasts rather than an empty list.
	if _, err := h.service.GetByID(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	outcomes, err := h.service.ListOutcomes(c.Context(), id, limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]outcomeResponse, 0, len(outcomes))
	for _, outcome := range outcomes {
		data = append(data, outcomeResponse{
			SubscriberID:    outcome.SubscriberID,
			Result:          outcome.Result.String(),
			TransportStatus: outcome.TransportStatus,
			CreatedAt:       outcome.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"outcomes":       data,
	})
}

// TickBroadcast performs at most one delivery batch synchronously and returns
// the broadcast's refreshed progress. Ticking is idempotent: overlapping
// calls are resolved by the lease, ticks on finished broadcasts do nothing.
func (h *BroadcastHandler) TickBroadcast(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return toHTTPError(fmt.Errorf("%w: broadcast id is required", domain.ErrValidation))
	}

	if err := h.ticker.Tick(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	n, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBroadcastResponse(n))
}

func (h *BroadcastHandler) CancelBroadcast(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"status":         domain.StatusCancelled.String(),
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func toBroadcastResponse(n *domain.Notification) broadcastResponse {
	if n == nil {
		return broadcastResponse{}
	}

	return broadcastResponse{
		ID:           n.ID,
		Title:        n.Title,
		Body:         n.Body,
		ImageURL:     n.ImageURL,
		TargetURL:    n.TargetURL,
		Status:       n.Status.String(),
		TotalAtStart: n.TotalAtStart,
		SentCount:    n.SentCount,
		FailedCount:  n.FailedCount,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
