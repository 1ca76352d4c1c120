package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pushfleet/broadcast-engine/internal/domain"
)

type SubscriptionService interface {
	RegisterSubscription(ctx context.Context, endpoint, p256dh, auth string) (*domain.Subscriber, error)
	Unsubscribe(ctx context.Context, endpoint string) error
	SubscriberCount(ctx context.Context) (int64, error)
}

type SubscriptionHandler struct {
	service        SubscriptionService
	vapidPublicKey string
}

func NewSubscriptionHandler(service SubscriptionService, vapidPublicKey string) (*SubscriptionHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("subscription service is required")
	}
	return &SubscriptionHandler{service: service, vapidPublicKey: vapidPublicKey}, nil
}

func RegisterSubscriptionRoutes(router fiber.Router, service SubscriptionService, vapidPublicKey string) error {
	h, err := NewSubscriptionHandler(service, vapidPublicKey)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/subscriptions", h.Register)
	v1.Delete("/subscriptions", h.Unsubscribe)
	v1.Get("/subscriptions/stats", h.Stats)
	v1.Get("/push/key", h.PushKey)

	return nil
}

// subscriptionRequest mirrors the browser's PushSubscription.toJSON shape so
// clients can post the object as-is.
type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type subscriptionResponse struct {
	ID        int64     `json:"id"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

func (h *SubscriptionHandler) Register(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub, err := h.service.RegisterSubscription(c.Context(), req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(subscriptionResponse{
		ID:        sub.ID,
		Endpoint:  sub.Endpoint,
		CreatedAt: sub.CreatedAt,
	})
}

func (h *SubscriptionHandler) Unsubscribe(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.Unsubscribe(c.Context(), req.Endpoint); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SubscriptionHandler) Stats(c *fiber.Ctx) error {
	total, err := h.service.SubscriberCount(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"total": total,
	})
}

// PushKey serves the VAPID public key browsers need for
// pushManager.subscribe.
func (h *SubscriptionHandler) PushKey(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"publicKey": h.vapidPublicKey,
	})
}
