package domain

import (
	"fmt"
	"time"
)

// Category is a dashboard notification section.
type Category string

const (
	CategoryOrders       Category = "orders"
	CategoryReservations Category = "reservations"
	CategoryPayments     Category = "payments"
	CategoryMessages     Category = "messages"
	CategoryProducts     Category = "products"
)

// Categories lists every dashboard section in display order.
var Categories = []Category{
	CategoryOrders,
	CategoryReservations,
	CategoryPayments,
	CategoryMessages,
	CategoryProducts,
}

// ParseCategory validates a section name coming from a client.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown section %q: %w", s, ErrBadRequest)
}

// Watermark is the singleton "last seen" record of the admin dashboard.
// Events with a timestamp after a category's instant are unseen.
type Watermark struct {
	WatermarkID  string    `json:"id" dynamodbav:"watermark_id"`
	Orders       time.Time `json:"orders" dynamodbav:"orders_seen_at"`
	Reservations time.Time `json:"reservations" dynamodbav:"reservations_seen_at"`
	Payments     time.Time `json:"payments" dynamodbav:"payments_seen_at"`
	Messages     time.Time `json:"messages" dynamodbav:"messages_seen_at"`
	Products     time.Time `json:"products" dynamodbav:"products_seen_at"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
}

// NewWatermark returns a watermark with every category set to now.
func NewWatermark(id string, now time.Time) *Watermark {
	return &Watermark{
		WatermarkID:  id,
		Orders:       now,
		Reservations: now,
		Payments:     now,
		Messages:     now,
		Products:     now,
		CreatedAt:    now,
	}
}

// SeenAt returns the watermark instant for c.
func (w *Watermark) SeenAt(c Category) time.Time {
	switch c {
	case CategoryOrders:
		return w.Orders
	case CategoryReservations:
		return w.Reservations
	case CategoryPayments:
		return w.Payments
	case CategoryMessages:
		return w.Messages
	case CategoryProducts:
		return w.Products
	}
	return w.CreatedAt
}

// Field is the DynamoDB attribute holding the category's watermark.
func (c Category) Field() string { return string(c) + "_seen_at" }
