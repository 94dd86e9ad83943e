// Package orders serves customer orders. Creating an order checks every item against the
// products service.
package orders

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

var statuses = []Status{StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	for _, st := range statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", errors.Newf("unknown order status %q", s)
}

// Order is a customer order.
type Order struct {
	ID            int64     `json:"id"`
	CustomerName  string    `json:"customerName" binding:"required"`
	CustomerEmail string    `json:"customerEmail" binding:"required,email"`
	TotalAmount   float64   `json:"totalAmount"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Items         []Item    `json:"items" binding:"dive"`
}

// Item is one order line.
type Item struct {
	ProductID   int64   `json:"productId" binding:"required,gt=0"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64 `json:"unitPrice"`
	TotalPrice  float64 `json:"totalPrice"`
}

// Stats summarises the stored orders.
type Stats struct {
	Count    int            `json:"count"`
	ByStatus map[Status]int `json:"byStatus"`
	Revenue  float64        `json:"revenue"`
}

func setID(o *Order, id int64) { o.ID = id }

func (o *Order) total() {
	o.TotalAmount = 0
	for i := range o.Items {
		o.Items[i].TotalPrice = o.Items[i].UnitPrice * float64(o.Items[i].Quantity)
		o.TotalAmount += o.Items[i].TotalPrice
	}
}
