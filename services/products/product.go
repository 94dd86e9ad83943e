// Package products serves the product catalogue.
package products

import "time"

// Product is a catalogue entry.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name" binding:"required,min=2,max=100"`
	Description string    `json:"description" binding:"max=500"`
	Price       float64   `json:"price" binding:"required,gt=0"`
	Quantity    int       `json:"quantity" binding:"gte=0"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func setID(p *Product, id int64) { p.ID = id }
