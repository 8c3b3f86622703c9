package domain

import "time"

// MaxWriteAttempts bounds how many times a conflicting write is attempted.
const MaxWriteAttempts = 2

type Item struct {
	ID          int64
	Name        string
	Description string
	Quantity    int
	Price       float64
	OwnerID     string
	Version     int // optimistic locking
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemFields are the client-supplied attributes of a new item.
type ItemFields struct {
	Name        string  `validate:"required,max=80"`
	Description string  `validate:"required,max=240"`
	Quantity    int     `validate:"gte=0"`
	Price       float64 `validate:"gte=0"`
}

// ItemPatch carries the mutable attributes present in an update request.
// A nil field is left untouched.
type ItemPatch struct {
	Name        *string  `validate:"omitnil,min=1,max=80"`
	Description *string  `validate:"omitnil,min=1,max=240"`
	Quantity    *int     `validate:"omitnil,gte=0"`
	Price       *float64 `validate:"omitnil,gte=0"`
}

func NewItem(fields ItemFields, ownerID string, now time.Time) Item {
	return Item{
		Name:        fields.Name,
		Description: fields.Description,
		Quantity:    fields.Quantity,
		Price:       fields.Price,
		OwnerID:     ownerID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply copies the present fields onto item. ID, OwnerID and Version are
// never touched.
func (p ItemPatch) Apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
}

func (p ItemPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Quantity == nil && p.Price == nil
}
