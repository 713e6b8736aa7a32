// Package customers provides customer lookups for the sale flow. The walk-in
// customer is a reserved, always-present record used when no customer is
// selected; its id comes from configuration.
package customers

import (
	"errors"
	"time"
)

// Customer model.
type Customer struct {
	ID        int64
	Name      string
	Phone     string
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrCustomerNotFound indicates an unknown customer.
var ErrCustomerNotFound = errors.New("customers: customer not found")
