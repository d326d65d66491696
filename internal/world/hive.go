package world

import (
	"fmt"
	"math"
)

// Hive is the depot bees return nectar to.
type Hive struct {
	Position Vec3    `json:"position"`
	Radius   float64 `json:"radius"` // Contact radius
	Nectar   float64 `json:"nectar"` // Total deposited this episode
	Deposits int     `json:"deposits"`
}

// Deposit adds a positive amount to the hive total.
func (h *Hive) Deposit(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("%w: deposit %v", ErrInvalidAmount, amount)
	}
	h.Nectar += amount
	h.Deposits++
	return nil
}

// Reset empties the hive for a new episode.
func (h *Hive) Reset() {
	h.Nectar = 0
	h.Deposits = 0
}
