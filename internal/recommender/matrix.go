package recommender

import (
	"fmt"
)

// BuildInteractionMatrix accumulates purchased quantities per user and item
// across every fulfilled order. Repeat purchases add up. Lines whose product
// reference is missing are skipped.
func BuildInteractionMatrix(orders []FulfilledOrder) (InteractionMatrix, error) {
	matrix := make(InteractionMatrix)

	for _, order := range orders {
		if order.UserID == "" {
			return nil, fmt.Errorf("%w: order %q has no user", ErrInvalidInput, order.OrderID)
		}

		userItems, ok := matrix[order.UserID]
		if !ok {
			userItems = make(map[string]float64)
			matrix[order.UserID] = userItems
		}

		for _, line := range order.LineItems {
			if line.ItemID == "" {
				continue
			}
			if line.Quantity < 0 {
				return nil, fmt.Errorf("%w: order %q has negative quantity for item %q",
					ErrInvalidInput, order.OrderID, line.ItemID)
			}
			userItems[line.ItemID] += float64(line.Quantity)
		}
	}

	return matrix, nil
}
