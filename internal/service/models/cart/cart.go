package cart

// Snapshot is the buyer's cart: product id -> size label -> quantity.
// Cart mutation lives in a separate collaborator; this service only reads a
// snapshot at order creation and wipes it exactly once on confirmation.
type Snapshot map[string]map[string]int

// Empty reports whether the snapshot holds no positions.
func (s Snapshot) Empty() bool {
	for _, sizes := range s {
		for _, qty := range sizes {
			if qty > 0 {
				return false
			}
		}
	}

	return true
}
