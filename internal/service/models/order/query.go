package order

import "github.com/google/uuid"

// QueryOrdersModel represents filter parameters for querying orders.
type QueryOrdersModel struct {
	IDs      []uuid.UUID `json:"ids,omitempty"`
	OwnerIDs []string    `json:"ownerIds,omitempty"`
	Statuses []Status    `json:"statuses,omitempty"`
	Limit    int         `json:"limit,omitempty"`
	Offset   int         `json:"offset,omitempty"`
}
