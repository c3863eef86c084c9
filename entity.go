package distill

import "time"

// Entity carries the timestamps common to all Distill records.
// Embed it in record structs; the owning component maintains the fields.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
