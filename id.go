package distill

import "github.com/xraph/distill/id"

// ID is the primary identifier type for all Distill entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
