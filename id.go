package trellis

import "github.com/xraph/trellis/id"

// ID is the identifier type for all Trellis entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
