package stock

import (
	"sort"

	"github.com/google/uuid"
)

// Key identifies one stock-keeping unit: a product, or one of its variant
// combinations.
type Key struct {
	ProductID     uuid.UUID
	CombinationID *uuid.UUID
}

// NewKey builds a key, normalizing a nil-UUID combination to none.
func NewKey(productID uuid.UUID, combinationID *uuid.UUID) Key {
	if combinationID != nil && *combinationID == uuid.Nil {
		combinationID = nil
	}
	return Key{ProductID: productID, CombinationID: combinationID}
}

func (k Key) String() string {
	if k.CombinationID == nil {
		return k.ProductID.String()
	}
	return k.ProductID.String() + "/" + k.CombinationID.String()
}

func (k Key) combinationString() string {
	if k.CombinationID == nil {
		return ""
	}
	return k.CombinationID.String()
}

// SortKeys orders keys deterministically so lock acquisition never inverts.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
