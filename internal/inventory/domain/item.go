// Package domain holds the core inventory types shared by the ledger,
// costing engine, production batch engine and audit reconciler.
package domain

import (
	"context"

	"github.com/craftline/craftline-backend/pkg/errors"
)

// ItemKind discriminates the polymorphic stockable item reference.
type ItemKind string

const (
	KindMaterial       ItemKind = "material"
	KindProduct        ItemKind = "product"
	KindProductVariant ItemKind = "product_variant"
)

// Valid reports whether the kind is one of the recognized values.
func (k ItemKind) Valid() bool {
	switch k {
	case KindMaterial, KindProduct, KindProductVariant:
		return true
	}
	return false
}

// ItemRef identifies a stockable or producible thing as an explicit
// (kind, id) pair. Items themselves are owned by the external catalog.
type ItemRef struct {
	Kind ItemKind `json:"kind" db:"item_kind"`
	ID   string   `json:"id" db:"item_id"`
}

// Key returns the canonical string form of the reference. Lock acquisition
// across multiple items sorts by this key so overlapping component sets
// always lock in the same order.
func (r ItemRef) Key() string {
	return string(r.Kind) + ":" + r.ID
}

func (r ItemRef) String() string {
	return r.Key()
}

// ItemDescriptor is what the external catalog knows about an item.
type ItemDescriptor struct {
	Name   string `json:"name"`
	Unit   string `json:"unit"`
	Active bool   `json:"active"`
}

// ItemLookup resolves item references against the external catalog.
// Implementations must return errors.NotFound for unknown items.
type ItemLookup interface {
	Lookup(ctx context.Context, ref ItemRef) (*ItemDescriptor, error)
}

// ParseItemKind converts a string into an ItemKind, rejecting unknown values.
func ParseItemKind(s string) (ItemKind, error) {
	k := ItemKind(s)
	if !k.Valid() {
		return "", errors.BadRequest("unknown item kind " + s)
	}
	return k, nil
}
