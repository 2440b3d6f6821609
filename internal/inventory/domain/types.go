package domain

import (
	"context"
	"time"

	"github.com/craftline/craftline-backend/pkg/errors"
)

// CostStrategy selects how lots are priced or picked for a consumption.
type CostStrategy string

const (
	CostStrategyAverage CostStrategy = "average"
	CostStrategyFIFO    CostStrategy = "fifo"
	CostStrategyLIFO    CostStrategy = "lifo"
)

// Valid reports whether the strategy is one of the recognized values.
func (s CostStrategy) Valid() bool {
	switch s {
	case CostStrategyAverage, CostStrategyFIFO, CostStrategyLIFO:
		return true
	}
	return false
}

// ParseCostStrategy converts a string into a CostStrategy, rejecting unknown values.
func ParseCostStrategy(s string) (CostStrategy, error) {
	cs := CostStrategy(s)
	if !cs.Valid() {
		return "", errors.BadRequest("unknown cost strategy " + s)
	}
	return cs, nil
}

// TransactionType classifies a ledger transaction.
type TransactionType string

const (
	TransactionIncoming   TransactionType = "incoming"
	TransactionOutgoing   TransactionType = "outgoing"
	TransactionAdjustment TransactionType = "adjustment"
)

// AuditStatus is the lifecycle state of a physical-count session.
type AuditStatus string

const (
	AuditStatusDraft      AuditStatus = "draft"
	AuditStatusInProgress AuditStatus = "in_progress"
	AuditStatusCompleted  AuditStatus = "completed"
	AuditStatusCancelled  AuditStatus = "cancelled"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s AuditStatus) Valid() bool {
	switch s {
	case AuditStatusDraft, AuditStatusInProgress, AuditStatusCompleted, AuditStatusCancelled:
		return true
	}
	return false
}

// Clock abstracts time for reservation expiry and timestamps, so tests can
// pin "now".
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a Clock pinned at t.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// staticLookup is an ItemLookup over a fixed map, useful for wiring
// self-contained deployments and tests.
type staticLookup map[ItemRef]*ItemDescriptor

// StaticItemLookup builds an ItemLookup from a fixed set of descriptors.
func StaticItemLookup(items map[ItemRef]*ItemDescriptor) ItemLookup {
	return staticLookup(items)
}

func (l staticLookup) Lookup(_ context.Context, ref ItemRef) (*ItemDescriptor, error) {
	if d, ok := l[ref]; ok {
		return d, nil
	}
	return nil, errors.NotFound("item " + ref.Key())
}
