package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/pkg/errors"
)

// ConversionSource supplies the conversion rules registered for an item.
type ConversionSource interface {
	ListByItem(ctx context.Context, ref domain.ItemRef) ([]*repository.UnitConversion, error)
}

// UnitConverter converts quantities between units of the same item. Rules
// are directed (from_unit, to_unit, factor) but each rule is also usable
// inverted, and rules chain: g->kg and kg->t together convert g->t.
type UnitConverter struct {
	source ConversionSource
}

// NewUnitConverter creates a new unit converter
func NewUnitConverter(source ConversionSource) *UnitConverter {
	return &UnitConverter{source: source}
}

// Convert converts quantity from one unit to another for the given item.
// Same-unit conversion is the identity and needs no rule.
func (c *UnitConverter) Convert(ctx context.Context, ref domain.ItemRef, quantity decimal.Decimal, fromUnit, toUnit string) (decimal.Decimal, error) {
	if fromUnit == toUnit {
		return quantity, nil
	}

	rules, err := c.source.ListByItem(ctx, ref)
	if err != nil {
		return decimal.Zero, err
	}

	factor, ok := findFactor(rules, fromUnit, toUnit)
	if !ok {
		return decimal.Zero, errors.UnitConversionMissing(fromUnit, toUnit)
	}
	return quantity.Mul(factor), nil
}

type conversionEdge struct {
	to     string
	factor decimal.Decimal
}

// findFactor breadth-first searches the conversion graph built from the
// rules (forward and inverted edges) and returns the combined factor along
// the shortest path.
func findFactor(rules []*repository.UnitConversion, fromUnit, toUnit string) (decimal.Decimal, bool) {
	graph := make(map[string][]conversionEdge)
	for _, r := range rules {
		if r.Factor.IsZero() {
			continue
		}
		graph[r.FromUnit] = append(graph[r.FromUnit], conversionEdge{to: r.ToUnit, factor: r.Factor})
		graph[r.ToUnit] = append(graph[r.ToUnit], conversionEdge{to: r.FromUnit, factor: decimal.NewFromInt(1).Div(r.Factor)})
	}

	type node struct {
		unit   string
		factor decimal.Decimal
	}
	visited := map[string]bool{fromUnit: true}
	queue := []node{{unit: fromUnit, factor: decimal.NewFromInt(1)}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.unit == toUnit {
			return current.factor, true
		}
		for _, edge := range graph[current.unit] {
			if visited[edge.to] {
				continue
			}
			visited[edge.to] = true
			queue = append(queue, node{unit: edge.to, factor: current.factor.Mul(edge.factor)})
		}
	}
	return decimal.Zero, false
}
