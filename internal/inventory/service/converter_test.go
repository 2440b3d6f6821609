package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/internal/inventory/service"
	"github.com/craftline/craftline-backend/pkg/errors"
)

type staticConversions []*repository.UnitConversion

func (s staticConversions) ListByItem(_ context.Context, _ domain.ItemRef) ([]*repository.UnitConversion, error) {
	return s, nil
}

func rule(from, to, factor string) *repository.UnitConversion {
	return &repository.UnitConversion{FromUnit: from, ToUnit: to, Factor: dec(factor)}
}

func TestUnitConverter_Convert(t *testing.T) {
	ctx := context.Background()
	ref := domain.ItemRef{Kind: domain.KindMaterial, ID: "flour"}
	converter := service.NewUnitConverter(staticConversions{
		rule("kg", "g", "1000"),
		rule("sack", "kg", "25"),
	})

	tests := []struct {
		name     string
		quantity string
		from, to string
		want     string
	}{
		{"identity needs no rule", "7.5", "kg", "kg", "7.5"},
		{"direct rule", "2", "kg", "g", "2000"},
		{"inverted rule", "500", "g", "kg", "0.5"},
		{"chained rules", "2", "sack", "g", "50000"},
		{"chained inverted", "50000", "g", "sack", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := converter.Convert(ctx, ref, dec(tt.quantity), tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestUnitConverter_MissingRule(t *testing.T) {
	converter := service.NewUnitConverter(staticConversions{
		rule("kg", "g", "1000"),
	})

	_, err := converter.Convert(context.Background(),
		domain.ItemRef{Kind: domain.KindMaterial, ID: "flour"},
		decimal.NewFromInt(1), "kg", "l")
	assert.True(t, errors.Is(err, errors.ErrUnitConversionMissing))
}

func TestUnitConverter_IgnoresZeroFactorRules(t *testing.T) {
	converter := service.NewUnitConverter(staticConversions{
		rule("kg", "g", "0"),
	})

	_, err := converter.Convert(context.Background(),
		domain.ItemRef{Kind: domain.KindMaterial, ID: "flour"},
		decimal.NewFromInt(1), "kg", "g")
	assert.True(t, errors.Is(err, errors.ErrUnitConversionMissing))
}
