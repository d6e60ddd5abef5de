package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActualTime(t *testing.T) {
	tests := []struct {
		name          string
		target        string
		minutesBefore int
		want          string
	}{
		{"one hour before dinner", "19:00", 60, "6:00 PM"},
		{"serve time", "19:00", 0, "7:00 PM"},
		{"morning", "09:05", 5, "9:00 AM"},
		{"noon", "12:30", 30, "12:00 PM"},
		{"wraps past midnight", "00:10", 30, "11:40 PM"},
		{"long braise", "18:30", 240, "2:30 PM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ActualTime(tt.target, tt.minutesBefore)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("rejects malformed target", func(t *testing.T) {
		_, err := ActualTime("7pm", 10)
		assert.Error(t, err)
	})
}

func TestConvertIngredientUnit(t *testing.T) {
	t.Run("pounds to kilograms", func(t *testing.T) {
		got := ConvertIngredientUnit("2 lb chicken", Metric)
		assert.Equal(t, "2 lb", got.Original)
		assert.Equal(t, "0.9 kg", got.Converted)
	})

	t.Run("plural and case insensitive units", func(t *testing.T) {
		assert.Equal(t, "473.2 ml", ConvertIngredientUnit("2 Cups flour", Metric).Converted)
		assert.Equal(t, "0.9 kg", ConvertIngredientUnit("2 lbs beef", Metric).Converted)
	})

	t.Run("decimal quantity without space", func(t *testing.T) {
		assert.Equal(t, "7.4 ml", ConvertIngredientUnit("1.5tsp salt", Metric).Converted)
	})

	t.Run("ounces and tablespoons", func(t *testing.T) {
		assert.Equal(t, "113.4 g", ConvertIngredientUnit("4 oz cheddar", Metric).Converted)
		assert.Equal(t, "29.6 ml", ConvertIngredientUnit("2 tbsp olive oil", Metric).Converted)
	})

	t.Run("no measured quantity", func(t *testing.T) {
		got := ConvertIngredientUnit("salt to taste", Metric)
		assert.Equal(t, "salt to taste", got.Original)
		assert.Equal(t, "salt to taste", got.Converted)
	})

	t.Run("unrecognized unit", func(t *testing.T) {
		got := ConvertIngredientUnit("3 cloves garlic", Metric)
		assert.Equal(t, "3 cloves", got.Original)
		assert.Equal(t, NotAvailable, got.Converted)
	})

	t.Run("non metric target", func(t *testing.T) {
		assert.Equal(t, NotAvailable, ConvertIngredientUnit("2 lb chicken", Imperial).Converted)
	})
}

func TestConvertAll(t *testing.T) {
	got := ConvertAll([]string{"1 cup rice", "pinch of salt"}, Metric)
	require.Len(t, got, 2)
	assert.Equal(t, "236.6 ml", got[0].Converted)
	assert.Equal(t, "pinch of salt", got[1].Converted)
}
