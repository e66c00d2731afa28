package application

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demandcast/internal/service/forecast/domain"
)

func intPtr(v int) *int { return &v }

func TestValidateForecastRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     ForecastRequest
		field   string
		wantErr bool
	}{
		{name: "ok", req: ForecastRequest{ProductIDs: []string{"BAG-001"}, StartDate: "2025-01-06"}},
		{name: "no products", req: ForecastRequest{StartDate: "2025-01-06"}, field: "ProductIDs", wantErr: true},
		{name: "empty product list", req: ForecastRequest{ProductIDs: []string{}, StartDate: "2025-01-06"}, field: "ProductIDs", wantErr: true},
		{name: "blank product id", req: ForecastRequest{ProductIDs: []string{""}, StartDate: "2025-01-06"}, field: "ProductIDs[0]", wantErr: true},
		{name: "bad date", req: ForecastRequest{ProductIDs: []string{"BAG-001"}, StartDate: "06/01/2025"}, field: "StartDate", wantErr: true},
		{name: "horizon zero", req: ForecastRequest{ProductIDs: []string{"BAG-001"}, StartDate: "2025-01-06", ForecastHorizonWeeks: intPtr(0)}, field: "ForecastHorizonWeeks", wantErr: true},
		{name: "horizon 53", req: ForecastRequest{ProductIDs: []string{"BAG-001"}, StartDate: "2025-01-06", ForecastHorizonWeeks: intPtr(53)}, field: "ForecastHorizonWeeks", wantErr: true},
		{name: "horizon 52", req: ForecastRequest{ProductIDs: []string{"BAG-001"}, StartDate: "2025-01-06", ForecastHorizonWeeks: intPtr(52)}},
		{name: "duplicate product ids", req: ForecastRequest{ProductIDs: []string{"BAG-001", "BAG-001"}, StartDate: "2025-01-06"}, field: "ProductIDs", wantErr: true},
		{name: "too many products", req: ForecastRequest{ProductIDs: []string{"A", "B", "C"}, StartDate: "2025-01-06"}, field: "ProductIDs", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, err := ValidateForecastRequest(&tt.req, 2)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC), start)
				return
			}
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestValidateForecastRequest_DuplicateMessage(t *testing.T) {
	_, err := ValidateForecastRequest(&ForecastRequest{ProductIDs: []string{"A", "B", "A"}, StartDate: "2025-01-06"}, 0)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "must not contain duplicates", verr.Fields[0].Message)
}

func TestForecastRequest_DefaultHorizon(t *testing.T) {
	assert.Equal(t, 13, (&ForecastRequest{}).Horizon())
	assert.Equal(t, 4, (&ForecastRequest{ForecastHorizonWeeks: intPtr(4)}).Horizon())
}
