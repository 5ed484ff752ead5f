package store

import (
	"testing"

	"github.com/pactify/ledger-service/internal/domain"
)

func TestClampListOptions(t *testing.T) {
	tests := []struct {
		name       string
		opts       domain.TransactionListOptions
		wantLimit  int
		wantOffset int
	}{
		{
			name:       "zero values take defaults",
			opts:       domain.TransactionListOptions{},
			wantLimit:  50,
			wantOffset: 0,
		},
		{
			name:       "negative limit takes default",
			opts:       domain.TransactionListOptions{Limit: -5, Offset: 10},
			wantLimit:  50,
			wantOffset: 10,
		},
		{
			name:       "limit above cap is clamped",
			opts:       domain.TransactionListOptions{Limit: 500},
			wantLimit:  100,
			wantOffset: 0,
		},
		{
			name:       "negative offset is clamped to zero",
			opts:       domain.TransactionListOptions{Limit: 25, Offset: -1},
			wantLimit:  25,
			wantOffset: 0,
		},
		{
			name:       "in-range values pass through",
			opts:       domain.TransactionListOptions{Limit: 100, Offset: 200},
			wantLimit:  100,
			wantOffset: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLimit, gotOffset := clampListOptions(tt.opts)
			if gotLimit != tt.wantLimit {
				t.Fatalf("expected limit=%d, got %d", tt.wantLimit, gotLimit)
			}
			if gotOffset != tt.wantOffset {
				t.Fatalf("expected offset=%d, got %d", tt.wantOffset, gotOffset)
			}
		})
	}
}
