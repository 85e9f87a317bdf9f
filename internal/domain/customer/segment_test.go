package customer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegment(t *testing.T) {
	tests := []struct {
		in      string
		want    Segment
		wantErr bool
	}{
		{in: "", want: SegmentRegular},
		{in: "REGULAR", want: SegmentRegular},
		{in: "PREMIUM", want: SegmentPremium},
		{in: "VIP", want: SegmentVIP},
		{in: "vip", wantErr: true},
		{in: "GOLD", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSegment(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSegment)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
