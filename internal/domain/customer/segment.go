package customer

import "github.com/go-faster/errors"

// Segment classifies the buyer. Promotions receive it through the evaluation
// context; no built-in rule discriminates on it yet.
type Segment string

const (
	SegmentRegular Segment = "REGULAR"
	SegmentPremium Segment = "PREMIUM"
	SegmentVIP     Segment = "VIP"
)

// ErrInvalidSegment is returned for segment values outside the known set.
var ErrInvalidSegment = errors.New("invalid customer segment")

// Valid reports whether s is one of the known segments.
func (s Segment) Valid() bool {
	switch s {
	case SegmentRegular, SegmentPremium, SegmentVIP:
		return true
	default:
		return false
	}
}

// ParseSegment converts a raw value into a Segment. An empty value means
// SegmentRegular.
func ParseSegment(v string) (Segment, error) {
	if v == "" {
		return SegmentRegular, nil
	}
	s := Segment(v)
	if !s.Valid() {
		return "", errors.Wrapf(ErrInvalidSegment, "%q", v)
	}
	return s, nil
}
