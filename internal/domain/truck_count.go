package domain

import "fmt"

// Number of snow-plow trucks currently active. Produced fresh on every run.
type TruckCount int64

func NewTruckCount(n int64) (TruckCount, error) {
	if n < 0 {
		return 0, fmt.Errorf("%w: truck count must be non-negative, got %d", ErrQuery, n)
	}
	return TruckCount(n), nil
}

func (c TruckCount) Int64() int64 { return int64(c) }
