package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// RoundUp rounds value up to the next multiple of granularity, which does not need to be a power of two
func RoundUp(value int, granularity int) int {
	return ((value + granularity - 1) / granularity) * granularity
}

func Max[T constraints.Ordered](values ...T) T {
	var result T
	for i, value := range values {
		if i == 0 || value > result {
			result = value
		}
	}

	return result
}

func Abs[T constraints.Signed](value T) T {
	if value < 0 {
		return -value
	}
	return value
}

// Log2 returns the base 2 logarithm of a power of two
func Log2(value uint) int {
	result := 0
	for value > 1 {
		value >>= 1
		result++
	}
	return result
}
