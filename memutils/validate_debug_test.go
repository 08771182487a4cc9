//go:build debug_tiler

package memutils_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/tiler/memutils"
)

type brokenInvariant struct {
	err error
}

func (b brokenInvariant) Validate() error {
	return b.err
}

func TestDebugValidate(t *testing.T) {
	require.NotPanics(t, func() {
		memutils.DebugValidate(brokenInvariant{})
	})

	require.Panics(t, func() {
		memutils.DebugValidate(brokenInvariant{err: errors.New("broken")})
	})

	require.Panics(t, func() {
		memutils.DebugCheckPow2(uint(48), "alignment")
	})
}
