package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	v := func(major, minor, patch int) Application {
		return Application{Name: "antnode", Major: major, Minor: minor, Patch: patch}
	}

	require.Equal(t, 0, v(1, 2, 3).Compare(v(1, 2, 3)))
	require.True(t, v(1, 2, 3).Before(v(1, 2, 4)))
	require.True(t, v(1, 2, 3).Before(v(1, 3, 0)))
	require.True(t, v(1, 2, 3).Before(v(2, 0, 0)))
	require.False(t, v(2, 0, 0).Before(v(1, 9, 9)))
}

func TestCompatible(t *testing.T) {
	a := Application{Name: "antnode", Major: 1, Minor: 0}
	b := Application{Name: "antnode", Major: 1, Minor: 7}
	c := Application{Name: "antnode", Major: 2}

	require.True(t, a.Compatible(b))
	require.False(t, a.Compatible(c))
}
