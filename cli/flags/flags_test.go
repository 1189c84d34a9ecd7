package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringSliceToIndexes(t *testing.T) {
	ids, err := StringSliceToIndexes([]string{"1", " 3", "2"})
	require.NoError(t, err)
	require.Equal(t, []uint16{1, 3, 2}, ids)

	for _, bad := range [][]string{{"a"}, {"-1"}, {"65536"}} {
		_, err := StringSliceToIndexes(bad)
		require.Error(t, err)
	}
}
