package workspace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalID_StableAndDistinct(t *testing.T) {
	ClearCache()

	id1, abs1, err := CanonicalID("/tmp/project-a")
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	require.Equal(t, "/tmp/project-a", abs1)

	id1Again, _, err := CanonicalID("/tmp/project-a")
	require.NoError(t, err)
	require.Equal(t, id1, id1Again)

	id2, _, err := CanonicalID("/tmp/project-b")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestCanonicalID_UncleanPathResolvesToSameAbs(t *testing.T) {
	ClearCache()

	idAbs, _, err := CanonicalID("/tmp/rel-test")
	require.NoError(t, err)

	idClean, _, err := CanonicalID("/tmp/./rel-test/")
	require.NoError(t, err)

	require.Equal(t, idAbs, idClean)
}
