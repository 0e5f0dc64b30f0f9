package mirror_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhalle/vost/mirror"
	"github.com/mhalle/vost/oid"
)

func o(b byte) oid.OID {
	var x oid.OID
	x[0] = b
	return x
}

func TestDiffClassifiesAddUpdateDelete(t *testing.T) {
	src := mirror.RefTable{
		"refs/heads/main":    o(1),
		"refs/heads/feature": o(2),
		"refs/tags/v1":       o(3),
	}
	dest := mirror.RefTable{
		"refs/heads/main": o(9), // diverged -> update
		"refs/tags/v1":    o(3), // equal -> absent from diff
		"refs/heads/gone": o(4), // dest-only -> delete
	}

	d := mirror.Diff(src, dest)

	require.Len(t, d.Add, 1)
	require.Equal(t, "refs/heads/feature", d.Add[0].Name)

	require.Len(t, d.Update, 1)
	require.Equal(t, "refs/heads/main", d.Update[0].Name)
	require.Equal(t, o(1), d.Update[0].OID)

	require.Len(t, d.Delete, 1)
	require.Equal(t, "refs/heads/gone", d.Delete[0].Name)
}

func TestDiffEmptyWhenTablesMatch(t *testing.T) {
	t1 := mirror.RefTable{"refs/heads/main": o(1)}
	t2 := mirror.RefTable{"refs/heads/main": o(1)}
	d := mirror.Diff(t1, t2)
	require.Empty(t, d.Add)
	require.Empty(t, d.Update)
	require.Empty(t, d.Delete)
}
