package index_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TuSKan/zarr-index/index"
)

const u = index.Unmatched

func domain(t *testing.T, origin, exclusiveMax []int64, labels ...string) index.Domain {
	t.Helper()
	dims := make([]index.Dimension, len(origin))
	for i := range origin {
		iv, err := index.IntervalClosedOpen(origin[i], exclusiveMax[i])
		require.NoError(t, err)
		dims[i].Interval = iv
		if len(labels) > 0 {
			dims[i].Label = labels[i]
		}
	}
	d, err := index.NewDomain(dims...)
	require.NoError(t, err)
	return d
}

func TestAlignDimensionsTo_AllUnlabeled(t *testing.T) {
	// source: [3, 7), [5, 6), [4, 10)
	// target: [2, 6), [0, 4), [6, 12)
	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10})
	target := domain(t, []int64{2, 0, 6}, []int64{6, 4, 12})

	for _, options := range []index.DomainAlignmentOptions{index.AlignAll, index.AlignTranslate | index.AlignBroadcast} {
		matches, err := index.AlignDimensionsTo(source, target, options)
		require.NoError(t, err, options)
		assert.Equal(t, []int{0, u, 2}, matches, options)
	}

	matches, err := index.AlignDimensionsTo(source, source, index.AlignNone)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, matches)

	_, err = index.AlignDimensionsTo(source, target, index.AlignTranslate)
	require.ErrorIs(t, err, index.ErrDimensionIntervalMismatch)
	require.ErrorIs(t, err, index.ErrInvalidArgument)
	require.ErrorContains(t, err, "Mismatch between source dimension 1 {[5, 6)} and target dimension 1 {[0, 4)}")

	_, err = index.AlignDimensionsTo(source, target, index.AlignBroadcast)
	require.ErrorIs(t, err, index.ErrDimensionIntervalMismatch)
	require.ErrorContains(t, err, "Mismatch between source dimension 0 {[3, 7)} and target dimension 0 {[2, 6)}")
}

func TestAlignDimensionsTo_Identity(t *testing.T) {
	domains := []index.Domain{
		domain(t, nil, nil),
		domain(t, []int64{-5}, []int64{5}),
		domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "z"),
		domain(t, []int64{0, 0, 0, 0}, []int64{1, 2, 1, 8}, "a", "", "b", ""),
	}
	options := []index.DomainAlignmentOptions{
		index.AlignNone, index.AlignPermute, index.AlignTranslate, index.AlignBroadcast,
		index.AlignPermute | index.AlignTranslate, index.AlignPermute | index.AlignBroadcast,
		index.AlignTranslate | index.AlignBroadcast, index.AlignAll,
	}
	for _, d := range domains {
		want := make([]int, d.Rank())
		for i := range want {
			want[i] = i
		}
		for _, o := range options {
			matches, err := index.AlignDimensionsTo(d, d, o)
			require.NoError(t, err)
			assert.Equal(t, want, matches, "%v with %v", d, o)
		}
	}
}

func TestAlignDimensionsTo_MismatchedLabelsNoPermute(t *testing.T) {
	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "z")
	target := domain(t, []int64{2, 0, 6}, []int64{6, 4, 12}, "a", "b", "c")

	matches, err := index.AlignDimensionsTo(source, target, index.AlignTranslate|index.AlignBroadcast)
	require.NoError(t, err)
	assert.Equal(t, []int{0, u, 2}, matches)

	_, err = index.AlignDimensionsTo(source, target, index.AlignAll)
	require.ErrorIs(t, err, index.ErrUnmatchedNonBroadcastableDimension)
	require.ErrorContains(t, err, `Unmatched source dimension 0 {"x": [3, 7)} does not have a size of 1`)
}

func TestAlignDimensionsTo_LabelsIgnoredWithoutPermute(t *testing.T) {
	unlabeledSource := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10})
	unlabeledTarget := domain(t, []int64{2, 0, 6}, []int64{6, 4, 12})
	labeledSource := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "z")
	labeledTarget := domain(t, []int64{2, 0, 6}, []int64{6, 4, 12}, "z", "q", "x")

	options := index.AlignTranslate | index.AlignBroadcast
	want, err := index.AlignDimensionsTo(unlabeledSource, unlabeledTarget, options)
	require.NoError(t, err)
	got, err := index.AlignDimensionsTo(labeledSource, labeledTarget, options)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAlignDimensionsTo_OneSideUnlabeled(t *testing.T) {
	unlabeled := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10})
	labeled := domain(t, []int64{4, 0, 6}, []int64{8, 4, 12}, "x", "y", "z")
	for _, options := range []index.DomainAlignmentOptions{index.AlignAll, index.AlignTranslate | index.AlignBroadcast} {
		matches, err := index.AlignDimensionsTo(unlabeled, labeled, options)
		require.NoError(t, err)
		assert.Equal(t, []int{0, u, 2}, matches)
	}

	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "z")
	target := domain(t, []int64{4, 0, 6}, []int64{8, 4, 12})
	for _, options := range []index.DomainAlignmentOptions{index.AlignAll, index.AlignTranslate | index.AlignBroadcast} {
		matches, err := index.AlignDimensionsTo(source, target, options)
		require.NoError(t, err)
		assert.Equal(t, []int{0, u, 2}, matches)
	}
}

func TestAlignDimensionsTo_AllLabeled(t *testing.T) {
	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "z")
	target := domain(t, []int64{6, 4, 0}, []int64{12, 8, 4}, "z", "x", "y")
	matches, err := index.AlignDimensionsTo(source, target, index.AlignAll)
	require.NoError(t, err)
	assert.Equal(t, []int{1, u, 0}, matches)
}

func TestAlignDimensionsTo_AllLabeledPermuteOnly(t *testing.T) {
	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "z")
	target := domain(t, []int64{4, 3, 5}, []int64{10, 7, 6}, "z", "x", "y")

	for _, options := range []index.DomainAlignmentOptions{
		index.AlignPermute, index.AlignPermute | index.AlignTranslate,
		index.AlignPermute | index.AlignBroadcast, index.AlignAll,
	} {
		matches, err := index.AlignDimensionsTo(source, target, options)
		require.NoError(t, err, options)
		assert.Equal(t, []int{1, 2, 0}, matches, options)
	}

	for _, options := range []index.DomainAlignmentOptions{
		index.AlignNone, index.AlignTranslate, index.AlignBroadcast,
		index.AlignTranslate | index.AlignBroadcast,
	} {
		_, err := index.AlignDimensionsTo(source, target, options)
		require.ErrorIs(t, err, index.ErrDimensionIntervalMismatch, options)
		require.ErrorContains(t, err, `Mismatch between source dimension 0 {"x": [3, 7)} and target dimension 0 {"z": [4, 10)}`)
	}
}

func TestAlignDimensionsTo_PartiallyLabeled(t *testing.T) {
	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "")
	target := domain(t, []int64{0, 6, 4, 0}, []int64{10, 12, 8, 4}, "", "", "x", "y")

	matches, err := index.AlignDimensionsTo(source, target, index.AlignAll)
	require.NoError(t, err)
	assert.Equal(t, []int{2, u, 1}, matches)

	_, err = index.AlignDimensionsTo(source, target, index.AlignNone)
	require.ErrorIs(t, err, index.ErrRankMismatchRequiresBroadcast)
	require.ErrorContains(t, err, "Aligning source domain of rank 3 to target domain of rank 4 requires broadcasting")
}

func TestAlignDimensionsTo_BroadcastOnly(t *testing.T) {
	source := domain(t, []int64{2, 3}, []int64{5, 6})
	target := domain(t, []int64{1, 2, 3}, []int64{4, 5, 6})

	for _, options := range []index.DomainAlignmentOptions{
		index.AlignBroadcast, index.AlignBroadcast | index.AlignTranslate,
		index.AlignBroadcast | index.AlignPermute, index.AlignAll,
	} {
		matches, err := index.AlignDimensionsTo(source, target, options)
		require.NoError(t, err, options)
		assert.Equal(t, []int{1, 2}, matches, options)
	}

	for _, options := range []index.DomainAlignmentOptions{
		index.AlignNone, index.AlignPermute, index.AlignTranslate,
		index.AlignPermute | index.AlignTranslate,
	} {
		_, err := index.AlignDimensionsTo(source, target, options)
		require.ErrorIs(t, err, index.ErrRankMismatchRequiresBroadcast, options)
		require.ErrorContains(t, err, "Aligning source domain of rank 2 to target domain of rank 3 requires broadcasting")
	}
}

func TestAlignDimensionsTo_SourceRankExceedsTarget(t *testing.T) {
	// Without broadcasting the rank check fires before any interval check.
	source := domain(t, []int64{0, 0, 0}, []int64{1, 4, 4})
	target := domain(t, []int64{0, 0}, []int64{4, 4})
	for _, options := range []index.DomainAlignmentOptions{index.AlignNone, index.AlignPermute | index.AlignTranslate} {
		_, err := index.AlignDimensionsTo(source, target, options)
		require.ErrorIs(t, err, index.ErrRankMismatchRequiresBroadcast)
	}
	matches, err := index.AlignDimensionsTo(source, target, index.AlignBroadcast)
	require.NoError(t, err)
	assert.Equal(t, []int{u, 0, 1}, matches)
}

func TestAlignDimensionsTo_PermuteAndBroadcast(t *testing.T) {
	source := domain(t, []int64{2, 3}, []int64{5, 4}, "x", "y")
	target := domain(t, []int64{2, 5}, []int64{5, 10}, "x", "z")

	for _, options := range []index.DomainAlignmentOptions{index.AlignPermute | index.AlignBroadcast, index.AlignAll} {
		matches, err := index.AlignDimensionsTo(source, target, options)
		require.NoError(t, err)
		assert.Equal(t, []int{0, u}, matches)
	}

	for _, options := range []index.DomainAlignmentOptions{index.AlignPermute, index.AlignPermute | index.AlignTranslate} {
		_, err := index.AlignDimensionsTo(source, target, options)
		require.ErrorIs(t, err, index.ErrUnmatchedNonBroadcastableDimension)
		require.ErrorContains(t, err, `Unmatched source dimension 1 {"y": [3, 4)}`)
	}
}

func TestAlignDimensionsTo_UnmatchedUnlabeledSourceDimension(t *testing.T) {
	source := domain(t, []int64{3, 5, 7, 4}, []int64{7, 9, 8, 10}, "x", "y", "", "")
	target := domain(t, []int64{0, 4, 0}, []int64{6, 8, 4}, "", "x", "y")
	matches, err := index.AlignDimensionsTo(source, target, index.AlignAll)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, u, 0}, matches)
}

func TestAlignDimensionsTo_MismatchedLabeled(t *testing.T) {
	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "z")
	target := domain(t, []int64{6, 4, 0}, []int64{12, 8, 4}, "z", "w", "y")
	_, err := index.AlignDimensionsTo(source, target, index.AlignAll)
	require.ErrorIs(t, err, index.ErrUnmatchedNonBroadcastableDimension)
	require.ErrorContains(t, err, `Unmatched source dimension 0 {"x": [3, 7)} does not have a size of 1`)

	_, err = index.AlignDomainTo(source, target)
	require.ErrorIs(t, err, index.ErrInvalidArgument)
}

func TestAlignDimensionsTo_MismatchedSize(t *testing.T) {
	source := domain(t, []int64{3, 5, 4}, []int64{7, 7, 10}, "x", "y", "z")
	target := domain(t, []int64{6, 4, 0}, []int64{12, 8, 4}, "z", "x", "y")
	_, err := index.AlignDimensionsTo(source, target, index.AlignAll)
	require.ErrorIs(t, err, index.ErrDimensionIntervalMismatch)
	require.ErrorContains(t, err, `Mismatch between source dimension 1 {"y": [5, 7)} and target dimension 2 {"y": [0, 4)}`)

	source = domain(t, []int64{3, 5, 4}, []int64{7, 7, 10})
	target = domain(t, []int64{4, 0, 6}, []int64{8, 4, 12})
	_, err = index.AlignDimensionsTo(source, target, index.AlignAll)
	require.ErrorIs(t, err, index.ErrDimensionIntervalMismatch)
	require.ErrorContains(t, err, "Mismatch between source dimension 1 {[5, 7)} and target dimension 1 {[0, 4)}")
}

func TestAlignDomainTo_PartiallyLabeled(t *testing.T) {
	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10}, "x", "y", "")
	target := domain(t, []int64{0, 6, 4, 0}, []int64{10, 12, 8, 4}, "", "", "x", "y")

	want, err := index.NewTransform(target,
		index.SingleInputDimensionMap(2, -1, 1),
		index.ConstantMap(5),
		index.SingleInputDimensionMap(1, -2, 1),
	)
	require.NoError(t, err)

	got, err := index.AlignDomainTo(source, target)
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "got %v", got)
}

func TestAlignDomainTo_MapsTargetOriginToSourceOrigin(t *testing.T) {
	source := domain(t, []int64{3, 5, 4}, []int64{7, 6, 10})
	target := domain(t, []int64{2, 0, 6}, []int64{6, 4, 12})
	matches, err := index.AlignDimensionsTo(source, target, index.AlignAll)
	require.NoError(t, err)

	alignment, err := index.AlignDomainTo(source, target)
	require.NoError(t, err)
	require.Equal(t, 3, alignment.InputRank())
	require.Equal(t, 3, alignment.OutputRank())

	out, err := alignment.Apply(target.Origin())
	require.NoError(t, err)
	for s, tdim := range matches {
		if tdim == u {
			assert.Equal(t, source.Dim(s).Origin(), out[s], "broadcast dimension %d", s)
			continue
		}
		assert.Equal(t, source.Dim(s).Origin(), out[s], "dimension %d", s)
	}

	// Every point of the target lands inside the source.
	last := []int64{5, 3, 11}
	out, err = alignment.Apply(last)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 5, 9}, out)
	assert.True(t, source.Contains(out))
}
