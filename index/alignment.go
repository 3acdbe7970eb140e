package index

import (
	"strings"

	"github.com/pkg/errors"
)

// DomainAlignmentOptions selects which adjustments AlignDimensionsTo may
// make when matching a source domain to a target domain.
type DomainAlignmentOptions uint8

const (
	// AlignNone matches dimensions by position and requires identical
	// intervals.
	AlignNone DomainAlignmentOptions = 0

	// AlignPermute matches labeled dimensions by label instead of position.
	AlignPermute DomainAlignmentOptions = 1 << 0

	// AlignTranslate allows matched dimensions to differ in origin as long
	// as they have the same extent.
	AlignTranslate DomainAlignmentOptions = 1 << 1

	// AlignBroadcast allows source dimensions of extent 1 to stay unmatched,
	// and the two domains to differ in rank.
	AlignBroadcast DomainAlignmentOptions = 1 << 2

	AlignAll = AlignPermute | AlignTranslate | AlignBroadcast
)

// Unmatched marks a source dimension that is broadcast rather than matched
// to a target dimension.
const Unmatched = -1

func (o DomainAlignmentOptions) String() string {
	if o == AlignNone {
		return "none"
	}
	var parts []string
	if o&AlignPermute != 0 {
		parts = append(parts, "permute")
	}
	if o&AlignTranslate != 0 {
		parts = append(parts, "translate")
	}
	if o&AlignBroadcast != 0 {
		parts = append(parts, "broadcast")
	}
	return strings.Join(parts, "|")
}

// AlignDimensionsTo matches the dimensions of source to those of target.
//
// The returned slice has one entry per source dimension: the index of the
// matched target dimension, or Unmatched for a broadcast dimension.
//
// Dimensions are paired by label when options includes AlignPermute and both
// domains carry labels: a labeled source dimension pairs with the target
// dimension of the same label, and unlabeled source dimensions pair with
// unlabeled target dimensions starting from the last. Otherwise dimensions
// are paired by position, aligned at the last dimension.
//
// A pair whose intervals disagree (or whose extents disagree, with
// AlignTranslate) is an error unless AlignBroadcast is set and the source
// dimension has extent 1, in which case that dimension becomes unmatched.
// Unmatched source dimensions require AlignBroadcast and extent 1. Unpaired
// target dimensions are always allowed.
func AlignDimensionsTo(source, target Domain, options DomainAlignmentOptions) ([]int, error) {
	sourceRank, targetRank := source.Rank(), target.Rank()
	if options&AlignBroadcast == 0 && sourceRank != targetRank {
		return nil, errors.Wrapf(ErrRankMismatchRequiresBroadcast,
			"Aligning source domain of rank %d to target domain of rank %d requires broadcasting", sourceRank, targetRank)
	}

	matches := make([]int, sourceRank)
	if options&AlignPermute == 0 || !source.Labeled() || !target.Labeled() {
		matchPositional(matches, targetRank)
	} else {
		matchLabeled(matches, source, target)
	}

	for i, j := range matches {
		src := source.Dim(i)
		if j == Unmatched {
			if options&AlignBroadcast == 0 {
				return nil, errors.Wrapf(ErrUnmatchedNonBroadcastableDimension,
					"Unmatched source dimension %d %v", i, src)
			}
			if src.Size() != 1 {
				return nil, errors.Wrapf(ErrUnmatchedNonBroadcastableDimension,
					"Unmatched source dimension %d %v does not have a size of 1", i, src)
			}
			continue
		}
		dst := target.Dim(j)
		var mismatch bool
		if options&AlignTranslate != 0 {
			mismatch = src.Size() != dst.Size()
		} else {
			mismatch = src.Interval != dst.Interval
		}
		if !mismatch {
			continue
		}
		if options&AlignBroadcast == 0 || src.Size() != 1 {
			return nil, errors.Wrapf(ErrDimensionIntervalMismatch,
				"Mismatch between source dimension %d %v and target dimension %d %v", i, src, j, dst)
		}
		matches[i] = Unmatched
	}
	return matches, nil
}

// matchPositional pairs trailing dimensions.
func matchPositional(matches []int, targetRank int) {
	sourceRank := len(matches)
	matchRank := min(sourceRank, targetRank)
	sourceStart, targetStart := sourceRank-matchRank, targetRank-matchRank
	for i := range matches {
		if i < sourceStart {
			matches[i] = Unmatched
		} else {
			matches[i] = targetStart + i - sourceStart
		}
	}
}

func matchLabeled(matches []int, source, target Domain) {
	byLabel := make(map[string]int, target.Rank())
	for j := 0; j < target.Rank(); j++ {
		if label := target.Dim(j).Label; label != "" {
			byLabel[label] = j
		}
	}
	nextUnlabeled := target.Rank() - 1
	for i := source.Rank() - 1; i >= 0; i-- {
		label := source.Dim(i).Label
		if label != "" {
			if j, found := byLabel[label]; found {
				matches[i] = j
			} else {
				matches[i] = Unmatched
			}
			continue
		}
		for nextUnlabeled >= 0 && target.Dim(nextUnlabeled).Label != "" {
			nextUnlabeled--
		}
		matches[i] = nextUnlabeled
		if nextUnlabeled >= 0 {
			nextUnlabeled--
		}
	}
}

// AlignDomainTo returns a transform from target into source coordinates,
// aligning with AlignAll. Matched dimensions translate by the difference of
// origins; broadcast source dimensions map to their single index.
func AlignDomainTo(source, target Domain) (Transform, error) {
	matches, err := AlignDimensionsTo(source, target, AlignAll)
	if err != nil {
		return Transform{}, err
	}
	outputs := make([]OutputIndexMap, len(matches))
	for i, j := range matches {
		origin := source.Dim(i).Origin()
		if j == Unmatched {
			outputs[i] = ConstantMap(origin)
			continue
		}
		outputs[i] = SingleInputDimensionMap(j, origin-target.Dim(j).Origin(), 1)
	}
	return NewTransform(target, outputs...)
}
