package aggregate

import (
	"fmt"
)

// mergeInto merges source partial aggregate into dest. COUNT, SUM, AVG and
// the distinct sets merge associatively and commutatively; TOP_K does so
// only under a total comparator (see TopKBuffer).
func mergeInto(dest, src *PartialAggregate) error {
	if dest.Type != src.Type {
		return fmt.Errorf("aggregate: cannot merge %s into %s", src.Type, dest.Type)
	}
	if !src.IsSet {
		return nil
	}

	switch dest.Type {
	case AggCount:
		dest.Count += src.Count

	case AggSum, AggAvg:
		dest.Sum = dest.Sum.Add(src.Sum)
		dest.Count += src.Count

	case AggCountDistinct, AggConcat:
		for k, v := range src.Distinct {
			dest.Distinct[k] = v
		}

	case AggTopK:
		dest.TopK.Merge(src.TopK)

	case AggApproxDistinct:
		if err := dest.Sketch.Merge(src.Sketch); err != nil {
			return err
		}
	}

	dest.IsSet = true
	return nil
}

// MergePartials combines multiple PartialAggregate values (one per partition)
// into a single new PartialAggregate, leaving the inputs untouched.
func MergePartials(partials []*PartialAggregate) (*PartialAggregate, error) {
	if len(partials) == 0 {
		return nil, fmt.Errorf("aggregate: nothing to merge")
	}
	merged := partials[0].Clone()
	for _, p := range partials[1:] {
		if err := mergeInto(merged, p); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// MergeTables merges partition-local tables into a new table. Inputs are
// merged in the order given and are not modified.
func MergeTables[R any](tables ...*Table[R]) (*Table[R], error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("aggregate: no tables to merge")
	}
	merged := tables[0].emptyCopy()
	for _, t := range tables {
		if err := merged.Merge(t); err != nil {
			return nil, err
		}
	}
	return merged, nil
}
