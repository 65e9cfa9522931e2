// Package merge folds synthetic results from independently-computed
// model replicas back into one system.
package merge

import (
	"fmt"

	"github.com/me/stardis/pkg/model"
)

// Synthetics folds the synthetic datasets of each replica into primary,
// in order, and returns primary. The walk is lockstep over the dataset
// traversal order established by the primary; for every merge-eligible
// column the replica's values are appended element-by-element onto the
// primary's series.
//
// The merge is destructive on the primary and order-dependent in
// representation: it deliberately avoids copying large result sets, so
// the returned *System is the same value that was passed in. Scalars
// and series outside Columns are left untouched.
//
// A structural mismatch (dataset count, reference order, kind, or
// column membership) returns a MergeError before anything is touched;
// no partial merge is left behind.
func Synthetics(primary *model.System, replicas ...*model.System) (*model.System, error) {
	base := primary.WalkSyn()

	// Validate all replicas against the primary before mutating it.
	for i, rep := range replicas {
		if err := checkStructure(base, rep.WalkSyn(), i); err != nil {
			return nil, err
		}
	}

	for _, rep := range replicas {
		sets := rep.WalkSyn()
		for j, dst := range base {
			src := sets[j]
			for key, values := range src.Series {
				if !dst.HasColumn(key) {
					continue
				}
				dst.Series[key] = append(dst.Series[key], values...)
			}
		}
	}
	return primary, nil
}

func checkStructure(base, sets []*model.DataSet, replica int) error {
	if len(sets) != len(base) {
		return &model.MergeError{Reason: fmt.Sprintf(
			"replica %d has %d datasets, primary has %d", replica, len(sets), len(base))}
	}
	for j, dst := range base {
		src := sets[j]
		if src.Ref != dst.Ref || src.Kind != dst.Kind {
			return &model.MergeError{Reason: fmt.Sprintf(
				"replica %d dataset %d is %s/%s, primary has %s/%s",
				replica, j, src.Kind, src.Ref, dst.Kind, dst.Ref)}
		}
		if !sameColumns(src.Columns, dst.Columns) {
			return &model.MergeError{Reason: fmt.Sprintf(
				"replica %d dataset %s column membership differs", replica, src.Ref)}
		}
		for _, col := range dst.Columns {
			if _, ok := src.Series[col]; !ok {
				return &model.MergeError{Reason: fmt.Sprintf(
					"replica %d dataset %s missing series %q", replica, src.Ref, col)}
			}
		}
	}
	return nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
