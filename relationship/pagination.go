package relationship

import "github.com/kishek/graph-store/errs"

// Page describes the forward/backward cursor pagination arguments shared
// by ListRelationship and BatchList.
type Page struct {
	First  *int
	Last   *int
	Before *string
	After  *string
}

// Result is a pagination slice of a full, unordered (insertion-order)
// neighbor set.
type Result struct {
	Items     []string
	HasBefore bool
	HasAfter  bool
}

// paginate implements spec §4.4's pagination algorithm over the full,
// unordered neighbor slice all, as produced by the set iterator.
func paginate(all []string, p Page) (Result, error) {
	if p.First != nil && p.Before != nil {
		return Result{}, errs.New(errs.BadRequest, "first and before are mutually exclusive")
	}
	if p.Last != nil && p.After != nil {
		return Result{}, errs.New(errs.BadRequest, "last and after are mutually exclusive")
	}
	if p.First != nil && p.Last != nil {
		return Result{}, errs.New(errs.BadRequest, "first and last are mutually exclusive")
	}

	total := len(all)
	start := 0
	end := total - 1

	if p.After != nil {
		idx := indexOf(all, *p.After)
		if idx < 0 {
			return Result{}, errs.New(errs.NotFound, "cursor %q not found", *p.After)
		}
		start = idx + 1
	}
	if p.Before != nil {
		idx := indexOf(all, *p.Before)
		if idx < 0 {
			return Result{}, errs.New(errs.NotFound, "cursor %q not found", *p.Before)
		}
		end = idx - 1
	}

	// first/last narrow the window from the respective edge; the
	// resulting start/end positions (not the pre-trim bounds) are what
	// hasBefore/hasAfter are computed from, since a trim can itself cut
	// off further items in that direction.
	if p.First != nil {
		if newEnd := start + *p.First - 1; newEnd < end {
			end = newEnd
		}
	}
	if p.Last != nil {
		if newStart := end - *p.Last + 1; newStart > start {
			start = newStart
		}
	}

	var window []string
	if start <= end {
		window = append([]string(nil), all[clamp(start, 0, total):clampEnd(end, total)]...)
	}

	return Result{
		Items:     window,
		HasBefore: start > 0,
		HasAfter:  end < total-1,
	}, nil
}

func indexOf(all []string, target string) int {
	for i, v := range all {
		if v == target {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampEnd(end, length int) int {
	if end+1 > length {
		return length
	}
	if end+1 < 0 {
		return 0
	}
	return end + 1
}
