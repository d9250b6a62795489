package extractor

// Window holds the search radius, in lines around the anchor line, for each
// field looked up next to a code.
type Window struct {
	Amount int
	Date   int
	Sender int
}

// DefaultWindow is ±5 lines for the amount, ±3 for the date and ±2 for the
// sender name.
var DefaultWindow = Window{Amount: 5, Date: 3, Sender: 2}

// windowLines returns the indexes of lines within radius of anchor, nearest
// first, earlier line first on ties, clipped to [0, n).
func windowLines(anchor, radius, n int) []int {
	if anchor < 0 || anchor >= n {
		return nil
	}
	idx := make([]int, 0, 2*radius+1)
	idx = append(idx, anchor)
	for d := 1; d <= radius; d++ {
		if anchor-d >= 0 {
			idx = append(idx, anchor-d)
		}
		if anchor+d < n {
			idx = append(idx, anchor+d)
		}
	}
	return idx
}

// searchWindow applies find to every line within radius of anchor, nearest
// first, and returns the first hit. lines is never modified.
func searchWindow[T any](lines []string, anchor, radius int, find func(i int, line string) (T, bool)) (T, bool) {
	for _, i := range windowLines(anchor, radius, len(lines)) {
		if v, ok := find(i, lines[i]); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
