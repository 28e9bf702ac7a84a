package pagination

import "fmt"

// Label renders the human-readable position shown under the flipbook.
//
// Single-page: "3 of 10". Spread: "Pages 3-4 of 10", or "Page 10 of 10"
// when only one page is visible. With cover, index 0 reads "Cover" and the
// remaining pages are numbered from 1.
func Label(s State, cover bool) string {
	if s.TotalCount == 0 {
		return "0 of 0"
	}

	total := s.TotalCount
	first := s.CurrentIndex + 1
	if cover {
		if s.CurrentIndex == 0 {
			return "Cover"
		}
		total--
		first--
	}

	if s.Step < 2 {
		return fmt.Sprintf("%d of %d", first, total)
	}

	last := min(first+s.Step-1, total)
	if last <= first {
		return fmt.Sprintf("Page %d of %d", first, total)
	}
	return fmt.Sprintf("Pages %d-%d of %d", first, last, total)
}
