package rasterizer

// PageImage is one rendered page.
type PageImage struct {
	Index    int    `json:"index"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime_type"`
	Blank    bool   `json:"blank,omitempty"`
	Failed   bool   `json:"failed,omitempty"`
	Data     []byte `json:"-"`
}

// DataURI returns the page as a browser-displayable image source.
func (p PageImage) DataURI() string {
	return DataURI(p.MimeType, p.Data)
}

// PageSet is the ordered output of one rasterization. It is never mutated
// after construction; a new load builds a new PageSet.
type PageSet struct {
	Pages       []PageImage `json:"pages"`
	SourcePages int         `json:"source_pages"`
	Padded      bool        `json:"padded"`
	Failed      []int       `json:"failed,omitempty"`
}

// NewPageSet wraps pages rendered from a document of sourcePages pages.
func NewPageSet(pages []PageImage, sourcePages int) *PageSet {
	set := &PageSet{Pages: pages, SourcePages: sourcePages}
	for _, p := range pages {
		if p.Index >= sourcePages {
			set.Padded = true
		}
		if p.Failed {
			set.Failed = append(set.Failed, p.Index)
		}
	}
	return set
}

// TotalCount is the number of pages in the set, padding included.
// A nil set is empty.
func (s *PageSet) TotalCount() int {
	if s == nil {
		return 0
	}
	return len(s.Pages)
}

// Page returns the page at index.
func (s *PageSet) Page(index int) (PageImage, bool) {
	if s == nil || index < 0 || index >= len(s.Pages) {
		return PageImage{}, false
	}
	return s.Pages[index], true
}
