package domain

import "time"

// Book is the full reading payload for a single title. LocalID is a
// store-assigned rowid and never leaves the device; UniqueID is a
// content hash shared with the remote library and is the only
// identifier used for sync and cross-device references.
type Book struct {
	LocalID  int64  `json:"localId"`
	UniqueID string `json:"uniqueId"`

	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`

	// Reading position. CurrChars counts characters of visible text
	// from the start of the book, CurrParagraph is the paragraph index
	// within the current section.
	TotalChars    int `json:"totalChars"`
	CurrChars     int `json:"currChars"`
	CurrParagraph int `json:"currParagraph"`

	Bookmarks []Bookmark `json:"bookmarks,omitempty"`

	Sections    []Section    `json:"sections,omitempty"`
	Nav         []NavPoint   `json:"nav,omitempty"`
	Images      []ImageAsset `json:"images,omitempty"`
	Stylesheets []Stylesheet `json:"stylesheets,omitempty"`

	Timestamps
}

// Progress returns the fraction of the book read, in [0, 1].
func (b *Book) Progress() float64 {
	if b.TotalChars <= 0 {
		return 0
	}
	p := float64(b.CurrChars) / float64(b.TotalChars)
	if p > 1 {
		return 1
	}
	return p
}

// Bookmark marks a paragraph the reader wants to return to. Content
// holds a short text excerpt for display in the bookmark list.
type Bookmark struct {
	ParagraphID int       `json:"paragraphId"`
	SectionName string    `json:"sectionName,omitempty"`
	Content     string    `json:"content,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Section is one spine entry of the book, stored as sanitized HTML.
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html"`
	// Chars is the visible-text length of this section, used to map
	// a global character offset to a section.
	Chars int `json:"chars"`
}

// NavPoint is a table-of-contents entry pointing into a section.
type NavPoint struct {
	Title     string     `json:"title"`
	SectionID string     `json:"sectionId"`
	Children  []NavPoint `json:"children,omitempty"`
}

// ImageAsset is an embedded image, carried as raw bytes so the whole
// book round-trips through the binary codec as one document.
type ImageAsset struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data"`
}

// Stylesheet is an embedded CSS file referenced by sections.
type Stylesheet struct {
	Name string `json:"name"`
	CSS  string `json:"css"`
}
