package domain

// Citation points at the source location an answer statement came from.
type Citation struct {
	// Marker is the citation marker as it appears in the answer text.
	Marker int

	// DocumentTitle is the human-readable title of the cited document.
	DocumentTitle string

	// Page is the page the cited chunk starts on (0 if unknown).
	Page int

	// Section is the section label of the cited chunk, if any.
	Section string
}

// Answer is the generated response plus the citations it actually used.
type Answer struct {
	// Text is the generated answer.
	Text string

	// Citations lists the context markers referenced in Text, in marker
	// order, deduplicated by source location.
	Citations []Citation

	// Insufficient is true when the answer is the defined
	// insufficient-information response rather than a grounded answer.
	Insufficient bool
}
