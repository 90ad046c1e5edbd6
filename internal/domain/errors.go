package domain

import "errors"

// Construction errors. These indicate a programming error in an adapter.
var (
	ErrEmptyMessage    = errors.New("message has neither content nor attachments")
	ErrNoAuthor        = errors.New("message has no author")
	ErrEmptyFilename   = errors.New("attachment filename is empty")
	ErrNoContentSource = errors.New("neither uri nor stream is present")
	ErrInvalidURI      = errors.New("invalid uri")
)

// Conversion errors. A relay rejects the single offending event or
// attachment and moves on.
var (
	// ErrUnsupportedContent is returned for inbound content types that are
	// recognized but deliberately not relayed (location, sticker).
	ErrUnsupportedContent = errors.New("unsupported content")

	// ErrUnknownContent is returned for content or source variants with no
	// mapping at all.
	ErrUnknownContent = errors.New("unknown content")

	// ErrUnsupportedMedia is returned when an outbound platform has no
	// rendering for an attachment's extension.
	ErrUnsupportedMedia = errors.New("unsupported media type")

	// ErrMissingURI is returned when a platform needs an externally
	// fetchable URI and the attachment only carries a stream.
	ErrMissingURI = errors.New("attachment has no usable uri")
)
