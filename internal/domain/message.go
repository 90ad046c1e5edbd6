package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// Message is the platform-agnostic form of one relayed chat message.
// It is immutable once constructed.
type Message struct {
	content     string
	attachments []*Attachment
	author      *Author
}

// NewMessage is the canonical constructor. Blank content is treated as
// absent; at least one of content or attachments must remain.
func NewMessage(content string, attachments []*Attachment, author *Author) (*Message, error) {
	if author == nil {
		return nil, ErrNoAuthor
	}
	if strings.TrimSpace(content) == "" {
		content = ""
	}

	copied := make([]*Attachment, 0, len(attachments))
	for _, a := range attachments {
		if a != nil {
			copied = append(copied, a)
		}
	}
	if content == "" && len(copied) == 0 {
		return nil, ErrEmptyMessage
	}

	return &Message{
		content:     content,
		attachments: copied,
		author:      author,
	}, nil
}

// NewTextMessage builds a content-only message.
func NewTextMessage(content string, author *Author) (*Message, error) {
	return NewMessage(content, nil, author)
}

// NewAttachmentMessage builds a message carrying only attachments.
func NewAttachmentMessage(author *Author, attachments ...*Attachment) (*Message, error) {
	return NewMessage("", attachments, author)
}

// NewTextAttachmentMessage builds a message carrying text and attachments.
func NewTextAttachmentMessage(content string, author *Author, attachments ...*Attachment) (*Message, error) {
	return NewMessage(content, attachments, author)
}

// Content returns the text and whether it is present.
func (m *Message) Content() (string, bool) {
	return m.content, m.content != ""
}

// Attachments returns a copy of the attachment list, in order.
func (m *Message) Attachments() []*Attachment {
	out := make([]*Attachment, len(m.attachments))
	copy(out, m.attachments)
	return out
}

func (m *Message) Author() *Author { return m.author }

func (m *Message) String() string {
	return fmt.Sprintf("Message{author=%q content_len=%d attachments=%d}",
		m.author.name, len(m.content), len(m.attachments))
}

// AttachmentSource lists every way an attachment's bytes can be located.
// URI or Stream (or both) must be set.
type AttachmentSource struct {
	Filename      string
	URI           string
	Stream        Loader
	PreviewURI    string
	PreviewStream Loader
}

// Attachment is one file or media item of a Message.
type Attachment struct {
	filename      string
	extension     string
	uri           string
	stream        *Content
	previewURI    string
	previewStream *Content
}

// NewAttachment is the canonical constructor; the other constructors are
// shorthands for it.
func NewAttachment(src AttachmentSource) (*Attachment, error) {
	if src.Filename == "" {
		return nil, ErrEmptyFilename
	}
	if src.URI == "" && src.Stream == nil {
		return nil, fmt.Errorf("attachment %q: %w", src.Filename, ErrNoContentSource)
	}
	if err := validateURI(src.URI); err != nil {
		return nil, fmt.Errorf("attachment %q: %w", src.Filename, err)
	}
	if err := validateURI(src.PreviewURI); err != nil {
		return nil, fmt.Errorf("attachment %q preview: %w", src.Filename, err)
	}

	return &Attachment{
		filename:      src.Filename,
		extension:     FileExtension(src.Filename),
		uri:           src.URI,
		stream:        NewContent(src.Stream),
		previewURI:    src.PreviewURI,
		previewStream: NewContent(src.PreviewStream),
	}, nil
}

// NewURIAttachment builds an attachment reachable only by reference.
func NewURIAttachment(filename, uri string) (*Attachment, error) {
	return NewAttachment(AttachmentSource{Filename: filename, URI: uri})
}

// NewPreviewedAttachment builds a URI attachment with a distinct preview.
func NewPreviewedAttachment(filename, uri, previewURI string) (*Attachment, error) {
	return NewAttachment(AttachmentSource{Filename: filename, URI: uri, PreviewURI: previewURI})
}

// NewStreamAttachment builds an attachment whose bytes come from load.
func NewStreamAttachment(filename string, load Loader) (*Attachment, error) {
	return NewAttachment(AttachmentSource{Filename: filename, Stream: load})
}

// NewURIStreamAttachment builds an attachment with both a reference and a
// loader for its bytes.
func NewURIStreamAttachment(filename, uri string, load Loader) (*Attachment, error) {
	return NewAttachment(AttachmentSource{Filename: filename, URI: uri, Stream: load})
}

func (a *Attachment) Filename() string  { return a.filename }
func (a *Attachment) Extension() string { return a.extension }

func (a *Attachment) URI() (string, bool) { return a.uri, a.uri != "" }

// Stream returns the lazy content, or nil when the attachment has none.
func (a *Attachment) Stream() *Content { return a.stream }

func (a *Attachment) PreviewURI() (string, bool) { return a.previewURI, a.previewURI != "" }

// PreviewStream returns the lazy preview content, or nil.
func (a *Attachment) PreviewStream() *Content { return a.previewStream }

// Author identifies who sent a Message.
type Author struct {
	name   string
	uri    string
	stream *Content
}

// NewAuthor builds an author whose avatar is a URI.
func NewAuthor(name, avatarURI string) (*Author, error) {
	return newAuthor(name, avatarURI, nil)
}

// NewStreamAuthor builds an author whose avatar bytes come from load.
func NewStreamAuthor(name string, load Loader) (*Author, error) {
	return newAuthor(name, "", load)
}

func newAuthor(name, uri string, load Loader) (*Author, error) {
	if uri == "" && load == nil {
		return nil, fmt.Errorf("author %q avatar: %w", name, ErrNoContentSource)
	}
	if err := validateURI(uri); err != nil {
		return nil, fmt.Errorf("author %q avatar: %w", name, err)
	}
	return &Author{name: name, uri: uri, stream: NewContent(load)}, nil
}

func (a *Author) Name() string { return a.name }

func (a *Author) AvatarURI() (string, bool) { return a.uri, a.uri != "" }

// AvatarStream returns the lazy avatar content, or nil.
func (a *Author) AvatarStream() *Content { return a.stream }

// FileExtension returns the lower-cased suffix after the last '.' of
// filename, or "" when there is none.
func FileExtension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// validateURI accepts "" (absent) or an absolute URI with scheme and host.
func validateURI(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidURI, raw)
	}
	return nil
}
