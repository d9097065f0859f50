package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/newsdigest/internal/extract"
)

var (
	// ErrDecode is wrapped when a body is not valid base64url.
	ErrDecode = errors.New("malformed base64url body")

	// ErrEncoding is wrapped when decoded body bytes are not UTF-8.
	ErrEncoding = errors.New("body is not valid UTF-8")
)

// BodyKind tells how a Body was obtained.
type BodyKind string

const (
	// KindRaw is a single-part payload decoded as is.
	KindRaw BodyKind = "raw"
	// KindPlain is the first text/plain sub-part.
	KindPlain BodyKind = "plain"
	// KindHTML is the first text/html sub-part, tag-stripped.
	KindHTML BodyKind = "html"
	// KindNone means the payload had sub-parts but none was plain or HTML.
	KindNone BodyKind = "none"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// Body is a decoded message body.
type Body struct {
	Kind BodyKind

	// Subject is the message's Subject header. DecodeBody leaves it empty.
	Subject string

	// Text is the human-readable body: the decoded payload or plain part,
	// or the tag-stripped text of the HTML part.
	Text string

	// Raw is the decoded payload behind Text before any tag stripping.
	Raw string

	// HTML is the decoded source of the first text/html sub-part, or of a
	// single-part text/html payload. It is set even when a plain part won,
	// so article extraction can run on newsletters that send both.
	HTML string
}

// Markup returns the text articles should be extracted from: the HTML
// source when one exists, otherwise Raw.
func (b Body) Markup() string {
	if b.HTML != "" {
		return b.HTML
	}
	return b.Raw
}

// DecodeBody selects and decodes the human-readable body of payload.
//
// A payload without sub-parts is decoded directly. Otherwise the first
// text/plain sub-part wins, then the first text/html sub-part whose text
// is returned with tags stripped. Only direct sub-parts are considered.
// Payloads with neither yield KindNone and no error.
func DecodeBody(payload *gmail.MessagePart) (Body, error) {
	if payload == nil {
		return Body{Kind: KindNone}, nil
	}

	if len(payload.Parts) == 0 {
		text, err := decodePart(payload)
		if err != nil {
			return Body{}, err
		}
		b := Body{Kind: KindRaw, Text: text, Raw: text}
		if isMime(payload.MimeType, mimeTextHTML) {
			b.HTML = text
		}
		return b, nil
	}

	plain := firstPart(payload.Parts, mimeTextPlain)
	htmlPart := firstPart(payload.Parts, mimeTextHTML)

	if plain != nil {
		text, err := decodePart(plain)
		if err != nil {
			return Body{}, err
		}
		b := Body{Kind: KindPlain, Text: text, Raw: text}
		if htmlPart != nil {
			// Best effort: the plain part is the result.
			if source, err := decodePart(htmlPart); err == nil {
				b.HTML = source
			}
		}
		return b, nil
	}

	if htmlPart != nil {
		source, err := decodePart(htmlPart)
		if err != nil {
			return Body{}, err
		}
		return Body{Kind: KindHTML, Text: extract.StripTags(source), Raw: source, HTML: source}, nil
	}

	return Body{Kind: KindNone}, nil
}

func firstPart(parts []*gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, p := range parts {
		if p != nil && isMime(p.MimeType, mimeType) {
			return p
		}
	}
	return nil
}

func isMime(got, want string) bool {
	return strings.EqualFold(strings.TrimSpace(got), want)
}

func decodePart(part *gmail.MessagePart) (string, error) {
	var data string
	if part.Body != nil {
		data = part.Body.Data
	}
	return DecodeData(data)
}

// DecodeData decodes Gmail base64url body data, padded or not, and checks
// that the result is UTF-8.
func DecodeData(data string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if !utf8.Valid(raw) {
		return "", ErrEncoding
	}
	return string(raw), nil
}
