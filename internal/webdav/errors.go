package webdav

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed indicates a transport failure or non-success response.
	ErrRequestFailed = errors.New("webdav request failed")
	// ErrParseFailed indicates a multistatus document that is not well-formed XML.
	ErrParseFailed = errors.New("multistatus parse failed")
	// ErrSizeMalformed indicates a getcontentlength value that is not a
	// non-negative integer.
	ErrSizeMalformed = errors.New("malformed content length")
	// ErrTimestampMalformed indicates a getlastmodified value that is not an
	// RFC2822 date.
	ErrTimestampMalformed = errors.New("malformed modification timestamp")
	// ErrNonUnicodePath indicates a href that does not decode to valid UTF-8.
	ErrNonUnicodePath = errors.New("path is not valid unicode")
)

// MissingFieldError reports a response element lacking a required tag, or a
// required tag with no text.
type MissingFieldError struct {
	Tag string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("multistatus response missing required field %q", e.Tag)
}

// IsMissingField reports whether err is a MissingFieldError.
func IsMissingField(err error) bool {
	var mf *MissingFieldError
	return errors.As(err, &mf)
}
