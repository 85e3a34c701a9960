package webdav

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Multistatus decoding. Matching is by local tag name only: servers disagree
// on namespace prefixes (D:, d:, lp1:) but the DAV: vocabulary is fixed.

type msResponse struct {
	Href     *msHref      `xml:"href"`
	Propstat []msPropstat `xml:"propstat"`
	// Some minimal servers skip propstat and nest prop directly.
	Prop *msProp `xml:"prop"`
}

type msHref struct {
	Value string `xml:",chardata"`
}

type msPropstat struct {
	Prop   *msProp `xml:"prop"`
	Status string  `xml:"status"`
}

type msProp struct {
	Elements []msPropElement `xml:",any"`
}

type msPropElement struct {
	XMLName  xml.Name
	Text     string         `xml:",chardata"`
	Children []msNestedElem `xml:",any"`
}

type msNestedElem struct {
	XMLName xml.Name
}

// mtimeSentinel marks an accumulator whose getlastmodified has not been
// parsed yet. It never escapes into a finalized Prop.
const mtimeSentinel = int64(-1)

// rfc2822Layouts are the accepted getlastmodified formats. RFC4918 mandates
// the rfc1123-date production; lenient variants cover servers that do not
// zero-pad the day.
var rfc2822Layouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
}

// ParseMultistatus decodes a multistatus document into one Prop per response
// element, preserving document order.
func ParseMultistatus(r io.Reader) ([]Prop, error) {
	dec := xml.NewDecoder(r)
	var props []Prop
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "response" {
			continue
		}

		var resp msResponse
		if err := dec.DecodeElement(&resp, &start); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}

		prop, err := resp.finalize()
		if err != nil {
			return nil, err
		}
		props = append(props, prop)
	}
	return props, nil
}

// pickProp selects the prop block to read metadata from. Servers report
// found and not-found properties in separate propstat blocks; only the
// successful one carries usable values.
func (r *msResponse) pickProp() *msProp {
	for i := range r.Propstat {
		if strings.Contains(r.Propstat[i].Status, "200") && r.Propstat[i].Prop != nil {
			return r.Propstat[i].Prop
		}
	}
	for i := range r.Propstat {
		if r.Propstat[i].Prop != nil {
			return r.Propstat[i].Prop
		}
	}
	return r.Prop
}

// finalize converts a decoded response element into a Prop, enforcing that no
// accumulator default survives into the returned record.
func (r *msResponse) finalize() (Prop, error) {
	if r.Href == nil || strings.TrimSpace(r.Href.Value) == "" {
		return Prop{}, &MissingFieldError{Tag: "href"}
	}
	propBlock := r.pickProp()
	if propBlock == nil {
		return Prop{}, &MissingFieldError{Tag: "prop"}
	}

	relPath, err := decodeHref(r.Href.Value)
	if err != nil {
		return Prop{}, err
	}

	acc := Prop{Path: relPath, MTime: mtimeSentinel}

	for _, el := range propBlock.Elements {
		text := strings.TrimSpace(el.Text)
		switch el.XMLName.Local {
		case "getlastmodified":
			if text == "" {
				return Prop{}, &MissingFieldError{Tag: "getlastmodified"}
			}
			ts, err := parseRFC2822(text)
			if err != nil {
				return Prop{}, fmt.Errorf("%w: %q", ErrTimestampMalformed, text)
			}
			acc.MTime = ts
		case "resourcetype":
			if len(el.Children) > 0 {
				acc.Type = TypeCollection
			} else {
				acc.Type = TypeFile
			}
		case "getcontentlength":
			if text == "" {
				return Prop{}, &MissingFieldError{Tag: "getcontentlength"}
			}
			size, err := strconv.ParseInt(text, 10, 64)
			if err != nil || size < 0 {
				return Prop{}, fmt.Errorf("%w: %q", ErrSizeMalformed, text)
			}
			acc.Size = size
		case "getetag":
			if text == "" {
				return Prop{}, &MissingFieldError{Tag: "getetag"}
			}
			acc.Etag = strings.Trim(text, `"`)
		default:
			// Unrecognized property tags are non-fatal.
		}
	}

	// A record with accumulator defaults still in place must not escape.
	if acc.Type == TypeInvalid {
		return Prop{}, &MissingFieldError{Tag: "resourcetype"}
	}
	if acc.MTime == mtimeSentinel {
		return Prop{}, &MissingFieldError{Tag: "getlastmodified"}
	}

	return acc, nil
}

// decodeHref percent-decodes a href and validates it as UTF-8.
func decodeHref(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	// Some servers return absolute URIs in href; keep the path part only.
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			raw = u.EscapedPath()
		}
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrNonUnicodePath, raw)
	}
	if !utf8.ValidString(decoded) {
		return "", fmt.Errorf("%w: %q", ErrNonUnicodePath, raw)
	}
	return decoded, nil
}

func parseRFC2822(text string) (int64, error) {
	var lastErr error
	for _, layout := range rfc2822Layouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t.Unix(), nil
		}
		lastErr = err
	}
	return 0, lastErr
}
