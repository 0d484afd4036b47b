package rfc9110

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/google/uuid"
)

// BytePart is one part of a multipart/byteranges body.
type BytePart struct {
	Range ByteRange
	Data  []byte
}

// §  14.6.  Media Type multipart/byteranges
// §
// §     When a 206 (Partial Content) response message includes the content of
// §     multiple ranges, they are transmitted as body parts in a multipart
// §     message body ([RFC2046], Section 5.1) with the media type of
// §     "multipart/byteranges".
// §
// §     The following definition is to be registered with IANA [BCP13]:
// §
// §     Required parameters:  boundary

// MultipartByteranges encodes parts as a multipart/byteranges body.
// It returns the body and the Content-Type field value, which always
// carries a non-empty boundary parameter.
func MultipartByteranges(parts []BytePart, contentType string, size int64) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := w.SetBoundary(boundary); err != nil {
		return nil, "", err
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		h.Set("Content-Range", ContentRange{Range: p.Range, Size: size}.String())
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(p.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/byteranges; boundary=" + boundary, nil
}
