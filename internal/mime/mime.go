package mime

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLimit = 3072

var ErrNotText = errors.New("content is not text")

// Detect sniffs the leading bytes of r and returns the detected type together
// with a reader that still yields the whole content.
func Detect(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, sniffLimit)
	}
	peekedBytes, err := br.Peek(sniffLimit)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, err
	}

	return mimetype.Detect(peekedBytes), br, nil
}

// IsText reports whether m is text/plain or one of its descendants (xml,
// javascript, json, ...).
func IsText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// ReadText reads at most limit bytes of textual content from r.
func ReadText(r io.Reader, limit int64) ([]byte, error) {
	m, br, err := Detect(r)
	if err != nil {
		return nil, err
	}
	if !IsText(m) {
		return nil, fmt.Errorf("%w: detected %s", ErrNotText, m.String())
	}
	body, err := io.ReadAll(io.LimitReader(br, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("content exceeds %d bytes", limit)
	}
	return body, nil
}
