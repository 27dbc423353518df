package mail

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/htmlindex"
)

// Content types of alternate views.
const (
	ContentTypeText = "text/plain"
	ContentTypeHTML = "text/html"
)

// AlternateView is one rendered body variant, encoded in Charset.
type AlternateView struct {
	ContentType string
	Charset     string
	Content     []byte
}

// NewView encodes body into charset and tags it with contentType.
func NewView(contentType, body, charset string) (AlternateView, error) {
	if contentType != ContentTypeText && contentType != ContentTypeHTML {
		return AlternateView{}, &InvalidArgumentError{Arg: "contentType", Reason: "expected text/plain or text/html"}
	}
	if charset == "" {
		charset = DefaultEncoding
	}
	content, err := encodeString(charset, body)
	if err != nil {
		return AlternateView{}, err
	}
	return AlternateView{ContentType: contentType, Charset: charset, Content: content}, nil
}

// Text decodes the view content back to a UTF-8 string.
func (v AlternateView) Text() (string, error) {
	return decodeBytes(v.Charset, v.Content)
}

// AddView appends a body encoded with the message charset.
func (m *Message) AddView(contentType, body string) error {
	v, err := NewView(contentType, body, m.Charset())
	if err != nil {
		return err
	}
	m.Views = append(m.Views, v)
	return nil
}

// TextView returns the first plain-text view.
func (m *Message) TextView() (AlternateView, bool) {
	return m.findView(ContentTypeText)
}

// HTMLView returns the first HTML view.
func (m *Message) HTMLView() (AlternateView, bool) {
	return m.findView(ContentTypeHTML)
}

func (m *Message) findView(contentType string) (AlternateView, bool) {
	for _, v := range m.Views {
		if v.ContentType == contentType {
			return v, true
		}
	}
	return AlternateView{}, false
}

// Bodies decodes the first text and the first HTML view. Missing views yield
// empty strings.
func (m *Message) Bodies() (text, html string, err error) {
	if v, ok := m.TextView(); ok {
		if text, err = v.Text(); err != nil {
			return "", "", err
		}
	}
	if v, ok := m.HTMLView(); ok {
		if html, err = v.Text(); err != nil {
			return "", "", err
		}
	}
	return text, html, nil
}

func isUTF8(charset string) bool {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

func encodeString(charset, s string) ([]byte, error) {
	if isUTF8(charset) {
		return []byte(s), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, &InvalidArgumentError{Arg: "encoding", Reason: err.Error()}
	}
	b, err := enc.NewEncoder().Bytes([]byte(s))
	return b, errors.Wrapf(err, "failed to encode body as %s", charset)
}

func decodeBytes(charset string, b []byte) (string, error) {
	if isUTF8(charset) {
		return string(b), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", &InvalidArgumentError{Arg: "encoding", Reason: err.Error()}
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode body from %s", charset)
	}
	return string(out), nil
}
