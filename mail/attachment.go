package mail

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// InlineMimeType is reported for every inline attachment.
const InlineMimeType = "multipart/related"

// DefaultMimeType is reported for attachments with an unknown extension.
const DefaultMimeType = "application/octet-stream"

// Attachments keeps named binary attachments in two partitions: files attached
// for download and inline parts referenced from the HTML body via cid: links.
// Names are unique per partition; adding an existing name overwrites it.
// Attachments has no internal locking.
type Attachments struct {
	attached map[string][]byte
	inline   map[string][]byte
}

// WireAttachment is the adapter-facing form of an attachment. ContentID always
// equals Name so that cid: references in HTML bodies resolve.
type WireAttachment struct {
	Name      string
	ContentID string
	MimeType  string
	Inline    bool
	Data      []byte
}

// NewAttachments creates an empty store.
func NewAttachments() *Attachments {
	return &Attachments{
		attached: make(map[string][]byte),
		inline:   make(map[string][]byte),
	}
}

// Add stores data under name in the selected partition.
func (a *Attachments) Add(name string, data []byte, inline bool) {
	if inline {
		if a.inline == nil {
			a.inline = make(map[string][]byte)
		}
		a.inline[name] = data
		return
	}
	if a.attached == nil {
		a.attached = make(map[string][]byte)
	}
	a.attached[name] = data
}

// Get returns the stored bytes.
func (a *Attachments) Get(name string, inline bool) ([]byte, bool) {
	if inline {
		b, ok := a.inline[name]
		return b, ok
	}
	b, ok := a.attached[name]
	return b, ok
}

// Remove deletes an attachment.
func (a *Attachments) Remove(name string, inline bool) {
	if inline {
		delete(a.inline, name)
		return
	}
	delete(a.attached, name)
}

// Len returns the total number of attachments.
func (a *Attachments) Len() int {
	if a == nil {
		return 0
	}
	return len(a.attached) + len(a.inline)
}

// Attached returns the sorted names of downloadable attachments.
func (a *Attachments) Attached() []string {
	return slices.Sorted(maps.Keys(a.attached))
}

// Inline returns the sorted names of inline attachments.
func (a *Attachments) Inline() []string {
	return slices.Sorted(maps.Keys(a.inline))
}

// Clone deep-copies the store.
func (a *Attachments) Clone() *Attachments {
	c := NewAttachments()
	for k, v := range a.attached {
		c.attached[k] = slices.Clone(v)
	}
	for k, v := range a.inline {
		c.inline[k] = slices.Clone(v)
	}
	return c
}

// Wire converts every attachment, attached first then inline, each sorted by name.
func (a *Attachments) Wire() []WireAttachment {
	if a == nil {
		return nil
	}
	out := make([]WireAttachment, 0, a.Len())
	for _, name := range a.Attached() {
		out = append(out, ToWire(name, a.attached[name], false))
	}
	for _, name := range a.Inline() {
		out = append(out, ToWire(name, a.inline[name], true))
	}
	return out
}

// ToWire builds the wire form of one attachment. The data slice is shared, not copied.
func ToWire(name string, data []byte, inline bool) WireAttachment {
	return WireAttachment{
		Name:      name,
		ContentID: name,
		MimeType:  MimeType(name, inline),
		Inline:    inline,
		Data:      data,
	}
}

// MimeType resolves the MIME type of an attachment. Inline parts always report
// multipart/related; attached files are looked up by extension.
func MimeType(name string, inline bool) string {
	if inline {
		return InlineMimeType
	}
	return ExtensionMimeType(name)
}

// ExtensionMimeType looks name up in the static extension table, falling back
// to application/octet-stream.
func ExtensionMimeType(name string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return DefaultMimeType
}
