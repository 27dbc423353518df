// Package gotemplate renders mail views from text/template and html/template
// files: <name>.txt.tmpl for the plain body and <name>.html.tmpl for HTML.
package gotemplate

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"io/fs"
	"sync"
	texttemplate "text/template"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/render"
)

const (
	TextSuffix = ".txt.tmpl"
	HTMLSuffix = ".html.tmpl"
)

var _ render.Renderer = (*Renderer)(nil)

// Renderer loads templates lazily from an fs.FS and caches them.
type Renderer struct {
	fsys  fs.FS
	funcs map[string]any

	mx   sync.Mutex
	text map[string]*texttemplate.Template
	html map[string]*htmltemplate.Template
}

// Options contains options for creating a Renderer.
type Options struct {
	// Funcs are available to both template kinds.
	Funcs map[string]any
}

// New creates a Renderer over fsys.
func New(fsys fs.FS, options *Options) *Renderer {
	r := &Renderer{
		fsys: fsys,
		text: make(map[string]*texttemplate.Template),
		html: make(map[string]*htmltemplate.Template),
	}
	if options != nil {
		r.funcs = options.Funcs
	}
	return r
}

// Render executes whichever of the two templates exist. Missing both yields
// an empty Result; render.Apply turns that into TemplateNotFoundError.
func (r *Renderer) Render(_ context.Context, name string, model any) (render.Result, error) {
	var res render.Result

	tt, err := r.textTemplate(name)
	if err != nil {
		return res, err
	}
	if tt != nil {
		var buf bytes.Buffer
		if err := tt.Execute(&buf, model); err != nil {
			return res, errors.Wrapf(err, "failed to execute %s%s", name, TextSuffix)
		}
		res.Text = buf.String()
	}

	ht, err := r.htmlTemplate(name)
	if err != nil {
		return res, err
	}
	if ht != nil {
		var buf bytes.Buffer
		if err := ht.Execute(&buf, model); err != nil {
			return res, errors.Wrapf(err, "failed to execute %s%s", name, HTMLSuffix)
		}
		res.HTML = buf.String()
	}

	return res, nil
}

func (r *Renderer) textTemplate(name string) (*texttemplate.Template, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if t, ok := r.text[name]; ok {
		return t, nil
	}

	src, err := r.read(name + TextSuffix)
	if err != nil || src == nil {
		return nil, err
	}
	t, err := texttemplate.New(name).Funcs(r.funcs).Option("missingkey=zero").Parse(string(src))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s%s", name, TextSuffix)
	}
	r.text[name] = t
	return t, nil
}

func (r *Renderer) htmlTemplate(name string) (*htmltemplate.Template, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	if t, ok := r.html[name]; ok {
		return t, nil
	}

	src, err := r.read(name + HTMLSuffix)
	if err != nil || src == nil {
		return nil, err
	}
	t, err := htmltemplate.New(name).Funcs(r.funcs).Option("missingkey=zero").Parse(string(src))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s%s", name, HTMLSuffix)
	}
	r.html[name] = t
	return t, nil
}

// read returns nil, nil for a missing file.
func (r *Renderer) read(path string) ([]byte, error) {
	src, err := fs.ReadFile(r.fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return src, nil
}
