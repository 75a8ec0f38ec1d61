// Package sandbox builds self-contained preview documents that transpile and
// mount generated JSX inside an isolated frame.
package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/boblangley/artifact-forge/internal/transform"
)

// EmptyElement replaces an empty factory body.
const EmptyElement = "<></>"

// DefaultCacheSize is the number of rendered documents kept when Config
// leaves CacheSize unset.
const DefaultCacheSize = 128

// Runtime locations loaded by every preview document.
const (
	BabelURL    = "https://unpkg.com/@babel/standalone@7.26.3/babel.min.js"
	ReactURL    = "https://unpkg.com/react@18.3.1/umd/react.development.js"
	ReactDOMURL = "https://unpkg.com/react-dom@18.3.1/umd/react-dom.development.js"
	TailwindURL = "https://cdn.tailwindcss.com"
)

// ModuleExport is the identifier a module preview binds its export to.
const ModuleExport = "PreviewModule"

// FallbackComponentName names a module whose file path has no usable base.
const FallbackComponentName = "PreviewComponent"

// NoExportMessage is shown when a module preview finds nothing to render.
const NoExportMessage = "No export detected to render."

var (
	componentNamePattern = regexp.MustCompile(`\b(?:const|let|var|function|class)\s+([A-Z][A-Za-z0-9_]*)`)
	scriptExtPattern     = regexp.MustCompile(`\.(t|j)sx?$`)
)

// returnPattern captures everything between the first "return (" and the last
// ")" at the end of the text.
var returnPattern = regexp.MustCompile(`(?s)return\s*\((.*)\)\s*;?\s*$`)

var documentTmpl = template.Must(template.New("preview").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <script src="{{.BabelURL}}"></script>
    <script src="{{.ReactURL}}"></script>
    <script src="{{.ReactDOMURL}}"></script>
    <script src="{{.TailwindURL}}"></script>
    <style>html,body,#root{height:100%;margin:0;padding:0;background:black;color:white}</style>
{{- if .Loading}}
    <style>
      #thinking{position:fixed;inset:0;display:flex;align-items:center;justify-content:center;gap:8px;pointer-events:none;background:rgba(0,0,0,.35)}
      #thinking span{width:10px;height:10px;border-radius:9999px;background:#a78bfa;animation:thinking 1.2s infinite ease-in-out}
      #thinking span:nth-child(2){animation-delay:.15s}
      #thinking span:nth-child(3){animation-delay:.3s}
      @keyframes thinking{0%,80%,100%{transform:scale(.4);opacity:.4}40%{transform:scale(1);opacity:1}}
    </style>
{{- end}}
  </head>
  <body>
    <div id="root"></div>
{{- if .Loading}}
    <div id="thinking" aria-label="thinking"><span></span><span></span><span></span></div>
{{- end}}
    <script>
      (function () {
        var mount = document.getElementById('root');
        try {
          var transformed = Babel.transform({{.Source}}, { filename: 'preview.tsx', presets: [["react", { runtime: "classic" }], "typescript"] }).code;
          window.React = window.React || React;
          (0, eval)(transformed);
          var root = ReactDOM.createRoot(mount);
{{- if .Module}}
          if (!window.__Exported) {
            root.render(React.createElement('div', { style: { padding: 16 } }, {{.NoExport}}));
            return;
          }
{{- end}}
          root.render(React.createElement(window.__Exported || function () { return null; }));
        } catch (e) {
{{- if .Module}}
          mount.innerHTML = '';
          var pre = document.createElement('pre');
          pre.style.padding = '16px';
          pre.style.whiteSpace = 'pre-wrap';
          pre.textContent = String((e && e.stack) || e);
          mount.appendChild(pre);
{{- else}}
          mount.innerHTML = '';
{{- end}}
          console.error(e);
        }
      })();
    </script>
  </body>
</html>
`))

type documentData struct {
	BabelURL    string
	ReactURL    string
	ReactDOMURL string
	TailwindURL string
	Loading     bool
	Module      bool
	NoExport    string
	Source      template.JS
}

type cacheKey struct {
	body    string
	loading bool
	module  bool
}

// Renderer turns generator text into preview documents. It never touches the
// file system.
type Renderer struct {
	cache  *lru.Cache[cacheKey, string]
	logger *slog.Logger
}

// Config holds renderer configuration.
type Config struct {
	// CacheSize bounds the document cache. Zero means DefaultCacheSize.
	CacheSize int

	Logger *slog.Logger
}

// New creates a new renderer.
func New(cfg Config) (*Renderer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("create document cache: %w", err)
	}

	return &Renderer{cache: cache, logger: logger}, nil
}

// FactoryBody extracts the JSX returned by text, or the trimmed text when it
// has no trailing return (...). An empty result becomes EmptyElement.
func FactoryBody(text string) string {
	body := strings.TrimSpace(text)
	if m := returnPattern.FindStringSubmatch(text); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if body == "" {
		return EmptyElement
	}
	return body
}

// FactorySource is the script evaluated inside the document. It defines the
// Preview component and publishes it on window.__Exported.
func FactorySource(body string) string {
	return "function Preview(){return (" + body + ");}\n;window.__Exported = Preview;"
}

// Render returns the preview document for text. loading adds the animated
// thinking overlay.
func (r *Renderer) Render(text string, loading bool) string {
	body := FactoryBody(text)
	key := cacheKey{body: body, loading: loading}
	if doc, ok := r.cache.Get(key); ok {
		return doc
	}

	doc, err := Document(body, loading)
	if err != nil {
		// only reachable if the template itself is broken
		r.logger.Error("render preview document", "error", err)
		return ""
	}
	r.cache.Add(key, doc)
	r.logger.Debug("rendered preview document", "bytes", len(doc), "loading", loading)
	return doc
}

// Len reports how many documents are cached.
func (r *Renderer) Len() int {
	return r.cache.Len()
}

// RenderModule returns a preview document that evaluates a whole component
// module and mounts its export. filePath only feeds the fallback name.
func (r *Renderer) RenderModule(code, filePath string) string {
	source := ModuleSource(code, filePath)
	key := cacheKey{body: source, module: true}
	if doc, ok := r.cache.Get(key); ok {
		return doc
	}

	doc, err := render(source, false, true)
	if err != nil {
		r.logger.Error("render module preview document", "error", err)
		return ""
	}
	r.cache.Add(key, doc)
	r.logger.Debug("rendered module preview document", "bytes", len(doc), "file", filePath)
	return doc
}

// ModuleSource rewrites code into a script that publishes one component on
// window.__Exported. A recognized export is bound to ModuleExport; otherwise
// the first capitalized declaration is used, then the file base name.
func ModuleSource(code, filePath string) string {
	src, bound := transform.Bind(code, ModuleExport)
	name := ModuleExport
	if !bound {
		name = GuessComponentName(src, fileBaseName(filePath))
	}
	return src + "\n;try{window.__Exported = typeof " + name + " !== 'undefined' ? " + name + " : undefined;}catch(e){}"
}

// GuessComponentName returns the first capitalized const, let, var,
// function or class name declared in code, or fallback.
func GuessComponentName(code, fallback string) string {
	if m := componentNamePattern.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return fallback
}

func fileBaseName(filePath string) string {
	base := filePath
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base = scriptExtPattern.ReplaceAllString(base, "")
	if base == "" {
		return FallbackComponentName
	}
	return transform.ToIdentifier(base)
}

// Document renders the HTML for an already extracted factory body.
func Document(body string, loading bool) (string, error) {
	return render(FactorySource(body), loading, false)
}

func render(script string, loading, module bool) (string, error) {
	source, err := scriptString(script)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = documentTmpl.Execute(&buf, documentData{
		BabelURL:    BabelURL,
		ReactURL:    ReactURL,
		ReactDOMURL: ReactDOMURL,
		TailwindURL: TailwindURL,
		Loading:     loading,
		Module:      module,
		NoExport:    NoExportMessage,
		Source:      source,
	})
	if err != nil {
		return "", fmt.Errorf("execute preview template: %w", err)
	}
	return buf.String(), nil
}

// scriptString encodes s as a JS string literal that cannot close the
// surrounding script element.
func scriptString(s string) (template.JS, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode factory source: %w", err)
	}
	return template.JS(b), nil
}
