// internal/browser/discovery/discovery.go
package discovery

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/Anonyfox/magpie-html-sub001/api/schemas"
)

// classicMIMETypes are the <script type> values (besides an absent or empty
// attribute) that still mean "classic JavaScript".
var classicMIMETypes = map[string]bool{
	"text/javascript":          true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"text/ecmascript":          true,
	"application/ecmascript":   true,
}

// Script is a discovered, fully resolved script: by the time it leaves this
// package, Code always holds the source text. External sources carry the
// absolute URL they were fetched from; inline scripts have an empty URL.
type Script struct {
	URL    string
	Code   string
	Module bool
}

// Inline reports whether the script came from element text content.
func (s Script) Inline() bool { return s.URL == "" }

// Result is the outcome of discovery: the ordered executable script set,
// non-fatal fetch errors, and the base URL subsequent resolution should use.
type Result struct {
	Scripts []Script
	Errors  []schemas.ScriptError
	BaseURL *url.URL
}

// Fetcher retrieves external script sources.
type Fetcher interface {
	FetchScript(ctx context.Context, u *url.URL, timeout time.Duration) (string, error)
}

// Options bound discovery work.
type Options struct {
	// MaxScripts caps how many <script> elements are considered, in document order.
	MaxScripts int
	// FetchTimeout applies per external source (further clamped by the run budget
	// inside the Fetcher).
	FetchTimeout time.Duration
	// FetchConcurrency bounds parallel source fetches. Defaults to 4.
	FetchConcurrency int
}

// Discover parses HTML and returns the ordered script set without executing
// anything. External sources are fetched up front; a failed fetch is recorded
// as a script-stage error and that script is dropped. The parsed document is
// returned so the caller can hand the same tree to the execution engine.
func Discover(ctx context.Context, htmlText string, finalURL *url.URL, fetcher Fetcher, opts Options, logger *zap.Logger) (*Result, *html.Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("discovery")

	doc, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return nil, nil, err
	}

	res := &Result{BaseURL: resolveBaseURL(doc, finalURL)}

	type slot struct {
		script Script
		srcURL *url.URL // nil for inline
		err    error
	}

	nodes := htmlquery.Find(doc, "//script")
	slots := make([]*slot, 0, len(nodes))

	for _, node := range nodes {
		if opts.MaxScripts > 0 && len(slots) >= opts.MaxScripts {
			log.Debug("Script limit reached, ignoring remaining elements",
				zap.Int("max_scripts", opts.MaxScripts))
			break
		}

		typ := strings.ToLower(strings.TrimSpace(htmlquery.SelectAttr(node, "type")))
		isModule := typ == "module"
		if typ != "" && !isModule && !classicMIMETypes[typ] {
			// Data blocks (ld+json, templates, ...) are never executed or fetched.
			continue
		}

		if src := strings.TrimSpace(htmlquery.SelectAttr(node, "src")); src != "" {
			resolved, err := res.BaseURL.Parse(src)
			if err != nil {
				res.Errors = append(res.Errors, schemas.ScriptError{
					Stage:     schemas.StageScript,
					ScriptURL: src,
					Message:   "unresolvable script src: " + err.Error(),
				})
				continue
			}
			slots = append(slots, &slot{
				script: Script{URL: resolved.String(), Module: isModule},
				srcURL: resolved,
			})
			continue
		}

		code := htmlquery.InnerText(node)
		if strings.TrimSpace(code) == "" {
			continue
		}
		slots = append(slots, &slot{script: Script{Code: code, Module: isModule}})
	}

	// Fetch external sources concurrently; slot order preserves document order.
	concurrency := opts.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g, fetchCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, s := range slots {
		if s.srcURL == nil {
			continue
		}
		s := s
		g.Go(func() error {
			code, err := fetcher.FetchScript(fetchCtx, s.srcURL, opts.FetchTimeout)
			if err != nil {
				s.err = err
				return nil // fetch failures are per-script, never fatal
			}
			s.script.Code = code
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range slots {
		if s.err != nil {
			log.Debug("Dropping script after failed fetch",
				zap.String("url", s.script.URL), zap.Error(s.err))
			res.Errors = append(res.Errors, schemas.ScriptError{
				Stage:     schemas.StageScript,
				ScriptURL: s.script.URL,
				Message:   s.err.Error(),
			})
			continue
		}
		res.Scripts = append(res.Scripts, s.script)
	}

	log.Debug("Discovery complete",
		zap.Int("scripts", len(res.Scripts)),
		zap.Int("errors", len(res.Errors)),
		zap.String("base_url", res.BaseURL.String()))

	return res, doc, nil
}

// resolveBaseURL honors the first <base href>, falling back to the final URL.
func resolveBaseURL(doc *html.Node, finalURL *url.URL) *url.URL {
	base := htmlquery.FindOne(doc, "//base[@href]")
	if base == nil {
		return finalURL
	}
	href := strings.TrimSpace(htmlquery.SelectAttr(base, "href"))
	if href == "" {
		return finalURL
	}
	resolved, err := finalURL.Parse(href)
	if err != nil {
		return finalURL
	}
	return resolved
}
