// internal/browser/jsexec/module.go
package jsexec

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/Anonyfox/magpie-html-sub001/internal/browser/discovery"
	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
)

// moduleBundler turns <script type="module"> sources into a single IIFE the
// VM can run directly: the engine has no ES module loader, so imports are
// resolved at bundle time, fetching remote specifiers over the run's HTTP
// client.
type moduleBundler struct {
	fetcher      discovery.Fetcher
	budget       *budget.Budget
	fetchTimeout time.Duration
	logger       *zap.Logger
}

func newModuleBundler(fetcher discovery.Fetcher, b *budget.Budget, fetchTimeout time.Duration, logger *zap.Logger) *moduleBundler {
	return &moduleBundler{
		fetcher:      fetcher,
		budget:       b,
		fetchTimeout: fetchTimeout,
		logger:       logger.Named("bundler"),
	}
}

// BundleURL bundles a module rooted at its own URL.
func (m *moduleBundler) BundleURL(ctx context.Context, entry *url.URL) (string, error) {
	code, err := m.fetcher.FetchScript(ctx, entry, m.budget.Clamp(m.fetchTimeout))
	if err != nil {
		return "", err
	}
	return m.bundle(ctx, code, entry)
}

// BundleSource bundles inline module text; relative imports resolve against
// the document base.
func (m *moduleBundler) BundleSource(code string, base *url.URL) (string, error) {
	return m.bundle(context.Background(), code, base)
}

func (m *moduleBundler) bundle(ctx context.Context, code string, root *url.URL) (string, error) {
	if !moduleNeedsBundling(code) {
		// A module without imports still needs its own scope; esbuild would
		// wrap it anyway, but skipping the build is much cheaper.
		return "(function(){\n" + code + "\n})();", nil
	}

	sourcefile := "entry.mjs"
	if root != nil {
		sourcefile = root.String()
	}

	result := esbuild.Build(esbuild.BuildOptions{
		Stdin: &esbuild.StdinOptions{
			Contents:   code,
			Sourcefile: sourcefile,
			Loader:     esbuild.LoaderJS,
		},
		Bundle:      true,
		Write:       false,
		Format:      esbuild.FormatIIFE,
		Platform:    esbuild.PlatformBrowser,
		Target:      esbuild.ES2017,
		TreeShaking: esbuild.TreeShakingFalse,
		Plugins:     []esbuild.Plugin{m.httpPlugin(ctx, root)},
	})

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("bundling module: %s", strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling module: no output produced")
	}

	return string(result.OutputFiles[0].Contents), nil
}

// httpPlugin teaches esbuild to resolve and load http(s) imports. Relative
// specifiers resolve against the importer URL (or the root for the entry).
func (m *moduleBundler) httpPlugin(ctx context.Context, root *url.URL) esbuild.Plugin {
	return esbuild.Plugin{
		Name: "http-url",
		Setup: func(build esbuild.PluginBuild) {
			build.OnResolve(esbuild.OnResolveOptions{Filter: `.*`},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					base := root
					if args.Namespace == "http-url" && args.Importer != "" {
						if u, err := url.Parse(args.Importer); err == nil {
							base = u
						}
					}
					if base == nil {
						return esbuild.OnResolveResult{}, fmt.Errorf("cannot resolve %q without a base URL", args.Path)
					}
					resolved, err := base.Parse(args.Path)
					if err != nil {
						return esbuild.OnResolveResult{}, fmt.Errorf("resolving import %q: %w", args.Path, err)
					}
					if resolved.Scheme != "http" && resolved.Scheme != "https" {
						return esbuild.OnResolveResult{}, fmt.Errorf("unsupported import scheme in %q", resolved.String())
					}
					return esbuild.OnResolveResult{
						Path:      resolved.String(),
						Namespace: "http-url",
					}, nil
				})

			build.OnLoad(esbuild.OnLoadOptions{Filter: `.*`, Namespace: "http-url"},
				func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
					u, err := url.Parse(args.Path)
					if err != nil {
						return esbuild.OnLoadResult{}, err
					}
					m.logger.Debug("Fetching module import", zap.String("url", args.Path))
					code, err := m.fetcher.FetchScript(ctx, u, m.budget.Clamp(m.fetchTimeout))
					if err != nil {
						return esbuild.OnLoadResult{}, fmt.Errorf("fetching import %q: %w", args.Path, err)
					}
					loader := esbuild.LoaderJS
					return esbuild.OnLoadResult{Contents: &code, Loader: loader}, nil
				})
		},
	}
}

func moduleNeedsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "import(") ||
		strings.Contains(source, "export ") ||
		strings.Contains(source, "export{")
}
