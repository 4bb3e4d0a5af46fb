// internal/browser/discovery/discovery_test.go
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anonyfox/magpie-html-sub001/api/schemas"
)

// fakeFetcher serves canned script bodies keyed by URL path.
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	fetched []string
}

func (f *fakeFetcher) FetchScript(_ context.Context, u *url.URL, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, u.String())
	body, ok := f.bodies[u.Path]
	if !ok {
		return "", fmt.Errorf("fetching script %s: status 404", u)
	}
	return body, nil
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func discover(t *testing.T, page string, f Fetcher, opts Options) *Result {
	t.Helper()
	res, doc, err := Discover(context.Background(), page, mustURL(t, "https://example.com/page/index.html"), f, opts, nil)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return res
}

func TestDiscover_OrderAndClassification(t *testing.T) {
	page := `<html><head>
		<script>first();</script>
		<script type="application/ld+json">{"never": "executed"}</script>
		<script src="/a.js"></script>
		<script type="module">import './x.js';</script>
		<script type="text/template">not js</script>
		<script>   </script>
	</head><body></body></html>`

	f := &fakeFetcher{bodies: map[string]string{"/a.js": "a();"}}
	res := discover(t, page, f, Options{})

	require.Len(t, res.Scripts, 3)
	assert.Equal(t, "first();", res.Scripts[0].Code)
	assert.True(t, res.Scripts[0].Inline())
	assert.False(t, res.Scripts[0].Module)

	assert.Equal(t, "https://example.com/a.js", res.Scripts[1].URL)
	assert.Equal(t, "a();", res.Scripts[1].Code)

	// A module element with no src is still a module.
	assert.True(t, res.Scripts[2].Module)
	assert.True(t, res.Scripts[2].Inline())

	assert.Empty(t, res.Errors)
}

func TestDiscover_BaseTagResolution(t *testing.T) {
	page := `<html><head>
		<base href="https://cdn.example.org/assets/">
		<script src="app.js"></script>
	</head></html>`

	f := &fakeFetcher{bodies: map[string]string{"/assets/app.js": "app();"}}
	res := discover(t, page, f, Options{})

	require.Len(t, res.Scripts, 1)
	assert.Equal(t, "https://cdn.example.org/assets/app.js", res.Scripts[0].URL)
	assert.Equal(t, "https://cdn.example.org/assets/", res.BaseURL.String())
}

func TestDiscover_RelativeSrcWithoutBase(t *testing.T) {
	page := `<script src="lib.js"></script>`
	f := &fakeFetcher{bodies: map[string]string{"/page/lib.js": "lib();"}}
	res := discover(t, page, f, Options{})

	require.Len(t, res.Scripts, 1)
	assert.Equal(t, "https://example.com/page/lib.js", res.Scripts[0].URL)
}

func TestDiscover_FetchFailureIsRecordedNotFatal(t *testing.T) {
	page := `<script src="/missing.js"></script><script>ok();</script>`
	f := &fakeFetcher{bodies: map[string]string{}}
	res := discover(t, page, f, Options{})

	require.Len(t, res.Scripts, 1)
	assert.Equal(t, "ok();", res.Scripts[0].Code)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, schemas.StageScript, res.Errors[0].Stage)
	assert.Equal(t, "https://example.com/missing.js", res.Errors[0].ScriptURL)
	assert.Contains(t, res.Errors[0].Message, "404")
}

func TestDiscover_MaxScriptsCap(t *testing.T) {
	page := `<script>one();</script><script>two();</script><script>three();</script>`
	res := discover(t, page, &fakeFetcher{}, Options{MaxScripts: 2})

	require.Len(t, res.Scripts, 2)
	assert.Equal(t, "one();", res.Scripts[0].Code)
	assert.Equal(t, "two();", res.Scripts[1].Code)
}

func TestDiscover_SrcWinsOverInlineBody(t *testing.T) {
	page := `<script src="/a.js">inline_ignored();</script>`
	f := &fakeFetcher{bodies: map[string]string{"/a.js": "external();"}}
	res := discover(t, page, f, Options{})

	require.Len(t, res.Scripts, 1)
	assert.Equal(t, "external();", res.Scripts[0].Code)
}

func TestDiscover_InvalidHTMLStillParses(t *testing.T) {
	// x/net/html is forgiving; truncated markup must not error.
	res, doc, err := Discover(context.Background(), "<di<script>x();</script>", mustURL(t, "https://e.com/"), &fakeFetcher{}, Options{}, nil)
	require.NoError(t, err)
	require.NotNil(t, doc)
	_ = res
}
