// internal/render/engine.go
package render

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/Anonyfox/magpie-html-sub001/api/schemas"
	"github.com/Anonyfox/magpie-html-sub001/internal/browser/discovery"
	"github.com/Anonyfox/magpie-html-sub001/internal/browser/jsexec"
	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
	"github.com/Anonyfox/magpie-html-sub001/internal/config"
)

// EngineInput is everything an engine needs for one run: the parsed document,
// the discovered script set, and the run's collaborators.
type EngineInput struct {
	Doc     *html.Node
	BaseURL *url.URL
	Scripts []discovery.Script

	Run             config.RunConfig
	UserAgent       string
	ResourceTimeout time.Duration

	Transport jsexec.Transport
	Fetcher   discovery.Fetcher
	Budget    *budget.Budget
	Logger    *zap.Logger
}

// EngineOutput is the engine's contribution to the run result.
type EngineOutput struct {
	HTML    string
	Console []schemas.ConsoleEntry
	Errors  []schemas.ScriptError
}

// Engine executes a script set against a document and returns the mutated
// snapshot. Implementations must be safe for concurrent runs.
type Engine interface {
	Name() string
	Render(ctx context.Context, in EngineInput) (*EngineOutput, error)
}

// ErrUnsupportedEngine is returned for engine names outside the registry.
type ErrUnsupportedEngine struct {
	Name string
}

func (e *ErrUnsupportedEngine) Error() string {
	return fmt.Sprintf("unsupported engine %q (supported: %v)", e.Name, SupportedEngines())
}

var engines = map[string]Engine{
	"goja": &gojaEngine{},
}

// LookupEngine resolves an engine by name.
func LookupEngine(name string) (Engine, error) {
	if e, ok := engines[name]; ok {
		return e, nil
	}
	return nil, &ErrUnsupportedEngine{Name: name}
}

// SupportedEngines lists registry keys, sorted for stable error messages.
func SupportedEngines() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// gojaEngine runs scripts in an isolated jsexec sandbox. It is stateless;
// every run gets a fresh sandbox, so concurrent runs never share a VM.
type gojaEngine struct{}

func (g *gojaEngine) Name() string { return "goja" }

func (g *gojaEngine) Render(ctx context.Context, in EngineInput) (*EngineOutput, error) {
	sandbox, err := jsexec.NewSandbox(ctx, jsexec.Options{
		Run:             in.Run,
		UserAgent:       in.UserAgent,
		ResourceTimeout: in.ResourceTimeout,
		Transport:       in.Transport,
		Fetcher:         in.Fetcher,
		Budget:          in.Budget,
		Logger:          in.Logger,
	})
	if err != nil {
		return nil, err
	}
	defer sandbox.Close()

	sandbox.LoadDocument(in.Doc, in.BaseURL, in.Scripts)
	sandbox.RunScripts(in.Scripts)
	sandbox.Settle()

	snapshot, err := sandbox.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("serializing snapshot: %w", err)
	}

	return &EngineOutput{
		HTML:    snapshot,
		Console: sandbox.Console(),
		Errors:  sandbox.Errors(),
	}, nil
}
