// internal/render/renderer.go
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/Anonyfox/magpie-html-sub001/api/schemas"
	"github.com/Anonyfox/magpie-html-sub001/internal/browser/discovery"
	"github.com/Anonyfox/magpie-html-sub001/internal/browser/network"
	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
	"github.com/Anonyfox/magpie-html-sub001/internal/config"
)

// Renderer executes the full pipeline for a URL: fetch, discover, run, wait,
// snapshot. One Renderer serves many runs; each run gets its own budget,
// client and sandbox.
type Renderer struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New builds a Renderer. A nil logger disables logging.
func New(cfg *config.Config, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{cfg: cfg, logger: logger.Named("render")}
}

// Run renders one URL to completion. Partial progress survives the deadline:
// whatever the scripts did before the budget ran out is what the snapshot
// shows, with the truncation recorded in the error list.
func (r *Renderer) Run(ctx context.Context, rawURL string) (*schemas.RunResult, error) {
	start := time.Now().UTC()
	runID := uuid.NewString()
	log := r.logger.With(zap.String("run_id", runID), zap.String("url", rawURL))

	engine, err := LookupEngine(r.cfg.Run.Engine)
	if err != nil {
		return nil, err
	}

	b := budget.New(r.cfg.Run.Timeout, budget.HardCap)
	ctx, cancel := b.Context(ctx)
	defer cancel()

	client := network.NewClient(network.ClientConfig{
		UserAgent:          r.cfg.Network.UserAgent,
		Headers:            r.cfg.Network.Headers,
		InsecureSkipVerify: r.cfg.Network.InsecureSkipVerify,
		RequestsPerSecond:  r.cfg.Network.RequestsPerSecond,
	}, b, r.logger)
	defer client.CloseIdleConnections()

	log.Info("Run started",
		zap.String("engine", engine.Name()),
		zap.Duration("budget", b.Remaining()),
		zap.Bool("execute_scripts", r.cfg.Run.ExecuteScripts))

	doc, err := client.FetchDocument(ctx, rawURL, r.cfg.Network.NavigationTimeout)
	if err != nil {
		return nil, fmt.Errorf("fetching document: %w", err)
	}

	result := &schemas.RunResult{
		URL:     doc.FinalURL.String(),
		Console: []schemas.ConsoleEntry{},
		Errors:  []schemas.ScriptError{},
	}

	if !r.cfg.Run.ExecuteScripts {
		// Static mode: parse and re-serialize, no script fetches, no sandbox.
		snapshot, err := normalizeHTML(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("parsing document: %w", err)
		}
		result.HTML = snapshot
		result.Timing = timing(start)
		log.Info("Run complete (static)", zap.Duration("duration", result.Timing.Duration))
		return result, nil
	}

	disc, tree, err := discovery.Discover(ctx, doc.Text, doc.FinalURL, client, discovery.Options{
		MaxScripts:   r.cfg.Run.MaxScripts,
		FetchTimeout: r.cfg.Network.ResourceTimeout,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("discovering scripts: %w", err)
	}
	// Discovery-time failures come first in the error list; execution errors
	// follow in occurrence order.
	result.Errors = append(result.Errors, disc.Errors...)

	out, err := engine.Render(ctx, EngineInput{
		Doc:             tree,
		BaseURL:         disc.BaseURL,
		Scripts:         disc.Scripts,
		Run:             r.cfg.Run,
		UserAgent:       r.cfg.Network.UserAgent,
		ResourceTimeout: r.cfg.Network.ResourceTimeout,
		Transport:       client,
		Fetcher:         client,
		Budget:          b,
		Logger:          r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("executing scripts: %w", err)
	}

	result.HTML = out.HTML
	result.Console = append(result.Console, out.Console...)
	result.Errors = append(result.Errors, out.Errors...)
	result.Timing = timing(start)

	log.Info("Run complete",
		zap.Int("scripts", len(disc.Scripts)),
		zap.Int("console_entries", len(result.Console)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("duration", result.Timing.Duration))

	return result, nil
}

func timing(start time.Time) schemas.Timing {
	end := time.Now().UTC()
	return schemas.Timing{
		Start:    start,
		End:      end,
		Duration: end.Sub(start),
	}
}

// normalizeHTML round-trips markup through the parser so static mode returns
// the same normalized tree shape script mode does.
func normalizeHTML(text string) (string, error) {
	tree, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := html.Render(&sb, tree); err != nil {
		return "", err
	}
	return sb.String(), nil
}
