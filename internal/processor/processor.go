package processor

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/stationai/npc-engine/internal/config"
	"github.com/stationai/npc-engine/internal/history"
	"github.com/stationai/npc-engine/internal/knowledge"
	"github.com/stationai/npc-engine/internal/persona"
	"github.com/stationai/npc-engine/internal/prompt"
	"github.com/stationai/npc-engine/internal/services"
	"github.com/stationai/npc-engine/pkg/npc"
)

// Retry policy for the local tier. Hosted requests are never retried.
const (
	retryMaxAttempts   = 3
	retryBaseDelay     = 1 * time.Second
	retryBackoffFactor = 2.0
	retryMaxDelay      = 5 * time.Second
)

// ConfigurationError reports an unusable tier configuration. It is
// the only processor error surfaced to callers besides validation
// errors; everything else becomes a fallback response.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// SelectTier picks the processing tier from configuration. With no
// explicit request, hosted is preferred over local. Requesting a
// disabled tier is a configuration error.
func SelectTier(cfg *config.Config, requested npc.ProcessingTier) (npc.ProcessingTier, error) {
	switch requested {
	case npc.TierLocal:
		if !cfg.Local.Enabled {
			return "", &ConfigurationError{Message: "local processing tier is disabled"}
		}
		return npc.TierLocal, nil
	case npc.TierHosted:
		if !cfg.Hosted.Enabled {
			return "", &ConfigurationError{Message: "hosted processing tier is disabled"}
		}
		return npc.TierHosted, nil
	}

	if cfg.Hosted.Enabled {
		return npc.TierHosted, nil
	}
	if cfg.Local.Enabled {
		return npc.TierLocal, nil
	}
	return "", &ConfigurationError{Message: "no processing tier enabled"}
}

// KnowledgeRetriever is the slice of the knowledge store the
// processor depends on.
type KnowledgeRetriever interface {
	ContextualSearch(ctx context.Context, req *npc.Request) ([]knowledge.Result, error)
}

// PersonaResolver resolves NPC profiles by id.
type PersonaResolver interface {
	Get(id string) (*persona.Profile, bool)
}

// BackendFactory constructs a backend for a tier. Swappable in tests.
type BackendFactory func(tier npc.ProcessingTier, cfg *config.Config, logger *slog.Logger) services.ModelBackend

func defaultBackendFactory(tier npc.ProcessingTier, cfg *config.Config, logger *slog.Logger) services.ModelBackend {
	if tier == npc.TierHosted {
		return services.NewAnthropicService(cfg.Hosted.APIKey, cfg.Hosted.Model, cfg.Hosted.BaseURL, logger)
	}
	return services.NewOllamaService(cfg.Local.BaseURL, cfg.Local.Model, logger)
}

// Processor coordinates one request through retrieval, prompt
// assembly, backend generation, and response parsing. Backend
// instances are cached per tier; Reset drops them.
type Processor struct {
	cfg       *config.Config
	knowledge KnowledgeRetriever
	personas  PersonaResolver
	history   history.Store
	logger    *slog.Logger

	mu       sync.Mutex
	backends map[npc.ProcessingTier]services.ModelBackend
	factory  BackendFactory
	sleep    func(time.Duration)
}

// New creates a processor with the default backend factory.
func New(cfg *config.Config, retriever KnowledgeRetriever, personas PersonaResolver, historyStore history.Store, logger *slog.Logger) *Processor {
	return &Processor{
		cfg:       cfg,
		knowledge: retriever,
		personas:  personas,
		history:   historyStore,
		logger:    logger,
		backends:  make(map[npc.ProcessingTier]services.ModelBackend),
		factory:   defaultBackendFactory,
		sleep:     time.Sleep,
	}
}

// backend returns the cached backend for a tier, constructing it on
// first use.
func (p *Processor) backend(tier npc.ProcessingTier) services.ModelBackend {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.backends[tier]; ok {
		return b
	}
	b := p.factory(tier, p.cfg, p.logger)
	p.backends[tier] = b
	return b
}

// InitBackend prepares the backend for a tier ahead of the first
// request (connectivity check, model pull).
func (p *Processor) InitBackend(ctx context.Context, tier npc.ProcessingTier) error {
	return p.backend(tier).InitModel(ctx)
}

// Reset drops the cached backend instances. Intended for tests and
// config reloads.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backends = make(map[npc.ProcessingTier]services.ModelBackend)
}

// Process runs the full pipeline for one request. Backend failures
// become fallback responses; only validation and configuration errors
// are returned to the caller.
func (p *Processor) Process(ctx context.Context, req *npc.Request) (*npc.Response, error) {
	if req == nil {
		return nil, &prompt.ValidationError{Message: "request cannot be nil"}
	}
	if strings.TrimSpace(req.PlayerInput) == "" {
		return nil, &prompt.ValidationError{Message: "player input cannot be empty"}
	}
	if req.GameContext == nil {
		return nil, &prompt.ValidationError{Message: "game context is required"}
	}

	tier, err := SelectTier(p.cfg, "")
	if err != nil {
		return nil, err
	}

	log := p.logger.With("request_id", req.RequestID, "tier", tier)

	var turns []npc.Turn
	if p.cfg.Prompt.IncludeHistory && p.history != nil {
		turns, err = p.history.GetRecent(ctx, req.GameContext.PlayerID, p.cfg.Prompt.HistoryWindow)
		if err != nil {
			// History is an enhancement; answer without it
			log.Warn("Failed to load conversation history", "error", err)
			turns = nil
		}
	}

	var results []knowledge.Result
	if p.cfg.Prompt.IncludeKnowledge && p.knowledge != nil {
		results, err = p.knowledge.ContextualSearch(ctx, req)
		if err != nil {
			log.Warn("Knowledge retrieval failed", "error", err)
			results = nil
		}
	}

	var profile *persona.Profile
	if p.personas != nil && req.GameContext.NPCID != "" {
		if prof, ok := p.personas.Get(req.GameContext.NPCID); ok {
			profile = prof
		} else {
			log.Debug("No persona for NPC, using default", "npc_id", req.GameContext.NPCID)
		}
	}

	promptText, err := prompt.New().
		WithRequest(req).
		WithPersona(profile).
		WithKnowledge(results).
		WithHistory(turns).
		WithBudget(prompt.Budget{MaxTokens: p.cfg.Prompt.MaxPromptTokens}).
		WithOptions(p.cfg.Prompt.IncludeKnowledge, p.cfg.Prompt.IncludeHistory).
		Build()
	if err != nil {
		return nil, err
	}

	debug := map[string]any{
		"prompt":          promptText,
		"knowledge_count": len(results),
		"history_count":   len(turns),
		"prompt_tokens":   prompt.EstimateTokens(promptText),
	}

	raw, err := p.generateWithRetry(ctx, tier, promptText)
	if err != nil {
		return p.fallback(req, tier, err, debug, log), nil
	}

	text, ok := ParseResponse(raw)
	if !ok {
		log.Warn("Backend returned an unusable response", "raw_length", len(raw))
		debug["error_type"] = string(services.ErrKindInvalidResponse)
		return &npc.Response{
			RequestID:      req.RequestID,
			ResponseText:   text,
			ProcessingTier: tier,
			IsFallback:     true,
			DebugInfo:      debug,
		}, nil
	}

	if p.history != nil {
		turn := npc.Turn{
			User:           req.PlayerInput,
			Assistant:      text,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			NPCID:          req.GameContext.NPCID,
			ConversationID: req.ConversationID,
		}
		if err := p.history.Append(ctx, req.GameContext.PlayerID, turn); err != nil {
			log.Warn("Failed to append history", "error", err)
		}
	}

	return &npc.Response{
		RequestID:      req.RequestID,
		ResponseText:   text,
		ProcessingTier: tier,
		DebugInfo:      debug,
	}, nil
}

// generateWithRetry invokes the backend, retrying transient failures
// on the local tier with capped exponential backoff. Hosted requests
// get a single attempt.
func (p *Processor) generateWithRetry(ctx context.Context, tier npc.ProcessingTier, promptText string) (string, error) {
	backend := p.backend(tier)

	attempts := 1
	if tier == npc.TierLocal {
		attempts = retryMaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(retryBaseDelay) * math.Pow(retryBackoffFactor, float64(attempt-1)))
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
			p.logger.Debug("Retrying backend call", "backend", backend.Name(), "attempt", attempt+1, "delay", delay)
			p.sleep(delay)
		}

		text, err := backend.Generate(ctx, promptText)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !services.IsTransient(err) {
			return "", err
		}
	}

	return "", lastErr
}

// fallback converts a backend error into a safe player-facing
// response. The error never propagates past the processor.
func (p *Processor) fallback(req *npc.Request, tier npc.ProcessingTier, err error, debug map[string]any, log *slog.Logger) *npc.Response {
	text := fallbackGeneric
	if services.IsQuota(err) {
		text = fallbackQuota
	}

	errType := string(services.ErrKind(err))
	if errType == "" {
		errType = "unexpected"
	}
	debug["error"] = err.Error()
	debug["error_type"] = errType

	log.Error("Backend generation failed, returning fallback", "error", err, "error_type", errType)

	return &npc.Response{
		RequestID:      req.RequestID,
		ResponseText:   text,
		ProcessingTier: tier,
		IsFallback:     true,
		DebugInfo:      debug,
	}
}
