package services

import (
	"context"
	"strings"
	"time"

	"concierge-whatsapp/internal/metrics"
	"concierge-whatsapp/internal/models"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

const (
	// FallbackReply is returned when the model call fails.
	FallbackReply = "Bonjour, je suis là pour vous aider. Comment puis-je vous assister aujourd'hui ?"
	// EmptyReply is returned when the model answers with no text.
	EmptyReply = "Je peux vous aider avec cela. Pouvez-vous me donner plus de détails ?"
)

const systemPrompt = `Tu es un assistant IA pour une conciergerie de luxe. Ton rôle est de suggérer des réponses professionnelles, courtoises et utiles aux demandes des clients.

Règles:
- Sois poli, professionnel et chaleureux
- Réponds de manière concise (2-3 phrases maximum)
- Si le client demande une réservation ou service spécifique, propose de t'en occuper
- Utilise un ton français professionnel mais amical
- Si tu ne peux pas aider, propose de transférer à un humain
- Utilise la FAQ ci-dessous pour répondre aux questions courantes de manière précise et personnalisée

La réponse que tu génères sera envoyée automatiquement au client.`

// GeneratorStore is the read side the generator needs.
type GeneratorStore interface {
	HistoryUntil(ctx context.Context, conversationID, untilID int64, limit int) ([]models.Message, error)
	ListFAQs(ctx context.Context, tenantID int64) ([]models.FAQ, error)
}

// GeneratorConfig tunes the completion call.
type GeneratorConfig struct {
	MaxTokens    int
	HistoryLimit int
	Timeout      time.Duration
}

// ReplyGenerator drafts automated replies with a chat model.
type ReplyGenerator struct {
	store GeneratorStore
	model model.BaseChatModel
	cfg   GeneratorConfig
}

func NewReplyGenerator(s GeneratorStore, cm model.BaseChatModel, cfg GeneratorConfig) *ReplyGenerator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ReplyGenerator{store: s, model: cm, cfg: cfg}
}

// ReplyPrompt identifies the client message being answered. MessageID bounds the history so
// that messages received after it never precede it; zero means the message is not stored.
type ReplyPrompt struct {
	ConversationID int64
	TenantID       int64
	MessageID      int64
	Body           string
}

// Generate always returns a reply. Failures are logged and replaced by a canned message.
func (g *ReplyGenerator) Generate(ctx context.Context, p ReplyPrompt) string {
	start := time.Now()
	conversationID := p.ConversationID

	msgs, err := g.buildMessages(ctx, p)
	if err != nil {
		return g.fallback(start, conversationID, "context", err)
	}
	if g.model == nil {
		return g.fallback(start, conversationID, "no_model", ErrNoProviderClient)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.model.Generate(callCtx, msgs, model.WithMaxTokens(g.cfg.MaxTokens))
	if err != nil {
		return g.fallback(start, conversationID, "error", err)
	}
	reply := ""
	if resp != nil {
		reply = strings.TrimSpace(resp.Content)
	}
	if reply == "" {
		metrics.ReplyGenerationDuration.WithLabelValues("empty").Observe(time.Since(start).Seconds())
		metrics.ReplyFallbacks.WithLabelValues("empty").Inc()
		log.Warn().Int64("conversationID", conversationID).Msg("Chat model returned an empty reply")
		return EmptyReply
	}

	metrics.ReplyGenerationDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	log.Debug().Int64("conversationID", conversationID).Int("historyTurns", len(msgs)-2).Dur("took", time.Since(start)).Msg("Reply generated")
	return reply
}

func (g *ReplyGenerator) fallback(start time.Time, conversationID int64, reason string, err error) string {
	metrics.ReplyGenerationDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
	metrics.ReplyFallbacks.WithLabelValues(reason).Inc()
	log.Error().Err(err).Int64("conversationID", conversationID).Str("reason", reason).Msg("Reply generation failed, using fallback")
	return FallbackReply
}

// buildMessages assembles system prompt, FAQ block, chronological history and the new turn.
func (g *ReplyGenerator) buildMessages(ctx context.Context, p ReplyPrompt) ([]*schema.Message, error) {
	history, err := g.store.HistoryUntil(ctx, p.ConversationID, p.MessageID, g.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	faqs, err := g.store.ListFAQs(ctx, p.TenantID)
	if err != nil {
		return nil, err
	}

	// The answered message is usually already stored; keep it as the final turn only once.
	if n := len(history); n > 0 {
		last := history[n-1]
		stored := last.ID == p.MessageID
		if p.MessageID == 0 {
			stored = last.Sender == models.SenderClient && last.Body == p.Body
		}
		if stored {
			history = history[:n-1]
		}
	}

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(systemPrompt+faqBlock(faqs)))
	for _, m := range history {
		if m.Sender == models.SenderClient {
			msgs = append(msgs, schema.UserMessage(m.Body))
		} else {
			msgs = append(msgs, schema.AssistantMessage(m.Body, nil))
		}
	}
	msgs = append(msgs, schema.UserMessage(p.Body))
	return msgs, nil
}

func faqBlock(faqs []models.FAQ) string {
	if len(faqs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nFAQ de cette conciergerie (utilise ces informations pour répondre si pertinent):\n")
	for _, f := range faqs {
		b.WriteString("\nQ: ")
		b.WriteString(f.Question)
		b.WriteString("\nR: ")
		b.WriteString(f.Answer)
		b.WriteString("\n")
	}
	return b.String()
}
