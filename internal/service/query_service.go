package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdesk/internal/ai"
	"github.com/xxxsen/ragdesk/internal/model"
	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
	"github.com/xxxsen/ragdesk/internal/rag"
	"github.com/xxxsen/ragdesk/internal/vectorstore"
)

type QueryOptions struct {
	MaxQuestionChars int
	MaxHistory       int
	RewriteUserTurns int
	TopK             int
	MinScore         float64
	PreviewRunes     int
}

func (o *QueryOptions) applyDefaults() {
	if o.MaxQuestionChars <= 0 {
		o.MaxQuestionChars = 2000
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = rag.DefaultMaxHistory
	}
	if o.RewriteUserTurns <= 0 {
		o.RewriteUserTurns = rag.DefaultRewriteUserTurn
	}
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MinScore <= 0 {
		o.MinScore = 0.5
	}
	if o.PreviewRunes <= 0 {
		o.PreviewRunes = rag.DefaultPreviewRunes
	}
}

type QueryService struct {
	tenants   TenantResolver
	embedder  ai.IEmbedder
	vectors   vectorstore.Store
	generator ai.IGenerator
	tokenizer ai.Tokenizer
	opts      QueryOptions
	now       func() time.Time
}

func NewQueryService(tenants TenantResolver, embedder ai.IEmbedder, vectors vectorstore.Store, generator ai.IGenerator, tokenizer ai.Tokenizer, opts QueryOptions) *QueryService {
	opts.applyDefaults()
	return &QueryService{
		tenants:   tenants,
		embedder:  embedder,
		vectors:   vectors,
		generator: generator,
		tokenizer: tokenizer,
		opts:      opts,
		now:       time.Now,
	}
}

// Answer runs one embedding, one search and at most one generation. A tenant
// without matching excerpts gets a fixed answer in the question's language.
func (s *QueryService) Answer(ctx context.Context, tenantKey, question string, history []model.ConversationTurn) (*model.QueryResult, error) {
	start := s.now()
	tenant, err := s.tenants.Resolve(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, appErr.Invalid("question is required")
	}
	if utf8.RuneCountInString(question) > s.opts.MaxQuestionChars {
		return nil, appErr.Invalid("question exceeds %d characters", s.opts.MaxQuestionChars)
	}
	bounded, err := rag.BoundHistory(history, s.opts.MaxHistory)
	if err != nil {
		return nil, err
	}
	for i, turn := range bounded {
		if utf8.RuneCountInString(turn.Content) > s.opts.MaxQuestionChars {
			return nil, appErr.Invalid("history turn %d exceeds %d characters", i, s.opts.MaxQuestionChars)
		}
	}
	lang := rag.DetectLanguage(question)
	logger := logutil.GetLogger(ctx).With(zap.String("tenant_id", tenant.ID), zap.String("lang", string(lang)))

	searchText := rag.RewriteQuery(question, bounded, s.opts.RewriteUserTurns)
	vec, err := s.embedder.Embed(ctx, searchText, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, appErr.External("embed query", err)
	}
	matches, err := s.vectors.Search(ctx, tenant.Collection, vec, s.opts.TopK, s.opts.MinScore)
	if err != nil {
		return nil, appErr.External("search collection", err)
	}
	if len(matches) == 0 {
		logger.Info("query found no relevant excerpts")
		return &model.QueryResult{
			Answer:         rag.NoResultsAnswer(lang),
			Sources:        []model.Source{},
			Confidence:     0,
			TokensUsed:     0,
			ResponseTimeMs: s.since(start),
			Language:       lang,
		}, nil
	}

	msgs := rag.BuildMessages(lang, bounded, matches, question)
	answer, err := s.generator.Generate(ctx, msgs)
	if err != nil {
		logger.Error("generate answer failed", zap.Int("prompt_tokens", s.tokenizer.EstimateMessages(msgs)), zap.Error(err))
		return nil, appErr.Generation(err)
	}
	result := &model.QueryResult{
		Answer:         answer,
		Sources:        rag.BuildSources(matches, s.opts.PreviewRunes),
		Confidence:     rag.Confidence(matches),
		TokensUsed:     s.tokenizer.EstimateTokens(answer),
		ResponseTimeMs: s.since(start),
		Language:       lang,
	}
	logger.Info("query answered",
		zap.Int("matches", len(matches)),
		zap.Float64("confidence", result.Confidence),
		zap.Int64("latency_ms", result.ResponseTimeMs))
	return result, nil
}

func (s *QueryService) since(start time.Time) int64 {
	return s.now().Sub(start).Milliseconds()
}
