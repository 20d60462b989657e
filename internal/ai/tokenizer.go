package ai

import (
	"context"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const DefaultEncoding = "cl100k_base"

// per-message framing used by chat completion APIs
const (
	tokensPerMessage = 4
	tokensPerReply   = 3
)

type Tokenizer interface {
	EstimateTokens(text string) int
	EstimateMessages(msgs []Message) int
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer loads a BPE encoding. tiktoken fetches the ranks file on first
// use, so offline deployments fall back to the word heuristic.
func NewTokenizer(encoding string) Tokenizer {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logutil.GetLogger(context.Background()).Warn("load tokenizer encoding failed, using heuristic",
			zap.String("encoding", encoding), zap.Error(err))
		return HeuristicTokenizer{}
	}
	return &tiktokenTokenizer{enc: enc}
}

func (t *tiktokenTokenizer) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.EncodeOrdinary(text))
}

func (t *tiktokenTokenizer) EstimateMessages(msgs []Message) int {
	return estimateMessages(t, msgs)
}

// HeuristicTokenizer counts words plus one token per non-ASCII rune.
type HeuristicTokenizer struct{}

func (HeuristicTokenizer) EstimateTokens(text string) int {
	return estimateTokens(text)
}

func (h HeuristicTokenizer) EstimateMessages(msgs []Message) int {
	return estimateMessages(h, msgs)
}

func estimateMessages(t Tokenizer, msgs []Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := tokensPerReply
	for _, m := range msgs {
		total += tokensPerMessage + t.EstimateTokens(m.Content)
	}
	return total
}

func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
