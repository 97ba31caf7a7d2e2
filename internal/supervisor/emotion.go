package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/ensemble/internal/config"
	"github.com/nextlevelbuilder/ensemble/internal/personas"
	"github.com/nextlevelbuilder/ensemble/internal/prompt"
	"github.com/nextlevelbuilder/ensemble/internal/providers"
	"github.com/nextlevelbuilder/ensemble/internal/state"
)

const emotionNode = "emotion_analysis"

// EmotionAnalyzer classifies the affect of unlabeled messages and the
// overall group sentiment, in one LLM call per tick.
type EmotionAnalyzer struct {
	llm    providers.Client
	cfg    *config.Config
	agents []*personas.Persona
	log    *slog.Logger
}

func NewEmotionAnalyzer(llm providers.Client, cfg *config.Config, agents []*personas.Persona) *EmotionAnalyzer {
	return &EmotionAnalyzer{
		llm:    llm,
		cfg:    cfg,
		agents: agents,
		log:    slog.Default().With("component", "emotion"),
	}
}

type emotionResponse struct {
	MessageEmotions []struct {
		MessageID     string `json:"message_id"`
		Emotion       string `json:"emotion"`
		Justification string `json:"justification"`
	} `json:"message_emotions"`
	GroupSentiment string `json:"group_sentiment"`
}

// Analyze fills message_emotion on every window entry that lacks one and
// refreshes group sentiment. After it returns, no message is unlabeled: on
// total failure the leftovers get an ERROR label rather than staying null.
func (a *EmotionAnalyzer) Analyze(ctx context.Context, st *state.SupervisorState) {
	var unclassified []*state.Message
	for i := range st.RecentMessages {
		if st.RecentMessages[i].Emotion == nil {
			unclassified = append(unclassified, &st.RecentMessages[i])
		}
	}
	if len(unclassified) == 0 {
		if st.GroupSentiment == "" {
			st.GroupSentiment = "neutral"
		}
		return
	}

	var listing strings.Builder
	for _, m := range unclassified {
		fmt.Fprintf(&listing, "- %s from %s: %s\n", m.MessageID, m.DisplayName(), m.Text)
	}

	text := prompt.MustRender("emotion_analysis", map[string]string{
		"group_name":   st.GroupMetadata.Name,
		"group_topic":  st.GroupMetadata.Topic,
		"conversation": prompt.FormatConversation(st.RecentMessages, prompt.FormatOptions{IncludeTimestamp: true, Agents: a.agents}),
		"unclassified": listing.String(),
	})

	resp, err := a.classify(ctx, text)
	if err != nil {
		// one in-line retry, then fail every leftover with an ERROR label
		a.log.Warn("emotion classification failed, retrying once", "error", err)
		resp, err = a.classify(ctx, text)
	}
	if err != nil {
		a.log.Error("emotion classification failed twice", "error", err)
		for _, m := range unclassified {
			m.Emotion = &state.Emotion{Emotion: "ERROR", Justification: err.Error()}
		}
		st.GroupSentiment = "ERROR: sentiment analysis failed: " + err.Error()
		return
	}

	byID := make(map[string]*state.Emotion, len(resp.MessageEmotions))
	for _, e := range resp.MessageEmotions {
		byID[e.MessageID] = &state.Emotion{Emotion: e.Emotion, Justification: e.Justification}
	}
	for _, m := range unclassified {
		if e, ok := byID[m.MessageID]; ok {
			m.Emotion = e
		} else {
			m.Emotion = &state.Emotion{Emotion: "ERROR", Justification: "missing from classifier response"}
		}
	}
	if s := strings.TrimSpace(resp.GroupSentiment); s != "" {
		st.GroupSentiment = s
	} else if st.GroupSentiment == "" {
		st.GroupSentiment = "neutral"
	}
}

func (a *EmotionAnalyzer) classify(ctx context.Context, text string) (*emotionResponse, error) {
	ns := a.cfg.NodeSettings(emotionNode)
	completion, err := a.llm.Complete(ctx, providers.CompletionRequest{
		Prompt:      text,
		Model:       ns.Model,
		Temperature: ns.Temperature,
	})
	if err != nil {
		return nil, err
	}
	var resp emotionResponse
	if err := json.Unmarshal([]byte(prompt.StripCodeFence(completion.Text)), &resp); err != nil {
		return nil, fmt.Errorf("parse emotion response: %w", err)
	}
	return &resp, nil
}
