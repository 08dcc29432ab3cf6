package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/llm"
	"github.com/soyeahso/paxxium/internal/logging"
)

const profileSystemPrompt = `You are an expert in identifying the personality traits of your user.
Your response must be in json format with the following structure:
- analysis: provide a personality analysis of the user based on their answers to the questions. Do not simply summarize the answers, but provide a unique analysis of the user.
- news_topics: a list of queries that are one or two words and make a good query parameter for a news API. Derive the topics from your analysis. Example formats: 2 words - Rock climbing - 1 word - AI`

// ClientSource hands out a provider client bound to one user's key. Pool
// implements it.
type ClientSource interface {
	Client(ctx context.Context, userID string) (llm.Client, error)
}

// ProfileStore reads answers and stores the derived analysis.
// store.ProfileStore implements it.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	SaveAnalysis(ctx context.Context, userID, analysis string, topics []string) error
}

// Analyst runs the one-shot, non-streaming completions: profile analysis,
// news summaries and image generation. They go through a FailoverClient.
type Analyst struct {
	clients    ClientSource
	models     *llm.Registry
	profiles   ProfileStore
	fallbacks  []string
	imageModel string
	log        *logging.Logger
}

// NewAnalyst creates an analyst.
func NewAnalyst(clients ClientSource, models *llm.Registry, profiles ProfileStore, fallbacks []string, imageModel string, log *logging.Logger) *Analyst {
	return &Analyst{
		clients:    clients,
		models:     models,
		profiles:   profiles,
		fallbacks:  fallbacks,
		imageModel: imageModel,
		log:        log.Sub("agent.analyst"),
	}
}

type profileAnalysis struct {
	Analysis   string   `json:"analysis"`
	NewsTopics []string `json:"news_topics"`
}

// AnalyzeProfile derives an analysis and news topics from the user's stored
// answers and saves them on the profile.
func (a *Analyst) AnalyzeProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := a.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if len(profile.Answers) == 0 {
		return nil, fmt.Errorf("profile has no answers to analyze")
	}

	var b strings.Builder
	for _, qa := range profile.Answers {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", qa.Question, qa.Answer)
	}

	resp, err := a.complete(ctx, userID, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: profileSystemPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	var out profileAnalysis
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		return nil, &llm.ProviderError{Provider: "analyst", Message: "malformed analysis: " + err.Error()}
	}
	if err := a.profiles.SaveAnalysis(ctx, userID, out.Analysis, out.NewsTopics); err != nil {
		return nil, &domain.PersistenceError{Op: "save analysis", Err: err}
	}

	profile.Analysis = out.Analysis
	profile.NewsTopics = out.NewsTopics
	a.log.Info().Str("userId", userID).Int("topics", len(out.NewsTopics)).Msg("profile analyzed")
	return profile, nil
}

// Summarize condenses an article with a single user-turn completion.
func (a *Analyst) Summarize(ctx context.Context, userID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("nothing to summarize")
	}
	resp, err := a.complete(ctx, userID, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: text}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// GenerateImage creates one image and returns its URL. Size, quality and
// style are lower-cased before they reach the provider.
func (a *Analyst) GenerateImage(ctx context.Context, userID string, req llm.ImageRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}
	client, err := a.clients.Client(ctx, userID)
	if err != nil {
		return "", err
	}
	if req.Model == "" {
		req.Model = a.imageModel
	}
	req.Size = strings.ToLower(req.Size)
	req.Quality = strings.ToLower(req.Quality)
	req.Style = strings.ToLower(req.Style)

	fc := NewFailoverClient(client, req.Model, nil, a.log)
	return fc.GenerateImage(ctx, req)
}

func (a *Analyst) complete(ctx context.Context, userID string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	client, err := a.clients.Client(ctx, userID)
	if err != nil {
		return nil, err
	}
	model, err := a.models.Resolve("")
	if err != nil {
		return nil, &domain.ConfigurationError{Reason: "resolve model", Err: err}
	}
	req.Model = model
	return NewFailoverClient(client, model, a.fallbacks, a.log).Complete(ctx, req)
}
