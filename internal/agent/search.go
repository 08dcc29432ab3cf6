package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/paxxium/internal/version"
)

// DefaultSearchEndpoint is the SerpAPI JSON endpoint.
const DefaultSearchEndpoint = "https://serpapi.com/search.json"

// Search answers questions about current events through a SerpAPI style
// JSON search endpoint.
type Search struct {
	endpoint string
	engine   string
	apiKey   string
	results  int
	http     *http.Client
}

// NewSearch creates the search capability. A nil client gets a 30s timeout.
func NewSearch(endpoint, engine, apiKey string, results int, client *http.Client) *Search {
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	if engine == "" {
		engine = "google"
	}
	if results <= 0 {
		results = 5
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Search{endpoint: endpoint, engine: engine, apiKey: apiKey, results: results, http: client}
}

func (s *Search) Kind() CapabilityKind { return KindSearch }

func (s *Search) Description() string {
	return "useful for when you need to answer questions about current events. You should ask targeted questions"
}

func (s *Search) InputSchema() string {
	return `{"type":"object","properties":{"query":{"type":"string","description":"The search query"}},"required":["query"]}`
}

type searchInput struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Error     string `json:"error,omitempty"`
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answer_box,omitempty"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *Search) Invoke(ctx context.Context, input string) (string, error) {
	var in searchInput
	if err := json.Unmarshal([]byte(input), &in); err != nil {
		return "", fmt.Errorf("invalid search input: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("query parameter is required")
	}

	params := url.Values{}
	params.Set("q", in.Query)
	params.Set("engine", s.engine)
	params.Set("api_key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if sr.Error != "" {
		return "", fmt.Errorf("search API error: %s", sr.Error)
	}
	return s.format(in.Query, sr), nil
}

func (s *Search) format(query string, sr searchResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for: %s\n\n", query)

	if sr.AnswerBox != nil {
		if a := firstNonEmpty(sr.AnswerBox.Answer, sr.AnswerBox.Snippet); a != "" {
			fmt.Fprintf(&b, "Answer: %s\n\n", a)
		}
	}
	if len(sr.OrganicResults) == 0 {
		b.WriteString("No results found.\n")
		return b.String()
	}
	for i, r := range sr.OrganicResults {
		if i >= s.results {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "   URL: %s\n", r.Link)
		fmt.Fprintf(&b, "   %s\n\n", r.Snippet)
	}
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
