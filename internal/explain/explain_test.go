package explain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
)

type stubCompleter struct {
	calls   int
	content string
	err     error
	block   bool
}

func (s *stubCompleter) CreateChatCompletion(ctx context.Context, _ ChatCompletionRequest) (ChatCompletionResponse, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return ChatCompletionResponse{}, ctx.Err()
	}
	var resp ChatCompletionResponse
	if s.err != nil {
		return resp, s.err
	}
	resp.Choices = append(resp.Choices, struct {
		Message Message `json:"message"`
	}{Message: Message{Role: "assistant", Content: s.content}})
	return resp, nil
}

func newExplainer(c Capability) *Explainer {
	return NewExplainer(c, 50*time.Millisecond, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testRequest() Request {
	return Request{
		Locality: "Iztapalapa",
		Hazard:   models.HazardSummary{Locality: "Iztapalapa", Category: models.HazardCategoryHigh},
		Rainfall: []RainfallSummary{{Horizon: models.Horizon24h, TotalMM: 12.5}},
	}
}

func TestExplainer_UsesModelOutput(t *testing.T) {
	stub := &stubCompleter{content: "```json\n{\"risk_factors\":[\"heavy_rain\",\"heavy_rain\",\" subsidence \"],\"summary\":\"Expect street flooding.\",\"recommendations\":\"Avoid underpasses\"}\n```"}

	out, mode := newExplainer(NewLLMCapability(stub, "gpt-4o-mini", 0.2)).Explain(context.Background(), testRequest())

	assert.Equal(t, models.AnalysisModeLLM, mode)
	assert.Equal(t, []string{"heavy_rain", "subsidence"}, out.RiskFactors)
	assert.Equal(t, "Expect street flooding.", out.Summary)
	assert.Equal(t, []string{"Avoid underpasses"}, out.Recommendations)
}

func TestExplainer_FallsBackToDefault(t *testing.T) {
	tests := []struct {
		name string
		stub *stubCompleter
	}{
		{"transport error", &stubCompleter{err: errors.New("connection reset")}},
		{"plain text", &stubCompleter{content: "It will probably rain a lot."}},
		{"missing summary", &stubCompleter{content: `{"risk_factors":[],"recommendations":["stay home"]}`}},
		{"missing recommendations", &stubCompleter{content: `{"summary":"Rain.","recommendations":[]}`}},
		{"wrong list type", &stubCompleter{content: `{"summary":"Rain.","recommendations":42}`}},
		{"timeout", &stubCompleter{block: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, mode := newExplainer(NewLLMCapability(tt.stub, "m", 0)).Explain(context.Background(), testRequest())

			assert.Equal(t, models.AnalysisModeDefault, mode)
			assert.Equal(t, Default(), out)
			assert.Equal(t, 1, tt.stub.calls, "capability is called at most once")
		})
	}
}

func TestExplainer_UnavailableNeverCalls(t *testing.T) {
	e := newExplainer(Unavailable{})
	assert.False(t, e.Available())

	out, mode := e.Explain(context.Background(), testRequest())
	assert.Equal(t, models.AnalysisModeDefault, mode)
	assert.Equal(t, Default(), out)

	assert.False(t, newExplainer(nil).Available())
}

func TestDefault_Shape(t *testing.T) {
	d := Default()
	assert.Equal(t, []string{"rainfall_intensity", "drainage_capacity", "zone_topography"}, d.RiskFactors)
	assert.NotEmpty(t, d.Summary)
	assert.Len(t, d.Recommendations, 2)
}

func TestNewRequest_SummarisesWindows(t *testing.T) {
	mm := 4.0
	w := models.ForecastWindow{
		Horizon: models.Horizon24h,
		Source:  models.ProvenanceLive,
		Observations: []models.WeatherObservation{
			{RainfallMM: &mm, RainProbability: 30},
			{RainProbability: 85},
		},
	}
	assessments := []models.RiskAssessment{{Horizon: models.Horizon24h, Category: models.RiskCategoryModerate}}

	req := NewRequest("Tlalpan", models.HazardSummary{Locality: "Tlalpan"}, []models.ForecastWindow{w}, assessments)

	require.Len(t, req.Rainfall, 1)
	assert.Equal(t, 4.0, req.Rainfall[0].TotalMM)
	assert.Equal(t, 85.0, req.Rainfall[0].PeakProbability)
	assert.Equal(t, 2, req.Rainfall[0].ObservationCount)
	assert.Equal(t, models.RiskCategoryModerate, req.Rainfall[0].Category)
}

func TestChatClient_CreateChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		assert.Len(t, req.Messages, 2)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{}"}}]}`))
	}))
	defer srv.Close()

	client, err := NewChatClient("secret", srv.URL, time.Second)
	require.NoError(t, err)

	resp, err := client.CreateChatCompletion(context.Background(), ChatCompletionRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "{}", resp.Choices[0].Message.Content)
}

func TestChatClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewChatClient("secret", srv.URL, time.Second)
	require.NoError(t, err)

	_, err = client.CreateChatCompletion(context.Background(), ChatCompletionRequest{Model: "m"})
	assert.ErrorContains(t, err, "status=503")
}

func TestNewChatClient_RequiresKey(t *testing.T) {
	_, err := NewChatClient("  ", "", time.Second)
	assert.Error(t, err)
}
