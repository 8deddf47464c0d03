package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/circuitbreaker"
)

// scriptedModel replies with queued outcomes, then repeats the last one.
type scriptedModel struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
	configs []*genai.GenerateContentConfig
}

type reply struct {
	text  string
	err   error
	delay time.Duration
}

func (m *scriptedModel) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, contents[0].Parts[0].Text)
	m.configs = append(m.configs, config)
	r := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(r.text, genai.RoleModel)}},
	}, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func testClient(m *scriptedModel) *Client {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.RequestsPerMinute = 6000
	cfg.Burst = 100
	cfg.BreakerThreshold = 3
	cfg.BreakerTimeout = time.Hour
	return NewWithModel(m, cfg)
}

func lightRequest(ct curriculum.ContentType) curriculum.GenerationRequest {
	return curriculum.GenerationRequest{
		Selector:    curriculum.NewSelector("CBSE", 10, "", "Science", "Light"),
		Language:    curriculum.LanguageEnglish,
		ContentType: ct,
	}
}

func TestGenerate_BuildsRecord(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: "  # Light\n\nReflection ...  "}}}
	c := testClient(m)

	rec, err := c.Generate(context.Background(), lightRequest(curriculum.ContentMCQ))
	require.NoError(t, err)

	assert.Equal(t, "# Light\n\nReflection ...", rec.Body)
	assert.Equal(t, "light", rec.Title)
	assert.Equal(t, "Practice MCQs", rec.Subtitle)
	assert.Equal(t, "science", rec.SubjectName)
	assert.Equal(t, curriculum.ContentMCQ, rec.ContentType)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "Chapter: light")
	assert.Contains(t, m.prompts[0], "multiple choice")
	require.NotNil(t, m.configs[0].Temperature)
	assert.InDelta(t, 0.4, *m.configs[0].Temperature, 0.001)
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	m := &scriptedModel{replies: []reply{
		{err: genai.APIError{Code: 503, Status: "UNAVAILABLE"}},
		{err: errors.New("connection reset by peer")},
		{text: "body"},
	}}
	c := testClient(m)

	rec, err := c.Generate(context.Background(), lightRequest(curriculum.ContentNotesSimple))
	require.NoError(t, err)
	assert.Equal(t, "body", rec.Body)
	assert.Equal(t, 3, m.calls())
}

func TestGenerate_QuotaIsNotRetried(t *testing.T) {
	m := &scriptedModel{replies: []reply{{err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}}}}
	c := testClient(m)

	_, err := c.Generate(context.Background(), lightRequest(curriculum.ContentNotesSimple))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrGenerationFailed)
	assert.Equal(t, curriculum.FailureQuota, curriculum.FailureReasonOf(err))
	assert.Equal(t, 1, m.calls())
}

func TestGenerate_EmptyResponse(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: "   "}}}
	c := testClient(m)

	_, err := c.Generate(context.Background(), lightRequest(curriculum.ContentNotesSimple))
	assert.Equal(t, curriculum.FailureEmptyResponse, curriculum.FailureReasonOf(err))
	assert.Equal(t, 1, m.calls())
}

func TestGenerate_Timeout(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: "late", delay: time.Second}}}
	c := testClient(m)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Generate(ctx, lightRequest(curriculum.ContentNotesSimple))
	assert.Equal(t, curriculum.FailureTimeout, curriculum.FailureReasonOf(err))
}

func TestGenerate_BadRequestIsPermanent(t *testing.T) {
	m := &scriptedModel{replies: []reply{{err: genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}}}}
	c := testClient(m)

	_, err := c.Generate(context.Background(), lightRequest(curriculum.ContentNotesSimple))
	assert.Equal(t, curriculum.FailureUpstream, curriculum.FailureReasonOf(err))
	assert.Equal(t, 1, m.calls())
}

func TestGenerate_BreakerOpensOnRepeatedFailures(t *testing.T) {
	m := &scriptedModel{replies: []reply{{err: genai.APIError{Code: 400}}}}
	c := testClient(m)

	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), lightRequest(curriculum.ContentNotesSimple))
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.BreakerState())

	_, err := c.Generate(context.Background(), lightRequest(curriculum.ContentNotesSimple))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, curriculum.FailureUpstream, curriculum.FailureReasonOf(err))
	assert.Equal(t, 3, m.calls())
}

func TestListChapters(t *testing.T) {
	m := &scriptedModel{replies: []reply{{text: "1. Chemical Reactions\n2) Acids, Bases and Salts\n\n- Light\n"}}}
	c := testClient(m)

	sel := curriculum.NewSelector("CBSE", 10, "", "Science", "")
	chapters, err := c.ListChapters(context.Background(), sel, curriculum.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chemical Reactions", "Acids, Bases and Salts", "Light"}, chapters)

	require.NotNil(t, m.configs[0].Temperature)
	assert.Zero(t, *m.configs[0].Temperature)
	assert.Contains(t, m.prompts[0], "one chapter title per line")
}

func TestParseChapters(t *testing.T) {
	assert.Equal(t, []string{"Motion", "Force"}, parseChapters("* Motion\n# Force\n\n"))
	assert.Equal(t, []string{"3D Geometry"}, parseChapters("3D Geometry"))
	assert.Empty(t, parseChapters(" \n \n"))
}

func TestLessonPrompt_MentionsStreamAndLanguage(t *testing.T) {
	req := curriculum.GenerationRequest{
		Selector:    curriculum.NewSelector("BSEB", 11, "Science", "Physics", "Units"),
		Language:    curriculum.LanguageHindi,
		ContentType: curriculum.ContentAudioScript,
	}
	p := lessonPrompt(req)
	assert.Contains(t, p, "stream")
	assert.Contains(t, p, curriculum.LanguageHindi.DisplayName())
	assert.Contains(t, p, "spoken lesson")
}
