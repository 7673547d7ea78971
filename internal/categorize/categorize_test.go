package categorize

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compintel/internal/model"
	"github.com/sells-group/compintel/pkg/anthropic"
)

// scriptedClient replays a fixed sequence of responses across calls.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	systems   []string
}

func (c *scriptedClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	c.systems = append(c.systems, req.System)

	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	text := c.responses[len(c.responses)-1]
	if i < len(c.responses) {
		text = c.responses[i]
	}
	return &anthropic.MessageResponse{
		Text:  text,
		Usage: anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}, nil
}

func complaint(text string) model.Complaint {
	return model.Complaint{Text: text, SourceType: model.SourceTypeForum, SourceURLs: []string{"u"}}
}

// TestCategorize_ValidResponse checks the straightforward path.
func TestCategorize_ValidResponse(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"category": "Performance", "confidence": 0.92}`,
	}}

	c := NewCategorizer(client, Options{})
	cat, conf, err := c.Categorize(context.Background(), complaint("terminal crashes nightly"))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryPerformance, cat)
	assert.InDelta(t, 0.92, conf, 1e-9)
	assert.Equal(t, 1, client.calls)
}

// TestCategorize_FencedJSON verifies markdown-fenced responses still parse.
func TestCategorize_FencedJSON(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"```json\n{\"category\": \"Billing & Contract\", \"confidence\": 0.8}\n```",
	}}

	c := NewCategorizer(client, Options{})
	cat, _, err := c.Categorize(context.Background(), complaint("double charged again"))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryBilling, cat)
}

// TestCategorize_StrictRetryAfterViolation verifies an out-of-taxonomy
// answer triggers exactly one retry with the strict prompt.
func TestCategorize_StrictRetryAfterViolation(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"category": "Hardware Problems", "confidence": 0.9}`,
		`{"category": "Product Gaps", "confidence": 0.85}`,
	}}

	c := NewCategorizer(client, Options{})
	cat, conf, err := c.Categorize(context.Background(), complaint("no gift card support"))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryProductGaps, cat)
	assert.InDelta(t, 0.85, conf, 1e-9)

	require.Equal(t, 2, client.calls)
	assert.Equal(t, systemPrompt, client.systems[0])
	assert.Equal(t, strictSystemPrompt, client.systems[1])
}

// TestCategorize_DoubleViolation verifies a second bad answer surfaces as a
// schema violation, not a third call.
func TestCategorize_DoubleViolation(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`not json at all`,
		`{"category": "Misc", "confidence": 2.0}`,
	}}

	c := NewCategorizer(client, Options{})
	_, _, err := c.Categorize(context.Background(), complaint("whatever"))
	require.Error(t, err)

	var sv *SchemaViolationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, 2, client.calls)
}

// TestCategorize_ConfidenceOutOfRange verifies confidence outside [0,1] is a
// schema violation.
func TestCategorize_ConfidenceOutOfRange(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"category": "Performance", "confidence": 1.7}`,
		`{"category": "Performance", "confidence": 0.7}`,
	}}

	c := NewCategorizer(client, Options{})
	cat, conf, err := c.Categorize(context.Background(), complaint("slow"))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryPerformance, cat)
	assert.InDelta(t, 0.7, conf, 1e-9)
	assert.Equal(t, 2, client.calls)
}

// TestCategorizeAll_FallbackToUncategorized verifies a complaint the model
// cannot legally categorize lands in the fallback bucket flagged for review,
// without failing the batch.
func TestCategorizeAll_FallbackToUncategorized(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`garbage`,
		`more garbage`,
	}}

	c := NewCategorizer(client, Options{Concurrency: 1})
	out, err := c.CategorizeAll(context.Background(), []model.Complaint{complaint("???")})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, model.CategoryUncategorized, out[0].Category)
	assert.Zero(t, out[0].CategoryConfidence)
	assert.True(t, out[0].NeedsReview)
}

// TestCategorizeAll_TransportErrorFallsBack verifies an API failure also
// degrades to Uncategorized rather than aborting.
func TestCategorizeAll_TransportErrorFallsBack(t *testing.T) {
	client := &scriptedClient{
		responses: []string{""},
		errs:      []error{eris.New("api down")},
	}

	c := NewCategorizer(client, Options{Concurrency: 1})
	out, err := c.CategorizeAll(context.Background(), []model.Complaint{complaint("x")})
	require.NoError(t, err)
	assert.Equal(t, model.CategoryUncategorized, out[0].Category)
	assert.True(t, out[0].NeedsReview)
}

// TestCategorizeAll_ConfidenceFloor verifies low-confidence answers keep
// their category but are flagged for review.
func TestCategorizeAll_ConfidenceFloor(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"category": "Service & Support", "confidence": 0.3}`,
	}}

	c := NewCategorizer(client, Options{ConfidenceFloor: 0.5, Concurrency: 1})
	out, err := c.CategorizeAll(context.Background(), []model.Complaint{complaint("meh support")})
	require.NoError(t, err)

	assert.Equal(t, model.CategoryServiceSupport, out[0].Category)
	assert.InDelta(t, 0.3, out[0].CategoryConfidence, 1e-9)
	assert.True(t, out[0].NeedsReview)
}

// TestCategorizeAll_PreservesOrder verifies results line up with inputs even
// under concurrency.
func TestCategorizeAll_PreservesOrder(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"category": "Performance", "confidence": 0.9}`,
	}}

	in := []model.Complaint{
		complaint("first"), complaint("second"), complaint("third"),
	}
	c := NewCategorizer(client, Options{Concurrency: 3})
	out, err := c.CategorizeAll(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].Text, out[i].Text)
		assert.Equal(t, model.CategoryPerformance, out[i].Category)
	}
}

func TestBreakdown(t *testing.T) {
	in := []model.Complaint{
		{Category: model.CategoryPerformance},
		{Category: model.CategoryPerformance},
		{Category: model.CategoryBilling},
		{}, // uncategorized input is skipped
	}
	got := Breakdown(in)
	assert.Equal(t, map[model.ComplaintCategory]int{
		model.CategoryPerformance: 2,
		model.CategoryBilling:     1,
	}, got)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", "Here you go:\n{\"a\":1}\nHope that helps!", `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}
