package step

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValidateRequiresParams(t *testing.T) {
	s := Step{Action: KindClick}
	assert.Error(t, s.Validate())

	s = Step{Action: "teleport", Params: ClickParams{Selector: "a"}}
	assert.Error(t, s.Validate())

	s = Step{Action: KindClick, Params: NavigateParams{URL: "https://x"}}
	assert.Error(t, s.Validate())
}

func TestValidatePerKindRequirements(t *testing.T) {
	assert.Error(t, New(NavigateParams{}).Validate())
	assert.NoError(t, New(NavigateParams{URL: "https://example.com"}).Validate())

	assert.Error(t, New(ClickParams{}).Validate())
	assert.NoError(t, New(ClickParams{Text: "Buy"}).Validate())

	assert.Error(t, New(FillParams{Value: "v"}).Validate())
	assert.NoError(t, New(FillParams{Label: "Email", Value: "v"}).Validate())

	assert.Error(t, New(VerifyParams{}).Validate())
	assert.NoError(t, New(VerifyParams{Condition: "order confirmed"}).Validate())

	assert.NoError(t, New(ScreenshotParams{}).Validate())
}

func TestSelectorSubstitution(t *testing.T) {
	s := New(ClickParams{Selector: "button.old", Text: "Buy"})
	assert.Equal(t, "button.old", s.Selector())

	replaced := s.WithSelector("button.new")
	assert.Equal(t, "button.new", replaced.Selector())
	// The original is untouched and the text fallback survives.
	assert.Equal(t, "button.old", s.Selector())
	assert.Equal(t, "Buy", replaced.Params.(ClickParams).Text)

	// Kinds without a selector pass through unchanged.
	nav := New(NavigateParams{URL: "https://example.com"})
	assert.Equal(t, nav, nav.WithSelector("button.new"))
}

func TestUnmarshalYAMLPlan(t *testing.T) {
	src := `
- action: navigate
  url: https://shop.example.com
- action: fill
  selector: input.email
  label: Email
  value: a@b.c
- action: submit
  selector: button.checkout
  expected: order confirmed
- action: wait
  duration: 1500ms
- action: extract
  selector: .order-id
`
	var steps []Step
	require.NoError(t, yaml.Unmarshal([]byte(src), &steps))
	require.Len(t, steps, 5)

	assert.Equal(t, KindNavigate, steps[0].Action)
	assert.Equal(t, NavigateParams{URL: "https://shop.example.com"}, steps[0].Params)

	fill, ok := steps[1].Params.(FillParams)
	require.True(t, ok)
	assert.Equal(t, "input.email", fill.Selector)
	assert.Equal(t, "Email", fill.Label)

	assert.Equal(t, "order confirmed", steps[2].Expected)

	wait, ok := steps[3].Params.(WaitParams)
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, wait.Duration)

	assert.Equal(t, ExtractParams{Selector: ".order-id"}, steps[4].Params)
}

func TestUnmarshalYAMLRejectsBadSteps(t *testing.T) {
	var steps []Step

	err := yaml.Unmarshal([]byte("- action: levitate\n"), &steps)
	assert.Error(t, err)

	err = yaml.Unmarshal([]byte("- action: navigate\n"), &steps)
	assert.Error(t, err)

	err = yaml.Unmarshal([]byte("- action: wait\n  duration: soon\n"), &steps)
	assert.Error(t, err)
}

func TestTraceLastData(t *testing.T) {
	trace := Trace{
		{Success: true, Data: "first"},
		{Success: true},
	}
	assert.Equal(t, "first", trace.LastData())

	trace = append(trace, Result{Success: true, Data: "latest"})
	assert.Equal(t, "latest", trace.LastData())

	assert.Equal(t, "", Trace{}.LastData())
}
