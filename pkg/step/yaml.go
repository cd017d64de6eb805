package step

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// rawStep is the flat YAML shape for a step; the relevant fields depend on the
// action kind.
type rawStep struct {
	Action    string `yaml:"action"`
	Expected  string `yaml:"expected"`
	URL       string `yaml:"url"`
	Selector  string `yaml:"selector"`
	Text      string `yaml:"text"`
	Role      string `yaml:"role"`
	Label     string `yaml:"label"`
	Value     string `yaml:"value"`
	Condition string `yaml:"condition"`
	Direction string `yaml:"direction"`
	Pixels    int    `yaml:"pixels"`
	Duration  string `yaml:"duration"`
}

// UnmarshalYAML decodes a step from its flat plan-file representation into the
// typed parameter variant for its action kind.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var raw rawStep
	if err := node.Decode(&raw); err != nil {
		return err
	}

	kind := Kind(raw.Action)
	var params Params
	switch kind {
	case KindNavigate:
		params = NavigateParams{URL: raw.URL}
	case KindClick:
		params = ClickParams{Selector: raw.Selector, Text: raw.Text, Role: raw.Role}
	case KindFill:
		params = FillParams{Selector: raw.Selector, Label: raw.Label, Value: raw.Value}
	case KindSelect:
		params = SelectParams{Selector: raw.Selector, Value: raw.Value}
	case KindSubmit:
		params = SubmitParams{Selector: raw.Selector}
	case KindExtract:
		params = ExtractParams{Selector: raw.Selector}
	case KindVerify:
		params = VerifyParams{Selector: raw.Selector, Condition: raw.Condition}
	case KindScroll:
		params = ScrollParams{Direction: raw.Direction, Pixels: raw.Pixels}
	case KindWait:
		var d time.Duration
		if raw.Duration != "" {
			parsed, err := time.ParseDuration(raw.Duration)
			if err != nil {
				return fmt.Errorf("invalid wait duration %q: %w", raw.Duration, err)
			}
			d = parsed
		}
		params = WaitParams{Duration: d, Selector: raw.Selector}
	case KindScreenshot:
		params = ScreenshotParams{}
	default:
		return fmt.Errorf("unknown action kind %q", raw.Action)
	}

	s.Action = kind
	s.Expected = raw.Expected
	s.Params = params
	return s.Validate()
}
