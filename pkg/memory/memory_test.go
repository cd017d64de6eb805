package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMABlending(t *testing.T) {
	tests := []struct {
		name  string
		old   float64
		event float64
		want  float64
	}{
		{name: "failure against perfect record", old: 100, event: 0, want: 70},
		{name: "success against empty record", old: 0, event: 100, want: 30},
		{name: "success against proven record", old: 85, event: 100, want: 89.5},
		{name: "failure against weak record", old: 30, event: 0, want: 21},
		{name: "steady state success", old: 100, event: 100, want: 100},
		{name: "steady state failure", old: 0, event: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ema(tt.old, tt.event), 0.001)
		})
	}
}

func TestEMARounding(t *testing.T) {
	// 0.3*100 + 0.7*33.333 = 53.3331, rounds to two decimals.
	got := ema(33.333, 100)
	assert.InDelta(t, 53.33, got, 0.001)
}

func TestHasSolutionNilRecord(t *testing.T) {
	var rec *Record
	assert.False(t, rec.HasSolution())

	rec = &Record{}
	assert.False(t, rec.HasSolution())

	rec.SolutionMethod = "text_match"
	assert.True(t, rec.HasSolution())
}

func TestValidSelector(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     bool
	}{
		{name: "simple class", selector: "button.submit-btn", want: true},
		{name: "id", selector: "#checkout", want: true},
		{name: "attribute match", selector: `input[name="email"]`, want: true},
		{name: "pseudo class", selector: "li:nth-child(2) > a", want: true},
		{name: "empty", selector: "", want: false},
		{name: "too long", selector: strings.Repeat("a", 501), want: false},
		{name: "max length ok", selector: strings.Repeat("a", 500), want: true},
		{name: "template braces", selector: "div.{{cls}}", want: false},
		{name: "error text masquerading", selector: "failed to find element\nat line 3", want: false},
		{name: "non ascii", selector: "button.übermit", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidSelector(tt.selector))
		})
	}
}
