package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVisibleText(t *testing.T) {
	html := `<html><head><title>x</title><style>.a{color:red}</style></head>
	<body>
		<script>var tracking = true;</script>
		<h1>Order   confirmed</h1>
		<p>Thank you
		for shopping</p>
		<noscript>enable javascript</noscript>
	</body></html>`

	got := extractVisibleText(html)
	assert.Equal(t, "Order confirmed Thank you for shopping", got)
}

func TestExtractVisibleTextSkipsComments(t *testing.T) {
	got := extractVisibleText("<body><!-- hidden note --><p>visible</p></body>")
	assert.Equal(t, "visible", got)
}

func TestExtractVisibleTextToleratesFragments(t *testing.T) {
	got := extractVisibleText("just some <b>bold</b> text, no document")
	assert.Equal(t, "just some bold text, no document", got)
}

func TestContainsAnyIndicators(t *testing.T) {
	assert.True(t, containsAny("thank you for your order", positiveIndicators))
	assert.True(t, containsAny("your card was declined", negativeIndicators))
	assert.False(t, containsAny("reference 84113", positiveIndicators))
	assert.False(t, containsAny("reference 84113", negativeIndicators))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "NO", firstLine("NO\nbecause the dialog is open"))
	assert.Equal(t, "YES", firstLine("  YES  "))
}
