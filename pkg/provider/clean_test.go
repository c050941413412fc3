package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanReplyPlainText(t *testing.T) {
	text, err := CleanReply(`<div><p>Hello there.</p><p>Second paragraph.</p></div>`, CleanupHints{})
	require.NoError(t, err)
	assert.Equal(t, "Hello there.\nSecond paragraph.", text)
}

func TestCleanReplyRefencesCodeBlocks(t *testing.T) {
	html := `<div>
		<p>Use this:</p>
		<div class="code-block">
			<div class="toolbar"><button>Copy</button></div>
			<code>fmt.Println("hi")</code>
		</div>
		<p>Done.</p>
	</div>`

	text, err := CleanReply(html, CleanupHints{CodeBlockSelector: "div.code-block"})
	require.NoError(t, err)
	assert.Contains(t, text, "```\nfmt.Println(\"hi\")\n```")
	assert.NotContains(t, text, "Copy", "toolbar text should be stripped")
	assert.Contains(t, text, "Use this:")
	assert.Contains(t, text, "Done.")
}

func TestCleanReplyCustomCodeTextSelector(t *testing.T) {
	html := `<div class="code-block">
		<span class="lang">go</span>
		<div class="inner">x := 1</div>
	</div>`

	text, err := CleanReply(html, CleanupHints{
		CodeBlockSelector: "div.code-block",
		CodeTextSelector:  "div.inner",
	})
	require.NoError(t, err)
	assert.Equal(t, "```\nx := 1\n```", text)
}

func TestCleanReplyDropsHiddenNodes(t *testing.T) {
	html := `<div>visible<div style="display: none;">thinking scratchpad</div></div>`

	text, err := CleanReply(html, CleanupHints{DropHiddenNodes: true})
	require.NoError(t, err)
	assert.Equal(t, "visible", text)

	text, err = CleanReply(html, CleanupHints{})
	require.NoError(t, err)
	assert.Contains(t, text, "thinking scratchpad")
}

func TestCleanReplyCollapsesBlankLines(t *testing.T) {
	text, err := CleanReply("<div><p>a</p><div></div><div></div><p>b</p></div>", CleanupHints{})
	require.NoError(t, err)
	assert.Equal(t, "a\nb", text)
}

func TestCleanReplyEmpty(t *testing.T) {
	text, err := CleanReply("<div>   </div>", CleanupHints{})
	require.NoError(t, err)
	assert.Empty(t, text)
}
