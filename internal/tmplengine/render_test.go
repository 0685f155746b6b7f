package tmplengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderString_SubstitutesKnownKeys(t *testing.T) {
	out := RenderString("gpu={gpu} count={count}", map[string]string{
		"gpu":   "A100",
		"count": "2",
	})
	assert.Equal(t, "gpu=A100 count=2", out)
}

func TestRenderString_LeavesUnknownKeysLiteral(t *testing.T) {
	out := RenderString("hello {name}, id={missing}", map[string]string{
		"name": "world",
	})
	assert.Equal(t, "hello world, id={missing}", out)
}

func TestRenderString_EscapesDoubleBraces(t *testing.T) {
	out := RenderString("{{literal}} and {key}", map[string]string{"key": "value"})
	assert.Equal(t, "{literal} and value", out)
}

func TestRenderString_NoReSubstitutionOfReplacementValue(t *testing.T) {
	// A replacement value that itself looks like a placeholder must not be
	// substituted again — this is the single-pass guarantee.
	out := RenderString("{k}", map[string]string{"k": "{k}"})
	assert.Equal(t, "{k}", out)
}

func TestRenderString_MixedEscapesAndPlaceholders(t *testing.T) {
	out := RenderString("{a}{{b}}{c}", map[string]string{"a": "X", "c": "Y"})
	// {{b}} is an escaped literal and is never eligible for substitution,
	// even though "b" is not in the replacements map either.
	assert.Equal(t, "X{b}Y", out)
}
