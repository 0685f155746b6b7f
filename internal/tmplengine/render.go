// Package tmplengine implements the single-pass {key} template substitution
// used to render provider launch scripts and SkyPilot task YAML.
package tmplengine

import (
	"os"
	"regexp"
	"strings"
)

const (
	sentinelL = "\x00LBRACE\x00"
	sentinelR = "\x00RBRACE\x00"
)

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// RenderString substitutes {key} placeholders in template using
// replacements, leaving unknown keys untouched and treating {{ / }} as
// escaped literal braces. It is a single pass: a replacement value that
// itself contains {key}-looking text is never re-substituted.
func RenderString(template string, replacements map[string]string) string {
	content := template
	content = strings.ReplaceAll(content, "{{", sentinelL)
	content = strings.ReplaceAll(content, "}}", sentinelR)

	content = placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		key := match[1 : len(match)-1]
		if val, ok := replacements[key]; ok {
			return val
		}
		return match
	})

	content = strings.ReplaceAll(content, sentinelL, "{")
	content = strings.ReplaceAll(content, sentinelR, "}")
	return content
}

// RenderFile reads templatePath and renders it with RenderString.
func RenderFile(templatePath string, replacements map[string]string) (string, error) {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return "", err
	}
	return RenderString(string(raw), replacements), nil
}
