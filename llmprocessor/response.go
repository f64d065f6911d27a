package llmprocessor

import (
	"regexp"
	"strings"
)

var fencedPythonRe = regexp.MustCompile("(?s)```python\\s*\\n(.*?)```")
var fencedAnyRe = regexp.MustCompile("(?s)```\\s*\\n(.*?)```")
var codeStartRe = regexp.MustCompile(`^(import|from|def|class|#|""")`)

// CleanResponse extracts Python source from an LLM response: prefer a
// ```python fenced block, fall back to any fenced block, and failing that
// locate the first line that looks like the start of real Python and
// return from there.
func CleanResponse(response string) string {
	response = strings.TrimSpace(response)

	if m := fencedPythonRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAnyRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}

	lines := strings.Split(response, "\n")
	for i, line := range lines {
		if codeStartRe.MatchString(strings.TrimSpace(line)) {
			return strings.Join(lines[i:], "\n")
		}
	}
	return response
}
