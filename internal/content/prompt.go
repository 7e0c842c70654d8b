package content

import "strings"

// instructionSections are the level-2 headings kept from a unit prompt file.
var instructionSections = map[string]bool{
	"役割設定":   true,
	"基本指針":   true,
	"対話の進め方": true,
	"絶対に守ること": true,
}

// extractInstruction keeps the instruction sections of a Markdown prompt,
// headings included, and drops everything else.
func extractInstruction(markdown string) string {
	var kept []string
	keep := false
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "## ") {
			keep = instructionSections[strings.TrimSpace(line[3:])]
		}
		if keep {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
