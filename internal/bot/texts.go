package bot

import (
	_ "embed"
	"strings"
)

//go:embed texts/start.txt
var startText string

//go:embed texts/help.txt
var helpText string

func init() {
	startText = strings.TrimSpace(startText)
	helpText = strings.TrimSpace(helpText)
}
