package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"tutorcast/internal/pipeline"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	stageLabelWidth = 22
	stageIndent     = "  "
)

// renderStageLine formats one pipeline stage with its projected state,
// e.g. "  Applying zoom effects: [PROCESSING]".
func renderStageLine(stage pipeline.Step, state pipeline.StepState, colorize bool) string {
	label := pipeline.StepLabel(stage)
	marker := fmt.Sprintf("[%s]", stageStateLabel(state))
	base := fmt.Sprintf("%s%-*s %s %s", stageIndent, stageLabelWidth, label+":", stageGlyph(state), marker)
	if colorize {
		if color := stageStateColor(state); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func stageStateLabel(state pipeline.StepState) string {
	switch state {
	case pipeline.StateCompleted:
		return "DONE"
	case pipeline.StateProcessing:
		return "PROCESSING"
	case pipeline.StateFailed:
		return "FAILED"
	default:
		return "PENDING"
	}
}

func stageGlyph(state pipeline.StepState) string {
	switch state {
	case pipeline.StateCompleted:
		return "*"
	case pipeline.StateProcessing:
		return ">"
	case pipeline.StateFailed:
		return "x"
	default:
		return "."
	}
}

func stageStateColor(state pipeline.StepState) string {
	switch state {
	case pipeline.StateCompleted:
		return ansiGreen
	case pipeline.StateProcessing:
		return ansiYellow
	case pipeline.StateFailed:
		return ansiRed
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
