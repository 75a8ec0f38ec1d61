// Package parser extracts code artifacts and display segments from AI text.
package parser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/boblangley/artifact-forge/internal/types"
)

// DefaultLanguage is used when a fence carries no language tag.
const DefaultLanguage = "typescript"

// ErrNoArtifact is returned when the text has no File: header or no fenced
// block after it.
var ErrNoArtifact = errors.New("no single-file code block found")

var (
	// File: header, optionally behind a // comment
	headerPattern = regexp.MustCompile(`^[ \t]*(?://[ \t]*)?File:[ \t]*(.*\S)[ \t]*$`)
	// Opening fence with an optional tag directly after the backticks
	openFencePattern = regexp.MustCompile("^```([\\w+\\-]*)$")
)

const fence = "```"

// ParseArtifact locates a File: header and the first fenced block after it.
// Fences inside string literals and nested fences are not understood.
func ParseArtifact(text string) (types.CodeArtifact, error) {
	lines := strings.Split(text, "\n")

	header := -1
	var filePath string
	for i, line := range lines {
		if m := headerPattern.FindStringSubmatch(strings.TrimSuffix(line, "\r")); m != nil {
			header = i
			filePath = strings.TrimSpace(m[1])
			break
		}
	}
	if header < 0 || filePath == "" {
		return types.CodeArtifact{}, ErrNoArtifact
	}

	language, code, ok := firstFence(lines[header+1:])
	if !ok {
		return types.CodeArtifact{}, ErrNoArtifact
	}

	return types.CodeArtifact{
		FilePath: filePath,
		Language: language,
		Code:     code,
	}, nil
}

// HasArtifact reports whether ParseArtifact would succeed.
func HasArtifact(text string) bool {
	_, err := ParseArtifact(text)
	return err == nil
}

// FindFilePath returns the trimmed File: header capture, if any.
func FindFilePath(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		if m := headerPattern.FindStringSubmatch(strings.TrimSuffix(line, "\r")); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// firstFence returns the first complete fenced block in lines. Trailing
// fences are not inspected.
func firstFence(lines []string) (language, code string, ok bool) {
	open := -1
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if open < 0 {
			m := openFencePattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			open = i
			language = strings.TrimSpace(m[1])
			continue
		}
		if strings.HasPrefix(line, fence) {
			if language == "" {
				language = DefaultLanguage
			}
			return language, strings.Join(lines[open+1:i], "\n"), true
		}
	}
	return "", "", false
}
