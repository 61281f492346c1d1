// Package prompts renders the rubric and the LLM instructions used for
// semantic analysis of open answers.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxAnswerRunes bounds how much of an answer is sent for analysis.
const maxAnswerRunes = 10000

// PromptVariant selects how demanding the grading rubric is.
type PromptVariant string

const (
	// PromptStrict is a strict rubric for core subjects.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default generic rubric.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient rubric for electives.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce        sync.Once
	loadErr         error
	rubrics         map[PromptVariant]string
	analysisTmpl    *template.Template
	errInvalidInput = errors.New("invalid prompt variant")
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// AnalysisData holds template data for the LLM analysis prompt.
type AnalysisData struct {
	PromptContext   string
	ReferenceAnswer string
	Rubric          string
	Answer          string
}

func load() error {
	loadOnce.Do(func() {
		rubrics = make(map[PromptVariant]string, len(validVariants))
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			name := "templates/rubric_" + string(v) + ".tmpl"
			content, err := templateFS.ReadFile(name)
			if err != nil {
				loadErr = fmt.Errorf("read rubric %s: %w", name, err)
				return
			}
			rubrics[v] = strings.TrimSpace(string(content))
		}

		content, err := templateFS.ReadFile("templates/analysis.tmpl")
		if err != nil {
			loadErr = fmt.Errorf("read analysis template: %w", err)
			return
		}
		analysisTmpl, err = template.New("analysis").Parse(string(content))
		if err != nil {
			loadErr = fmt.Errorf("parse analysis template: %w", err)
		}
	})
	return loadErr
}

// Rubric returns the generic grading rubric for a variant.
func Rubric(variant PromptVariant) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	r, ok := rubrics[variant]
	if !ok {
		return "", fmt.Errorf("%w: %q", errInvalidInput, variant)
	}
	return r, nil
}

// BuildAnalysisPrompt renders the system prompt that asks an LLM for a
// quality score, recognized concepts, detected errors and a pedagogical level.
func BuildAnalysisPrompt(data AnalysisData) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	data.Answer = sanitizeAnswer(data.Answer)

	var buf bytes.Buffer
	if err := analysisTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render analysis prompt: %w", err)
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
