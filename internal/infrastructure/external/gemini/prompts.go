package gemini

import (
	"fmt"
	"strings"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
)

// instructions per content type. The model writes plain Markdown.
var instructions = map[curriculum.ContentType]string{
	curriculum.ContentNotesSimple: `Write concise revision notes for the chapter.
Use short headings, bullet points and the key definitions and formulas a student must remember.
Keep it under 600 words.`,
	curriculum.ContentNotesPremium: `Write detailed study notes for the chapter.
Cover every topic in textbook order with headings, explanations, worked examples,
important formulas, common mistakes and a short summary at the end.`,
	curriculum.ContentExplanation: `Explain the core concepts of the chapter step by step as a patient teacher would.
Start from intuition, use everyday analogies, then build up to the formal ideas.`,
	curriculum.ContentMCQ: `Write 10 multiple choice questions on the chapter.
Number each question, give four options labelled A-D, and after all questions
list the correct answers with a one-line explanation each.`,
	curriculum.ContentPDFNotes: `Write printable notes for the chapter laid out for A4 pages.
Use clear section headings, numbered points, tables where useful and a formula sheet at the end.`,
	curriculum.ContentAudioScript: `Write a script for a 5 minute spoken lesson on the chapter.
Use a friendly conversational tone, short sentences, no tables or symbols that cannot be read aloud.`,
}

func lessonPrompt(req curriculum.GenerationRequest) string {
	sel := req.Selector
	var b strings.Builder

	fmt.Fprintf(&b, "You are an expert %s teacher for %s board, class %d", sel.Subject, sel.Board, sel.ClassLevel)
	if sel.HasStream() {
		fmt.Fprintf(&b, " (%s stream)", sel.Stream)
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "Chapter: %s\n", sel.Chapter)
	fmt.Fprintf(&b, "Write in %s.\n\n", req.Language.DisplayName())

	if text, ok := instructions[req.ContentType]; ok {
		b.WriteString(text)
	} else {
		b.WriteString("Write study material for the chapter.")
	}
	b.WriteString("\nFollow the official syllabus. Do not add a preamble.")
	return b.String()
}

func chaptersPrompt(sel curriculum.Selector, lang curriculum.Language) string {
	var b strings.Builder

	fmt.Fprintf(&b, "List the chapters of %s for %s board, class %d", sel.Subject, sel.Board, sel.ClassLevel)
	if sel.HasStream() {
		fmt.Fprintf(&b, " (%s stream)", sel.Stream)
	}
	b.WriteString(" in textbook order.\n")
	fmt.Fprintf(&b, "Write chapter titles in %s.\n", lang.DisplayName())
	b.WriteString("Output one chapter title per line with no numbering, bullets or any other text.")
	return b.String()
}

// parseChapters splits the model output into titles, dropping list markers.
func parseChapters(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•# ")
		line = trimOrdinal(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// trimOrdinal removes "1." / "2)" style prefixes.
func trimOrdinal(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
