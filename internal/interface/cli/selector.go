package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
)

type selectorFlags struct {
	board       string
	classLevel  int
	stream      string
	subject     string
	chapter     string
	language    string
	contentType string
}

// bind registers the selector flags. chapter and content type are only
// registered (and required) when the command addresses a single artifact.
func (f *selectorFlags) bind(cmd *cobra.Command, artifact bool) {
	cmd.Flags().StringVar(&f.board, "board", "", "exam board (CBSE, ICSE, Bihar Board, ...)")
	cmd.Flags().IntVar(&f.classLevel, "class", 0, "class level")
	cmd.Flags().StringVar(&f.stream, "stream", "", "stream for classes 11-12")
	cmd.Flags().StringVar(&f.subject, "subject", "", "subject name")
	cmd.Flags().StringVar(&f.language, "lang", "", "content language (defaults to the board's language)")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("class")
	_ = cmd.MarkFlagRequired("subject")

	if artifact {
		cmd.Flags().StringVar(&f.chapter, "chapter", "", "chapter title")
		cmd.Flags().StringVar(&f.contentType, "type", "", "content type (NOTES_SIMPLE, MCQ, ...)")
		_ = cmd.MarkFlagRequired("chapter")
		_ = cmd.MarkFlagRequired("type")
	}
}

func (f *selectorFlags) selector() curriculum.Selector {
	return curriculum.NewSelector(f.board, f.classLevel, f.stream, f.subject, f.chapter)
}

func (f *selectorFlags) lang() curriculum.Language {
	if f.language == "" {
		return curriculum.LanguageForBoard(f.board)
	}
	return curriculum.Language(strings.ToLower(strings.TrimSpace(f.language)))
}

func (f *selectorFlags) kind() (curriculum.ContentType, error) {
	return curriculum.ParseContentType(f.contentType)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
