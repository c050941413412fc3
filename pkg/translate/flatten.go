package translate

import (
	"fmt"
	"strings"
)

// Format controls how a multi-turn transcript is rendered into the single
// prompt the chat page receives.
type Format struct {
	// TurnTemplate is a fmt template receiving role then content.
	TurnTemplate string
	// Separator goes between rendered turns.
	Separator string
	// RepeatFinalUser appends the last user turn's bare content at the end,
	// so the page answers the question rather than the transcript.
	RepeatFinalUser bool
}

// DefaultFormat matches the original wire behavior.
func DefaultFormat() Format {
	return Format{
		TurnTemplate:    "[%s] %s",
		Separator:       "\n\n",
		RepeatFinalUser: true,
	}
}

func (f Format) withDefaults() Format {
	if f.TurnTemplate == "" {
		f.TurnTemplate = "[%s] %s"
	}
	if f.Separator == "" {
		f.Separator = "\n\n"
	}
	return f
}

// Flatten renders a transcript into one prompt. System turns sort first,
// relative order otherwise preserved; turns with empty text are dropped.
// The output is deterministic for a given transcript and format.
func Flatten(msgs []Message, f Format) string {
	f = f.withDefaults()

	ordered := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			ordered = append(ordered, m)
		}
	}
	for _, m := range msgs {
		if m.Role != RoleSystem {
			ordered = append(ordered, m)
		}
	}

	var turns []string
	for _, m := range ordered {
		text := strings.TrimSpace(m.Text())
		if text == "" {
			continue
		}
		turns = append(turns, fmt.Sprintf(f.TurnTemplate, m.Role, text))
	}

	prompt := strings.Join(turns, f.Separator)
	if f.RepeatFinalUser {
		if last := strings.TrimSpace(LastUserText(msgs)); last != "" && len(turns) > 1 {
			prompt += f.Separator + last
		}
	}
	return prompt
}
