package evaluation

import (
	"fmt"
	"strings"

	"github.com/radquest/radquest/internal/domain"
	"github.com/radquest/radquest/internal/llm"
)

// Request carries everything the judge sees about one submission
type Request struct {
	Level     domain.Level
	Task      domain.Task
	OptionID  string // chosen option, MultipleChoice only
	Answer    string // free text answer, FreeText only
	Reasoning string
}

const systemPrompt = `You are a physics teacher grading a student's reasoning about radioactivity.
Judge scientific accuracy, use of the correct concepts and quality of argument.
Reply in the language of the task with a single JSON object and nothing else:
{"score": <integer 0-10>, "summary": "<one or two sentences>", "strengths": ["..."], "weaknesses": ["..."]}`

// Prompter builds judge prompts. The output depends only on the request.
type Prompter struct {
	MaxTokens   int
	Temperature float64
}

// Build renders the request into an LLM request asking for a JSON verdict.
// It fails only for a task whose body is not a known kind.
func (p Prompter) Build(req Request) (*llm.Request, error) {
	answer, err := domain.VisitTask[string](req.Task, answerSection{req: req})
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	if req.Level.Title != "" {
		fmt.Fprintf(&b, "## Level: %s\n", req.Level.Title)
	}
	if intro := strings.TrimSpace(req.Level.Intro); intro != "" {
		fmt.Fprintf(&b, "%s\n", intro)
	}
	if req.Level.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", req.Level.Topic)
	}

	fmt.Fprintf(&b, "\n## Task\n%s\n", strings.TrimSpace(req.Task.Prompt))
	if rubric := strings.TrimSpace(req.Task.Rubric); rubric != "" {
		fmt.Fprintf(&b, "\n## Evaluation criteria\n%s\n", rubric)
	}
	if example := strings.TrimSpace(req.Task.ExampleAnswer); example != "" {
		fmt.Fprintf(&b, "\n## Example of a good answer\n%s\n", example)
	}

	b.WriteString(answer)

	if reasoning := strings.TrimSpace(req.Reasoning); reasoning != "" {
		fmt.Fprintf(&b, "\n## Student reasoning\n%s\n", reasoning)
	}

	maxTokens := p.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		MaxTokens:   maxTokens,
		Temperature: p.Temperature,
		JSON:        true,
	}, nil
}

// answerSection renders what the student picked or wrote for each kind
type answerSection struct {
	req Request
}

func (a answerSection) MultipleChoice(_ domain.Task, body domain.MultipleChoice) (string, error) {
	var b strings.Builder
	writeOptions(&b, body, a.req.OptionID)
	return b.String(), nil
}

func (a answerSection) FreeText(_ domain.Task, _ domain.FreeText) (string, error) {
	return fmt.Sprintf("\n## Student answer\n%s\n", strings.TrimSpace(a.req.Answer)), nil
}

func writeOptions(b *strings.Builder, body domain.MultipleChoice, chosen string) {
	best, _ := body.BestOption()

	b.WriteString("\n## Options\n")
	for _, o := range body.Options {
		var marks []string
		if o.ID == best.ID {
			marks = append(marks, "best")
		} else if o.Correct() {
			marks = append(marks, "also correct")
		}
		if o.ID == chosen {
			marks = append(marks, "chosen by student")
		}
		line := "- " + o.Text
		if len(marks) > 0 {
			line += " [" + strings.Join(marks, ", ") + "]"
		}
		b.WriteString(line + "\n")
	}

	if opt, ok := body.Option(chosen); ok {
		fmt.Fprintf(b, "\n## Student choice\n%s\n", opt.Text)
	}
}
