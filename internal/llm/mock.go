package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// MockBackend provides deterministic replies when no model is installed.
// It recognizes the bias, job description and translation prompt shapes by keyword.
type MockBackend struct {
	mu     sync.Mutex
	closed bool
}

func NewMockBackend() *MockBackend { return &MockBackend{} }

func (b *MockBackend) Name() string { return "mock" }

var (
	gendered    = regexp.MustCompile(`(?i)\b(he|she|him|her|his|hers|himself|herself|man|men|woman|women|guys|girls|boys|chairman|salesman|mankind|manpower)\b`)
	subjectLine = regexp.MustCompile(`(?m)^\s*(?:Sentence|Text|Job Title):\s*"?(.*?)"?\s*$`)
	neutralWord = map[string]string{
		"he": "they", "she": "they", "him": "them", "her": "their", "his": "their", "hers": "theirs",
		"himself": "themself", "herself": "themself", "man": "person", "men": "people",
		"woman": "person", "women": "people", "guys": "folks", "girls": "people", "boys": "people",
		"chairman": "chairperson", "salesman": "salesperson", "mankind": "humankind", "manpower": "workforce",
	}
)

func neutralize(s string) string {
	return gendered.ReplaceAllStringFunc(s, func(w string) string {
		repl := neutralWord[strings.ToLower(w)]
		if repl == "" {
			return w
		}
		if w[0] >= 'A' && w[0] <= 'Z' {
			return strings.ToUpper(repl[:1]) + repl[1:]
		}
		return repl
	})
}

func (b *MockBackend) Generate(ctx context.Context, prompt string, _ Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.Closed() {
		return "", ErrModelClosed
	}

	subject := ""
	if m := subjectLine.FindStringSubmatch(prompt); len(m) == 2 {
		subject = m[1]
	}
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "percentage"):
		n := len(gendered.FindAllString(subject, -1))
		score := 50 + 10*n
		if score > 100 {
			score = 100
		}
		return fmt.Sprintf("%d%%", score), nil
	case strings.Contains(lower, "respond only with"):
		if gendered.MatchString(subject) {
			return "Yes", nil
		}
		return "No", nil
	case strings.Contains(lower, "job description"):
		return fmt.Sprintf("Job Title: %s\n\nResponsibilities:\n- Deliver the core work of the role.\n\nQualifications:\n- Relevant experience or equivalent skills.\n\nWork Environment:\n- An inclusive team that welcomes people of every background.", subject), nil
	case strings.Contains(lower, "translate"):
		return subject, nil
	case strings.Contains(lower, "gender-neutral version"):
		return neutralize(subject), nil
	default:
		return strings.TrimSpace(subject), nil
	}
}

func (b *MockBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *MockBackend) Reopen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = false
	return nil
}

func (b *MockBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
