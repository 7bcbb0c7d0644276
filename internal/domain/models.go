package domain

import (
	"fmt"
	"strings"
	"time"
)

// Unanswered marks a question without a recorded selection.
const Unanswered = -1

// QuizItem models an MCQ question with exactly one correct choice.
type QuizItem struct {
	Prompt       string   `json:"prompt" yaml:"prompt"`
	Choices      []string `json:"choices" yaml:"choices"`
	CorrectIndex int      `json:"correctIndex" yaml:"correctIndex"`
}

// Validate checks the item shape: at least two choices and an in-range answer.
func (q QuizItem) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidItem)
	}
	if len(q.Choices) < 2 {
		return fmt.Errorf("%w: %q has %d choices", ErrInvalidItem, q.Prompt, len(q.Choices))
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Choices) {
		return fmt.Errorf("%w: %q correct index %d", ErrInvalidItem, q.Prompt, q.CorrectIndex)
	}
	return nil
}

// Bank is the static question bank of one brand.
type Bank struct {
	Brand string     `json:"brand"`
	Items []QuizItem `json:"items"`
}

// Validate checks every item of the bank.
func (b Bank) Validate() error {
	for i, item := range b.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("bank %s item %d: %w", b.Brand, i, err)
		}
	}
	return nil
}

// Article is a promotional reading shown on the learn screen.
type Article struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
	Blurb string `json:"blurb" yaml:"blurb"`
}

// BadgeTier maps a minimum score ratio to a label.
type BadgeTier struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Name      string  `json:"name" yaml:"name"`
}

// Theme holds the card colors as hex strings (#rrggbb).
type Theme struct {
	Background string `json:"background" yaml:"background"`
	Accent     string `json:"accent" yaml:"accent"`
	Panel      string `json:"panel" yaml:"panel"`
	Text       string `json:"text" yaml:"text"`
	Muted      string `json:"muted" yaml:"muted"`
}

// Brand is one deployment of the quiz: content and styling differ, logic does not.
type Brand struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Title       string      `json:"title"`
	Tag         string      `json:"tag"`
	Tagline     string      `json:"tagline"`
	Placeholder string      `json:"placeholder"`
	Initials    string      `json:"-"`
	Badges      []BadgeTier `json:"badges"`
	Theme       Theme       `json:"theme"`
	Articles    []Article   `json:"articles"`
}

// Profile is the free-form share card input.
type Profile struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

// Normalize trims both fields and strips a single leading "@" from the handle.
func (p Profile) Normalize() Profile {
	handle := strings.TrimSpace(p.Handle)
	handle = strings.TrimPrefix(handle, "@")
	return Profile{
		Handle:      strings.TrimSpace(handle),
		DisplayName: strings.TrimSpace(p.DisplayName),
	}
}

// Label is the name shown on the card: display name, then @handle, then the placeholder.
func (p Profile) Label(placeholder string) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Handle != "" {
		return "@" + p.Handle
	}
	return placeholder
}

// Phase is the state of a quiz session.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseRunning    Phase = "running"
	PhaseFinished   Phase = "finished"
)

// Outcome records how a question was resolved. Scoring only looks at selections.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeCorrect  Outcome = "correct"
	OutcomeWrong    Outcome = "wrong"
	OutcomeTimedOut Outcome = "timed_out"
)

// QuestionView is a question as shown to the player, without the answer.
type QuestionView struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Choices []string `json:"choices"`
}

// Result is the derived score state of a session.
type Result struct {
	Score    int    `json:"score"`
	MaxScore int    `json:"maxScore"`
	IQ       int    `json:"iq"`
	Badge    string `json:"badge"`
}

// SessionView is a snapshot-friendly view of a session.
type SessionView struct {
	ID            string        `json:"id"`
	Brand         string        `json:"brand"`
	Phase         Phase         `json:"phase"`
	Current       int           `json:"current"`
	Total         int           `json:"total"`
	TimeRemaining int           `json:"timeRemaining"`
	Question      *QuestionView `json:"question,omitempty"`
	Selections    []int         `json:"selections,omitempty"`
	Outcomes      []Outcome     `json:"outcomes,omitempty"`
	Result        *Result       `json:"result,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
