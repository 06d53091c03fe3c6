package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/spice-sms/internal/model"
	"github.com/schollz/progressbar/v3"
)

// ErrInputTerminated is returned when input ends before a valid answer.
var ErrInputTerminated = errors.New("input terminated")

// ReviewAction is what the user chose for a transaction under review.
type ReviewAction string

// Review actions.
const (
	ReviewAccept ReviewAction = "accept"
	ReviewChange ReviewAction = "change"
	ReviewSkip   ReviewAction = "skip"
	ReviewQuit   ReviewAction = "quit"
)

// ReviewDecision is the outcome of reviewing one transaction.
type ReviewDecision struct {
	Action   ReviewAction
	Category string
	// Remember asks for the category to be stored as a merchant mapping.
	Remember bool
}

// ReviewStats counts decisions made in a review session.
type ReviewStats struct {
	Accepted   int
	Changed    int
	Skipped    int
	Remembered int
}

// ReviewPrompter walks the user through low-confidence transactions.
type ReviewPrompter struct {
	startTime        time.Time
	writer           io.Writer
	reader           *NonBlockingReader
	progressBar      *progressbar.ProgressBar
	recentCategories []string
	stats            ReviewStats
	statsMutex       sync.RWMutex
}

// NewReviewPrompter creates a prompter reading answers from reader.
func NewReviewPrompter(reader io.Reader, writer io.Writer) *ReviewPrompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &ReviewPrompter{
		reader:    NewNonBlockingReader(reader),
		writer:    writer,
		startTime: time.Now(),
	}
}

// SetTotal sets the queue length and starts the progress bar.
func (p *ReviewPrompter) SetTotal(total int) {
	if total > 0 {
		p.progressBar = NewProgressBar(p.writer, total, "Reviewing transactions...")
	}
}

// Review shows txn and asks the user to accept, change or skip its category.
func (p *ReviewPrompter) Review(ctx context.Context, txn model.StoredTransaction) (ReviewDecision, error) {
	if err := ctx.Err(); err != nil {
		return ReviewDecision{}, err
	}

	content := FormatTransaction(&txn.ParsedTransaction) +
		"\n" + BoldStyle.Render("Category: ") + categoryOrNone(txn.Category) +
		"\n\n" + SubtleStyle.Render(txn.RawBody)
	if _, err := fmt.Fprintln(p.writer, RenderBox("Review Transaction", content)); err != nil {
		return ReviewDecision{}, fmt.Errorf("failed to write transaction box: %w", err)
	}

	options := []string{
		"  [A] Accept category " + SuccessStyle.Render(categoryOrNone(txn.Category)),
		"  [C] Change category",
		"  [S] Skip for now",
		"  [Q] Quit review",
	}
	if _, err := fmt.Fprintln(p.writer, strings.Join(options, "\n")+"\n"); err != nil {
		return ReviewDecision{}, fmt.Errorf("failed to write options: %w", err)
	}

	choice, err := p.promptChoice(ctx, "Choice", []string{"a", "c", "s", "q"})
	if err != nil {
		return ReviewDecision{}, err
	}

	var decision ReviewDecision
	switch choice {
	case "a":
		decision = ReviewDecision{Action: ReviewAccept, Category: txn.Category}
	case "c":
		category, err := p.promptCategory(ctx)
		if err != nil {
			return ReviewDecision{}, err
		}
		remember, err := p.promptChoice(ctx, "Remember for "+txn.NormalizedMerchant+"? (y/n)", []string{"y", "n"})
		if err != nil {
			return ReviewDecision{}, err
		}
		decision = ReviewDecision{Action: ReviewChange, Category: category, Remember: remember == "y"}
		p.trackCategory(category)
	case "s":
		decision = ReviewDecision{Action: ReviewSkip}
	default:
		return ReviewDecision{Action: ReviewQuit}, nil
	}

	p.record(decision)
	p.updateProgress()
	return decision, nil
}

// Stats returns the decisions made so far.
func (p *ReviewPrompter) Stats() ReviewStats {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()
	return p.stats
}

// ShowCompletion prints a summary of the session.
func (p *ReviewPrompter) ShowCompletion() {
	stats := p.Stats()
	content := fmt.Sprintf("Accepted: %d\nChanged: %d\nSkipped: %d\nRemembered merchants: %d\nTime: %s",
		stats.Accepted, stats.Changed, stats.Skipped, stats.Remembered,
		time.Since(p.startTime).Round(time.Second))

	if _, err := fmt.Fprintln(p.writer, RenderBox(ChartIcon+" Review Complete", content)); err != nil {
		slog.Warn("Failed to write completion box", "error", err)
	}
}

func (p *ReviewPrompter) record(decision ReviewDecision) {
	p.statsMutex.Lock()
	defer p.statsMutex.Unlock()

	switch decision.Action {
	case ReviewAccept:
		p.stats.Accepted++
	case ReviewChange:
		p.stats.Changed++
		if decision.Remember {
			p.stats.Remembered++
		}
	case ReviewSkip:
		p.stats.Skipped++
	}
}

func (p *ReviewPrompter) updateProgress() {
	if p.progressBar != nil {
		if err := p.progressBar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

func (p *ReviewPrompter) trackCategory(category string) {
	p.recentCategories = slices.DeleteFunc(p.recentCategories, func(c string) bool { return c == category })
	p.recentCategories = append([]string{category}, p.recentCategories...)
	if len(p.recentCategories) > 5 {
		p.recentCategories = p.recentCategories[:5]
	}
}

func (p *ReviewPrompter) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := p.reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return "", ErrInputTerminated
		}
		if err != nil {
			return "", err
		}

		choice := strings.ToLower(input)
		if slices.Contains(validChoices, choice) {
			return choice, nil
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

func (p *ReviewPrompter) promptCategory(ctx context.Context) (string, error) {
	if len(p.recentCategories) > 0 {
		if _, err := fmt.Fprintln(p.writer, FormatInfo("Recent categories: "+strings.Join(p.recentCategories, ", "))); err != nil {
			return "", fmt.Errorf("failed to write recent categories: %w", err)
		}
	}

	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt("Enter category")); err != nil {
			return "", fmt.Errorf("failed to write category prompt: %w", err)
		}

		category, err := p.reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return "", ErrInputTerminated
		}
		if err != nil {
			return "", err
		}

		if category != "" {
			return category, nil
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Category cannot be empty. Please try again.")); err != nil {
			slog.Warn("Failed to write empty category error", "error", err)
		}
	}
}

func categoryOrNone(category string) string {
	if category == "" {
		return "(none)"
	}
	return category
}
