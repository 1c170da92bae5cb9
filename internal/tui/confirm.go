// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// ErrCancelled is returned when the user aborts a prompt.
var ErrCancelled = errors.New("prompt cancelled")

type (
	// ConfirmOptions configures the Confirm component.
	ConfirmOptions struct {
		// Title is the question/prompt to display.
		Title string
		// Description provides additional context below the title.
		Description string
		// Affirmative is the text for the affirmative option (default: "Yes").
		Affirmative string
		// Negative is the text for the negative option (default: "No").
		Negative string
		// Default is the default value (true for yes, false for no).
		Default bool
		// Config holds common TUI configuration.
		Config Config
	}

	// ConfirmBuilder provides a fluent API for building Confirm prompts.
	ConfirmBuilder struct {
		opts ConfirmOptions
	}
)

// Confirm asks a yes/no question and returns the answer.
func Confirm(opts ConfirmOptions) (bool, error) {
	result := opts.Default
	form := newConfirmForm(opts, &result)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrCancelled
		}
		return false, fmt.Errorf("confirm prompt: %w", err)
	}
	return result, nil
}

func newConfirmForm(opts ConfirmOptions, result *bool) *huh.Form {
	opts = opts.withDefaults()

	field := huh.NewConfirm().
		Title(opts.Title).
		Affirmative(opts.Affirmative).
		Negative(opts.Negative).
		Value(result)
	if opts.Description != "" {
		field = field.Description(opts.Description)
	}

	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(getHuhTheme(opts.Config.Theme)).
		WithAccessible(shouldUseAccessible(opts.Config)).
		WithOutput(getOutputWriter(opts.Config)).
		WithShowHelp(false)
	if opts.Config.Input != nil {
		form = form.WithInput(opts.Config.Input)
	}
	if opts.Config.Width > 0 {
		form = form.WithWidth(opts.Config.Width)
	}
	return form
}

func (o ConfirmOptions) withDefaults() ConfirmOptions {
	if o.Affirmative == "" {
		o.Affirmative = "Yes"
	}
	if o.Negative == "" {
		o.Negative = "No"
	}
	return o
}

// NewConfirm creates a new ConfirmBuilder with default options.
func NewConfirm() *ConfirmBuilder {
	return &ConfirmBuilder{opts: ConfirmOptions{Config: DefaultConfig()}}
}

// Title sets the title of the confirm prompt.
func (b *ConfirmBuilder) Title(title string) *ConfirmBuilder {
	b.opts.Title = title
	return b
}

// Description sets the description of the confirm prompt.
func (b *ConfirmBuilder) Description(desc string) *ConfirmBuilder {
	b.opts.Description = desc
	return b
}

// Affirmative sets the affirmative button text.
func (b *ConfirmBuilder) Affirmative(text string) *ConfirmBuilder {
	b.opts.Affirmative = text
	return b
}

// Negative sets the negative button text.
func (b *ConfirmBuilder) Negative(text string) *ConfirmBuilder {
	b.opts.Negative = text
	return b
}

// Default sets the default value.
func (b *ConfirmBuilder) Default(value bool) *ConfirmBuilder {
	b.opts.Default = value
	return b
}

// Theme sets the visual theme.
func (b *ConfirmBuilder) Theme(theme Theme) *ConfirmBuilder {
	b.opts.Config.Theme = theme
	return b
}

// Run executes the confirm prompt and returns the result.
func (b *ConfirmBuilder) Run() (bool, error) {
	return Confirm(b.opts)
}
