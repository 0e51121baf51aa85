package cli

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WithSpinner runs fn while a spinner with msg is shown on w. The spinner
// only animates when w is a terminal. With quiet set fn runs silently.
func WithSpinner(w io.Writer, quiet bool, msg string, fn func() error) error {
	if quiet {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + msg
	s.Start()
	err := fn()
	if err != nil {
		s.FinalMSG = text.FgRed.Sprintf("%s failed", msg) + "\n"
	}
	s.Stop()
	return err
}

// Success formats a completion line.
func Success(msg string) string {
	return text.FgGreen.Sprint("✓") + " " + msg
}

// Warning formats a non-fatal problem.
func Warning(msg string) string {
	return text.FgYellow.Sprint("⚠") + " " + msg
}
