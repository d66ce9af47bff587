package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/sanitize"
)

// sanitizers by kind. A validating sanitizer returns "" for invalid input.
var sanitizers = map[string]struct {
	fn         func(string) (string, error)
	validating bool
}{
	"text":     {fn: plain(sanitize.Text)},
	"html":     {fn: plain(sanitize.HTML)},
	"strip":    {fn: plain(sanitize.StripHTML)},
	"filename": {fn: plain(sanitize.Filename)},
	"query":    {fn: plain(sanitize.SearchQuery)},
	"url":      {fn: plain(sanitize.URL), validating: true},
	"email":    {fn: plain(sanitize.Email), validating: true},
	"phone":    {fn: plain(sanitize.Phone), validating: true},
	"json":     {fn: sanitizeJSON},
}

var errInvalidInput = errors.New("invalid input")

func sanitizeJSON(s string) (string, error) {
	out, err := sanitize.JSON([]byte(s))
	return string(out), err
}

func plain(fn func(string) string) func(string) (string, error) {
	return func(s string) (string, error) {
		return fn(s), nil
	}
}

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <kind> [value]",
	Short: "Clean user input",
	Long: fmt.Sprintf(`Sanitize applies one of the input cleaners to value, or stdin when value
is omitted or "-".

Kinds: %s`, strings.Join(sanitizeKinds(), ", ")),
	Example: `  atlas sanitize html '<p onclick="x()">hi<script>bad()</script></p>'
  atlas sanitize email User@Example.COM`,
	Args: cobra.RangeArgs(1, 2),
	Annotations: map[string]string{
		skipConfig: "true",
	},
	RunE: runSanitize,
}

func init() {
	rootCmd.AddCommand(sanitizeCmd)
}

func sanitizeKinds() []string {
	kinds := make([]string, 0, len(sanitizers))
	for k := range sanitizers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func runSanitize(cmd *cobra.Command, args []string) error {
	kind := strings.ToLower(args[0])
	s, ok := sanitizers[kind]
	if !ok {
		return fmt.Errorf("unknown kind %q (want one of %s)", args[0], strings.Join(sanitizeKinds(), ", "))
	}

	input, err := inputArg(args[1:])
	if err != nil {
		return err
	}

	out, err := s.fn(input)
	if err != nil {
		return err
	}
	if s.validating && out == "" && strings.TrimSpace(input) != "" {
		return &models.ValidationError{Field: kind, Reason: fmt.Sprintf("Invalid %s.", kind), Err: errInvalidInput}
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "kind": kind, "value": out})
		return nil
	}
	fmt.Fprintln(stdout, out)
	return nil
}
