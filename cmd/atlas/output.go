package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/castleatlas/atlas/internal/events"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	labelColor   = color.New(color.Bold)
)

func printSuccess(format string, args ...interface{}) {
	successColor.Fprintf(stdout, "✓ "+format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	errorColor.Fprintf(stderr, "✗ "+format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	warningColor.Fprintf(stderr, "! "+format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	infoColor.Fprintf(stdout, format+"\n", args...)
}

func printField(label string, value interface{}) {
	labelColor.Fprintf(stdout, "%-14s", label+":")
	fmt.Fprintf(stdout, " %v\n", value)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		printError("Failed to encode output: %v", err)
	}
}

// startToasts prints notifications from bus until the returned function is
// called. Error notifications are skipped unless includeErrors is set, since
// main reports the failing command's error itself.
func startToasts(bus *events.Bus, includeErrors bool) func() {
	ch, unsubscribe := bus.Subscribe(16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for n := range ch {
			if n.Level == events.LevelError && !includeErrors {
				continue
			}
			printNotification(n)
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}

func printNotification(n events.Notification) {
	message := n.Message
	if n.Title != "" {
		message = n.Title + ": " + message
	}

	switch n.Level {
	case events.LevelSuccess:
		printSuccess("%s", message)
	case events.LevelWarning:
		printWarning("%s", message)
	case events.LevelError:
		printError("%s", message)
	default:
		printInfo("%s", message)
	}
}
