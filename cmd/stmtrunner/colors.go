package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	stdout io.Writer = color.Output
	stderr io.Writer = color.Error
)

var (
	colorRed    = color.New(color.FgRed).SprintFunc()
	colorGreen  = color.New(color.FgGreen).SprintFunc()
	colorYellow = color.New(color.FgYellow).SprintFunc()
	colorBlue   = color.New(color.FgBlue).SprintFunc()
	colorCyan   = color.New(color.FgCyan).SprintFunc()
	colorBold   = color.New(color.Bold).SprintFunc()
	colorDim    = color.New(color.Faint).SprintFunc()
	colorHeader = color.New(color.Bold, color.FgCyan).SprintFunc()
)

func init() {
	// NO_COLOR and non-terminal output are handled by color itself.
	if os.Getenv("STMTRUNNER_NO_COLOR") != "" {
		color.NoColor = true
	}
}

func printSuccess(message string) {
	fmt.Fprintln(stdout, colorGreen("✓")+" "+message)
}

func printError(message string) {
	fmt.Fprintln(stderr, colorRed("✗")+" "+message)
}

func printWarning(message string) {
	fmt.Fprintln(stdout, colorYellow("⚠")+" "+message)
}

func printInfo(message string) {
	fmt.Fprintln(stdout, colorBlue("ℹ")+" "+message)
}

func printHeader(title string) {
	fmt.Fprintln(stdout, "\n"+colorHeader(title))
	fmt.Fprintln(stdout, colorDim("────────────────────────────────────────"))
}
