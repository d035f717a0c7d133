// Package ui provides terminal output formatting for the drydock CLI.
//
// This package handles all user-facing output with consistent styling:
//   - Colored output (cyan, green, red, yellow)
//   - Info, success, failure, and warning messages
//   - Dimmed text for secondary information
//   - A yes/no confirmation prompt
//
// All output goes to ui.Out (defaults to os.Stderr) to allow
// testing and output redirection.
//
// Example usage:
//
//	ui.Info("Scanning for leaked resources...")
//	ui.Success("Removed 3 containers")
//
//	if ui.AskYesNo("Remove these resources?", false) {
//	    // proceed
//	}
//
// Output styling:
//   - Info:    → Cyan arrow
//   - Success: ✔ Green checkmark
//   - Fail:    ✘ Red X
//   - Warn:    ○ Yellow circle
package ui
