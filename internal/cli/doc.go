// Package cli provides command-line argument parsing for the drydock CLI.
//
// This package handles all CLI flag parsing and validation, converting
// command-line arguments into a structured Args type that the main
// application can use.
//
// Supported flags include:
//   - -n, --namespace: Namespace whose resources to prune
//   - --all: Prune every drydock-managed namespace
//   - --dry-run: Show what would be removed without removing it
//   - --yes: Skip the confirmation prompt
//   - --verbose: Log engine activity
//
// Example usage:
//
//	args, err := cli.Parse(os.Args)
//	if err != nil {
//	    if err.Error() == "show_help" {
//	        showHelp()
//	        os.Exit(0)
//	    }
//	    log.Fatal(err)
//	}
//
//	if args.DryRun {
//	    // Report without removing
//	}
package cli
