// Package cli handles command-line argument parsing and execution.
package cli

import (
	"errors"
	"fmt"
)

// Args represents parsed command-line arguments.
type Args struct {
	// Namespace whose leaked resources to prune.
	Namespace string

	// All prunes every managed namespace, not just one.
	All bool

	// DryRun reports what would be removed without touching anything.
	DryRun bool

	// Yes skips the confirmation prompt.
	Yes bool

	// Verbose logs engine activity.
	Verbose bool
}

// Parse parses command-line arguments into an Args struct.
func Parse(osArgs []string) (*Args, error) {
	args := &Args{}

	i := 1 // Skip program name
	for i < len(osArgs) {
		arg := osArgs[i]

		switch arg {
		case "-h", "--help":
			return nil, errors.New("show_help")

		case "--version":
			return nil, errors.New("show_version")

		case "-n", "--namespace":
			if i+1 >= len(osArgs) {
				return nil, fmt.Errorf("%s requires an argument", arg)
			}
			args.Namespace = osArgs[i+1]
			i += 2

		case "--all":
			args.All = true
			i++

		case "--dry-run":
			args.DryRun = true
			i++

		case "-y", "--yes":
			args.Yes = true
			i++

		case "--verbose":
			args.Verbose = true
			i++

		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	if args.All && args.Namespace != "" {
		return nil, fmt.Errorf("--all and --namespace are mutually exclusive")
	}

	return args, nil
}
