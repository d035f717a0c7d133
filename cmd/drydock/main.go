package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/drydocklabs/drydock"
	"github.com/drydocklabs/drydock/internal/cli"
	"github.com/drydocklabs/drydock/internal/ui"
	"github.com/drydocklabs/drydock/namespace"
)

const version = "1.0.0"

func main() {
	// A .env can carry DOCKER_HOST and friends for odd daemon setups.
	_ = godotenv.Load()

	args, err := cli.Parse(os.Args)
	if err != nil {
		if err.Error() == "show_help" {
			showHelp()
			os.Exit(0)
		}
		if err.Error() == "show_version" {
			fmt.Printf("drydock %s\n", version)
			os.Exit(0)
		}
		ui.Fail("Error parsing arguments: %v", err)
		ui.Info("Run %s for usage information", ui.Bold("drydock --help"))
		os.Exit(1)
	}

	if err := prune(context.Background(), args); err != nil {
		ui.Fail("%v", err)
		os.Exit(1)
	}
}

// kindOrder is the removal order: containers hold networks and volumes open,
// so they go first.
var kindOrder = []drydock.ResourceKind{
	drydock.KindContainer,
	drydock.KindNetwork,
	drydock.KindVolume,
}

func prune(ctx context.Context, args *cli.Args) error {
	ns := namespace.Namespace(args.Namespace)
	if ns == "" {
		ns = namespace.Default
	}

	client, err := drydock.NewDockerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	leaked, err := findLeaked(ctx, client, ns, args.All)
	if err != nil {
		return err
	}

	total := 0
	for _, names := range leaked {
		total += len(names)
	}
	if total == 0 {
		if args.All {
			ui.Success("No leaked resources found")
		} else {
			ui.Success("No leaked resources in namespace %s", ui.Bold(string(ns)))
		}
		return nil
	}

	for _, kind := range kindOrder {
		for _, name := range leaked[kind] {
			ui.Info("%-9s %s", kind, name)
		}
	}

	if args.DryRun {
		ui.DimMsg("Dry run: %d resource(s) would be removed", total)
		return nil
	}

	if !args.Yes {
		ui.BlankLine()
		if !ui.AskYesNo(fmt.Sprintf("Remove %d resource(s)?", total), false) {
			ui.DimMsg("Aborted")
			return nil
		}
	}

	removed, failed := 0, 0
	for _, kind := range kindOrder {
		for _, name := range leaked[kind] {
			if err := remove(ctx, client, kind, name); err != nil {
				ui.Warn("Failed to remove %s %s: %v", kind, name, err)
				failed++
				continue
			}
			if args.Verbose {
				ui.DimMsg("removed %s %s", kind, name)
			}
			removed++
		}
	}

	// Images pulled by test runs keep their upstream references and are
	// shared daemon state, so pruning leaves them alone.

	if failed > 0 {
		return fmt.Errorf("removed %d resource(s), %d failed", removed, failed)
	}
	ui.Success("Removed %d resource(s)", removed)
	return nil
}

// findLeaked collects the managed resources belonging to the namespace, or
// to any drydock namespace when all is set.
func findLeaked(ctx context.Context, client drydock.Client, ns namespace.Namespace, all bool) (map[drydock.ResourceKind][]string, error) {
	leaked := make(map[drydock.ResourceKind][]string)
	for _, kind := range kindOrder {
		names, err := client.ListNames(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if all || ns.Owns(name) {
				leaked[kind] = append(leaked[kind], name)
			}
		}
	}
	return leaked, nil
}

func remove(ctx context.Context, client drydock.Client, kind drydock.ResourceKind, name string) error {
	switch kind {
	case drydock.KindContainer:
		return client.RemoveContainer(ctx, name)
	case drydock.KindNetwork:
		return client.RemoveNetwork(ctx, name)
	case drydock.KindVolume:
		return client.RemoveVolume(ctx, name)
	}
	return fmt.Errorf("cannot remove resources of kind %q", kind)
}

func showHelp() {
	help := `drydock - prune Docker resources leaked by crashed test runs

USAGE:
    drydock [OPTIONS]

OPTIONS:
    -n, --namespace NAME   Namespace to prune (default: test)
    --all                  Prune every drydock-managed namespace
    --dry-run              Show what would be removed without removing it
    -y, --yes              Skip the confirmation prompt
    --verbose              Report each removed resource
    -h, --help             Show this help message
    --version              Show version information

EXAMPLES:
    # Show what a crashed run under the default namespace left behind
    drydock --dry-run

    # Remove leftovers of a CI namespace without prompting
    drydock -n ci-42 --yes

    # Clean up after every drydock test run on this host
    drydock --all

ENVIRONMENT VARIABLES:
    DOCKER_HOST             Daemon to connect to (also read from .env)

Only resources carrying the drydock managed label are ever touched.
Images are never pruned; they keep their upstream references.
`
	fmt.Print(help)
}
