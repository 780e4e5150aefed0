// Command modelvol prepares the model volume of an image-generation instance
// and launches the application on it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is set via -ldflags.
	Version = "dev"
	// Commit is set via -ldflags.
	Commit = "unknown"
)

func main() {
	o := &globalOptions{stdout: os.Stdout, stderr: os.Stderr}
	if err := fang.Execute(
		context.Background(),
		newRootCmd(o),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

func newRootCmd(o *globalOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "modelvol",
		Short: "Keep a model volume consistent with its download manifest",
		Long: titleStyle.Render("modelvol") + `

Scrubs truncated or corrupt weight files from the model volume, fetches
whatever the manifest lists that is missing, and launches the application
once the volume is ready.

Configuration comes from defaults, an optional --config file and MODELVOL_*
environment variables. The hub credential is read from HF_TOKEN.`,
		SilenceUsage: true,
	}
	root.SetOut(o.stdout)
	root.SetErr(o.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "config file (toml, yaml or json)")
	pf.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&o.logFormat, "log-format", "", "log format: text, json, pretty")
	pf.StringVar(&o.root, "root", "", "model volume root (overrides volume.root)")

	root.AddCommand(
		newScrubCmd(o),
		newReconcileCmd(o),
		newSyncCmd(o),
		newRunCmd(o),
		newManifestCmd(o),
	)
	return root
}

// addFetchFlags registers the flags of commands that fetch.
func addFetchFlags(cmd *cobra.Command, o *globalOptions) {
	cmd.Flags().StringVar(&o.backend, "backend", "", "fetch backend: http, aria2, none")
	cmd.Flags().StringVar(&o.manifest, "manifest", "", "manifest file (json or toml); built-in list when empty")
}
