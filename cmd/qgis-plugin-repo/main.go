// Command qgis-plugin-repo reads and edits QGIS plugin repository catalogs (plugins.xml).
//
//	qgis-plugin-repo read [flags] <xml_file>
//	qgis-plugin-repo merge [flags] <input_xml> <output_xml>...
//
// Flags must precede the positional arguments. All flags can also be set via
// environment variables with the QGIS_PLUGIN_REPO_ prefix, e.g. QGIS_PLUGIN_REPO_GIT_URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dnswlt/qgisrepo/internal/catalog"
	"github.com/dnswlt/qgisrepo/internal/config"
	"github.com/dnswlt/qgisrepo/internal/dispatch"
	"github.com/dnswlt/qgisrepo/internal/gitclient"
	"github.com/dnswlt/qgisrepo/internal/merge"
	"github.com/dnswlt/qgisrepo/internal/query"
	"github.com/dnswlt/qgisrepo/internal/repo"
	"github.com/dnswlt/qgisrepo/internal/store"
	"github.com/peterbourgon/ff/v3"
)

var (
	// Version is the application version.
	// It is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
)

const (
	envVarPrefix = "QGIS_PLUGIN_REPO"

	exitOK = 0
	// Ambiguous operations and all other fatal errors.
	exitError = 1
	// The input is neither an existing file nor a valid URL.
	exitSource = 2
)

// Options contains program options that can be set via command-line flags or environment variables.
type Options struct {
	ConfigFile string
	GitURL     string
	GitRef     string
	Filter     string
}

func gitClientAuthFromEnv() *gitclient.Auth {
	user := os.Getenv(envVarPrefix + "_GIT_USER")
	if user == "" {
		return nil
	}
	pass := os.Getenv(envVarPrefix + "_GIT_PASSWORD")
	return &gitclient.Auth{
		Username: user,
		Password: pass,
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `qgis-plugin-repo - manipulate a QGIS plugin repository

usage: qgis-plugin-repo <command> [flags] [args]

commands:
  read <xml_file>                     List the plugins available in a repository file or URL.
  merge <input_xml> <output_xml>...   Merge the plugins of input_xml into the output files.
                                      With several outputs, only the files tagged with a QGIS
                                      version supported by the plugin are edited.
  version                             Print the program version.

Use 'qgis-plugin-repo <command> -h' for command-specific flags.
`)
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	if len(args) < 1 {
		usage(stdout)
		return exitOK
	}
	switch args[0] {
	case "read":
		return runRead(ctx, args[1:], stdout)
	case "merge":
		return runMerge(ctx, args[1:], stdout)
	case "version", "-v", "--version":
		fmt.Fprintln(stdout, Version)
		return exitOK
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q. Available commands: read, merge, version\n", args[0])
		return exitError
	}
}

func newFlagSet(name string, opts *Options) *flag.FlagSet {
	fs := flag.NewFlagSet("qgis-plugin-repo "+name, flag.ContinueOnError)
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to an optional configuration YAML file")
	fs.StringVar(&opts.GitURL, "git-url", "", "URL of a git repository to read the input file from")
	fs.StringVar(&opts.GitRef, "git-ref", "", "Git ref (branch or tag) to read the input file from (default: the default branch)")
	return fs
}

// parseFlags parses args into opts. The returned bool is false if the
// program should exit with the returned code, e.g. after -h.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	err := ff.Parse(fs, args, ff.WithEnvVarPrefix(envVarPrefix))
	if errors.Is(err, flag.ErrHelp) {
		return exitOK, false
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitError, false
	}
	return exitOK, true
}

func loadConfig(opts Options) (*config.Bundle, error) {
	if opts.ConfigFile == "" {
		return &config.Bundle{}, nil
	}
	return config.Load(store.NewDiskStore(""), opts.ConfigFile)
}

// createInputStore returns the store that input catalogs are read from.
// Outputs are always written to local disk.
func createInputStore(opts Options) (store.Store, error) {
	if opts.GitURL == "" {
		return store.NewDiskStore(""), nil
	}
	log.Printf("Retrieving input from git URL %s", opts.GitURL)
	client, err := gitclient.New(opts.GitURL, gitClientAuthFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve git repo: %w", err)
	}
	ref := opts.GitRef
	if ref == "" {
		ref, err = client.DefaultBranch()
		if err != nil {
			return nil, fmt.Errorf("no git-ref specified and no default branch found: %w", err)
		}
		log.Printf("Using default git branch %q", ref)
	}
	return store.NewGitSource(client, ref).Store("")
}

// loadInput loads the input catalog named by source and maps failures to exit codes.
func loadInput(ctx context.Context, opts Options, bundle *config.Bundle, source string) (*catalog.Catalog, int) {
	st, err := createInputStore(opts)
	if err != nil {
		log.Printf("Cannot open input store: %v", err)
		return nil, exitError
	}
	fetcher := &store.HTTPFetcher{UserAgent: bundle.HTTP.UserAgent}
	if fetcher.UserAgent == "" {
		fetcher.UserAgent = "qgis-plugin-repo/" + Version
	}
	c, err := repo.Load(ctx, st, fetcher, source)
	if errors.Is(err, repo.ErrSource) {
		log.Printf("Invalid input %s: %v", source, err)
		return nil, exitSource
	}
	if err != nil {
		log.Printf("Cannot load %s: %v", source, err)
		return nil, exitError
	}
	return c, exitOK
}

func runRead(ctx context.Context, args []string, stdout io.Writer) int {
	var opts Options
	fs := newFlagSet("read", &opts)
	fs.StringVar(&opts.Filter, "filter", "", `CEL expression selecting the plugins to list, e.g. 'experimental && name.startsWith("Pg")'`)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: qgis-plugin-repo read [flags] <xml_file>\n")
		return exitError
	}
	source := fs.Arg(0)

	bundle, err := loadConfig(opts)
	if err != nil {
		log.Printf("Cannot load config: %v", err)
		return exitError
	}
	var ev *query.Evaluator
	if opts.Filter != "" {
		ev, err = query.NewEvaluator(opts.Filter, bundle.Dispatch)
		if err != nil {
			log.Printf("Invalid -filter: %v", err)
			return exitError
		}
	}

	c, code := loadInput(ctx, opts, bundle, source)
	if c == nil {
		return code
	}
	plugins := c.Plugins
	if ev != nil {
		plugins, err = ev.Filter(c)
		if err != nil {
			log.Printf("Cannot filter plugins: %v", err)
			return exitError
		}
	}

	fmt.Fprintf(stdout, "List of plugins in %s\n", source)
	for _, p := range plugins {
		fmt.Fprintln(stdout, p)
	}
	return exitOK
}

func runMerge(ctx context.Context, args []string, stdout io.Writer) int {
	var opts Options
	fs := newFlagSet("merge", &opts)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "usage: qgis-plugin-repo merge [flags] <input_xml> <output_xml>...\n")
		return exitError
	}
	source := fs.Arg(0)
	outputs := fs.Args()[1:]

	bundle, err := loadConfig(opts)
	if err != nil {
		log.Printf("Cannot load config: %v", err)
		return exitError
	}

	targets := outputs
	if len(outputs) >= 2 {
		fmt.Fprintln(stdout, "More than one XML file detected for the output. "+
			"All these files will be checked for QGIS versions :")
		fmt.Fprintln(stdout, strings.Join(outputs, ", "))
	} else {
		fmt.Fprintln(stdout, "A single XML file detected for the output. "+
			"This file is going to be edited whatever its QGIS version.")
	}

	in, code := loadInput(ctx, opts, bundle, source)
	if in == nil {
		return code
	}

	if len(outputs) >= 2 {
		if in.Count() >= 2 {
			fmt.Fprintln(stdout, "Not possible to merge an XML file having many plugins for inputs when using several outputs")
			return exitError
		}
		targets, err = dispatch.Targets(in, outputs, bundle.Dispatch)
		if err != nil {
			log.Printf("Cannot dispatch %s: %v", source, err)
			return exitError
		}
		if len(targets) == 0 {
			minVersion, maxVersion := dispatch.VersionsForPlugin(in, bundle.Dispatch)
			fmt.Fprintf(stdout, "No output file matches QGIS %s - %s, nothing to do\n", minVersion, maxVersion)
			return exitOK
		}
	}

	out := store.NewDiskStore("")
	for _, target := range targets {
		if len(outputs) >= 2 {
			fmt.Fprintf(stdout, "Editing %s\n", filepath.Base(target))
		}
		if _, err := merge.IntoFile(out, target, in, source); err != nil {
			log.Printf("Cannot merge into %s: %v", target, err)
			return exitError
		}
	}
	return exitOK
}
