// cmd/lattice-resolve/main.go
//
// lattice-resolve reports where each artifact name resolves from: one of the
// project's local sources, or the host itself.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/lattice-isolate/internal/config"
	"github.com/kingrea/lattice-isolate/internal/host"
	"github.com/kingrea/lattice-isolate/internal/logging"
	"github.com/kingrea/lattice-isolate/plugins"
	"github.com/kingrea/lattice-isolate/resolver"
)

var (
	nameStyle    = lipgloss.NewStyle().Bold(true)
	localStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	ambientStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lattice-resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	projectDir := fs.String("project", "", "path to the project directory (defaults to cwd)")
	configFile := fs.String("config-file", "", "path to resolver.yaml (defaults to .lattice/resolver.yaml)")
	withLog := fs.Bool("log", false, "append resolution events to .lattice/logs/resolver.log")
	list := fs.Bool("list", false, "list the names every source can supply")
	sets := keyValueFlag{}
	fs.Var(&sets, "set", "register a host artifact (name=value, repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	names := fs.Args()
	if len(names) == 0 && !*list {
		fmt.Fprintln(stderr, "usage: lattice-resolve [flags] name...")
		fs.PrintDefaults()
		return 2
	}

	project := *projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			return fail(stderr, "determine working directory: %v", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		return fail(stderr, "resolve project dir: %v", err)
	}
	if err := config.InitLatticeDir(absoluteProject); err != nil {
		return fail(stderr, "init .lattice: %v", err)
	}
	configPath := *configFile
	if configPath == "" {
		configPath = os.Getenv(config.ConfigEnv)
	}
	cfg, err := config.NewConfigFromFile(absoluteProject, configPath)
	if err != nil {
		return fail(stderr, "load config: %v", err)
	}

	_, app := host.NewHost()
	for _, key := range sets.keys() {
		if err := app.RegisterValue(key, sets[key]); err != nil {
			return fail(stderr, "register %s: %v", key, err)
		}
	}

	var opts []resolver.Option
	if *withLog {
		logger, err := logging.New(absoluteProject)
		if err != nil {
			return fail(stderr, "open log: %v", err)
		}
		defer logger.Close()
		opts = append(opts, resolver.WithLogger(logger))
	}
	r, err := plugins.NewResolver(cfg, app, opts...)
	if err != nil {
		return fail(stderr, "build resolver: %v", err)
	}

	if *list {
		if err := printListing(stdout, cfg, r.Local(), app); err != nil {
			return fail(stderr, "list sources: %v", err)
		}
	}

	status := 0
	for _, name := range names {
		art, err := r.Resolve(name)
		if err != nil {
			fmt.Fprintf(stdout, "%s  %s  %v\n", nameStyle.Render(name), failStyle.Render("failed"), err)
			status = 1
			continue
		}
		fmt.Fprintf(stdout, "%s  %s  %s\n", nameStyle.Render(name), originLabel(art.Origin), dimStyle.Render(art.Location))
	}
	return status
}

func printListing(w io.Writer, cfg *config.Config, set *resolver.SourceSet, app *host.Registry) error {
	local, err := plugins.LocalNames(set)
	if err != nil {
		return err
	}
	for i, ref := range cfg.Sources() {
		fmt.Fprintf(w, "%s %s\n", localStyle.Render(ref.Name), dimStyle.Render(ref.Path))
		for _, name := range local[i] {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	fmt.Fprintln(w, ambientStyle.Render("host"))
	for _, name := range app.Names() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

func originLabel(origin resolver.Origin) string {
	switch origin {
	case resolver.OriginLocal:
		return localStyle.Render(string(origin))
	case resolver.OriginAmbient:
		return ambientStyle.Render(string(origin))
	default:
		return string(origin)
	}
}

func fail(w io.Writer, format string, args ...any) int {
	fmt.Fprintf(w, format+"\n", args...)
	return 1
}

type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for _, key := range kv.keys() {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, (*kv)[key]))
	}
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected name=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("artifact name is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}

func (kv keyValueFlag) keys() []string {
	keys := make([]string, 0, len(kv))
	for key := range kv {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
