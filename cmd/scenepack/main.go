// scenepack packs glTF scenes into per-GPU texture compression variants
// and selects among them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/scenepack/internal/config"
	"github.com/Faultbox/scenepack/internal/emit"
	"github.com/Faultbox/scenepack/internal/logger"
	"github.com/Faultbox/scenepack/internal/pack"
	"github.com/Faultbox/scenepack/internal/probe"
	"github.com/Faultbox/scenepack/internal/resource"
	"github.com/Faultbox/scenepack/internal/rules"
	"github.com/Faultbox/scenepack/pkg/selector"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "build", "b":
		cmdBuild(args)
	case "watch", "w":
		cmdWatch(args)
	case "select":
		cmdSelect(args)
	case "probe":
		cmdProbe(args)
	case "config":
		cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`scenepack - glTF scene packer

Usage:
  scenepack <command> [options]

Commands:
  build [options] <scene.gltf|glb>    Pack a scene into its variants
  watch [options] <dir>               Rebuild scenes below dir on change
  select [-force-fallback] <manifest> Pick the variant this GPU supports
  probe                               List supported WebGL texture extensions
  config [path]                       Write the default configuration

Options (build, watch):
  -out dir           Output directory (default "dist")
  -root dir          Directory dist paths are relative to
  -config path       Config file
  -textures          Build texture compression variants
  -glb               Pack variants as GLB
  -quality q         Texture quality: high, medium or low
  -public-path p     Prefix for emitted URLs
  -debug             Debug logging

Examples:
  scenepack build -textures -out dist scenes/hall.gltf
  scenepack watch -root scenes scenes
  scenepack select dist/hall.variants.json`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	logger.Sync()
	os.Exit(1)
}

// packFlags are the options shared by build and watch.
type packFlags struct {
	out  *string
	root *string
	cfg  *config.Flags
}

func registerPackFlags(fs *flag.FlagSet) *packFlags {
	return &packFlags{
		out:  fs.String("out", "dist", "Output directory"),
		root: fs.String("root", "", "Directory dist paths are relative to"),
		cfg:  config.RegisterFlags(fs),
	}
}

// setup loads the config, initializes logging and creates the assembler.
func (f *packFlags) setup(defaultRoot string, opts ...pack.Option) (*pack.Assembler, error) {
	cfg, err := config.Load(f.cfg)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	sink, err := newSink(cfg, *f.out)
	if err != nil {
		return nil, err
	}

	root := *f.root
	if root == "" {
		root = defaultRoot
	}
	if root != "" {
		opts = append(opts, pack.WithRoot(root))
	}
	return pack.New(cfg, sink, opts...)
}

// newSink writes to out, or routes through the publish command when one is
// configured.
func newSink(cfg *config.Config, out string) (emit.Sink, error) {
	emitter := &emit.DirEmitter{Dir: out, PublicPath: cfg.PublicPath}
	if !cfg.Publish.Enabled {
		return emitter, nil
	}
	publisher, err := emit.NewCommandPublisher(cfg.Publish.Command)
	if err != nil {
		return nil, fmt.Errorf("publish.command: %w", err)
	}
	excludes, err := rules.CompileSet(cfg.Publish.Excludes)
	if err != nil {
		return nil, err
	}
	return emit.NewRouter(emitter, publisher, excludes), nil
}

func cmdBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	pf := registerPackFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: scenepack build [options] <scene.gltf|glb>")
		os.Exit(1)
	}

	a, err := pf.setup("")
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := false
	for _, src := range fs.Args() {
		if err := build(ctx, a, src); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", src, err)
			failed = true
		}
	}
	if failed {
		logger.Sync()
		os.Exit(1)
	}
}

// build assembles one scene and prints its variants.
func build(ctx context.Context, a *pack.Assembler, src string) error {
	res, err := a.Assemble(ctx, src)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	fmt.Printf("%s -> %s\n", src, res.ManifestURL)
	for _, e := range res.Manifest.Entries {
		fmt.Printf("  %-10s %s\n", e.Name, e.URL)
	}
	return nil
}

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	pf := registerPackFlags(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: scenepack watch [options] <dir>")
		os.Exit(1)
	}
	dir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fatal(err)
	}

	cache := resource.NewFileCache()
	a, err := pf.setup(dir, pack.WithCache(cache))
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.Named("watch")
	w := &watcher{
		dir:   dir,
		out:   *pf.out,
		cache: cache,
		build: func(ctx context.Context, src string) {
			if err := build(ctx, a, src); err != nil {
				log.Error("build failed", zap.String("scene", src), zap.Error(err))
			}
		},
		log: log,
	}
	if err := w.run(ctx); err != nil {
		fatal(err)
	}
}

func cmdSelect(args []string) {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	force := fs.Bool("force-fallback", false, "Always pick the fallback variant")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: scenepack select [-force-fallback] <manifest.json>")
		os.Exit(1)
	}
	initCLILogger(*debug)
	defer logger.Sync()

	m, err := selector.Load(fs.Arg(0))
	if err != nil {
		fatal(err)
	}

	s := &selector.Selector{Manifest: m, Prober: probe.NewGL(), ForceFallback: *force}
	entry, err := s.Select()
	if err != nil {
		// Select still returns the fallback.
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	fmt.Printf("%s\t%s\t%s\n", entry.Name, entry.Type, entry.URL)
}

func cmdProbe(args []string) {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	native := fs.Bool("native", false, "Also list native GL extensions")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	initCLILogger(*debug)
	defer logger.Sync()

	p := probe.NewGL()
	exts, err := p.Extensions()
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Renderer: %s\n", p.Renderer)
	fmt.Printf("Version:  %s\n", p.Version)
	fmt.Println()
	fmt.Println("WebGL texture extensions:")
	if len(exts) == 0 {
		fmt.Println("  (none)")
	}
	for _, e := range exts {
		fmt.Printf("  %s\n", e)
	}
	if *native {
		fmt.Println()
		fmt.Printf("Native extensions (%d):\n", len(p.Native))
		for _, e := range p.Native {
			fmt.Printf("  %s\n", e)
		}
	}
}

func cmdConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	fs.Parse(args)

	cfg := config.Default()
	var err error
	path := filepath.Join(config.ConfigDir(), "config.yaml")
	if fs.NArg() > 0 {
		path = fs.Arg(0)
		err = cfg.SaveTo(path)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func initCLILogger(debug bool) {
	level := "warn"
	if debug {
		level = "debug"
	}
	if err := logger.Init(config.LoggingConfig{Level: level}); err != nil {
		fatal(err)
	}
}
