// Package emit stores the separate files of a packed scene and runs the
// configured resource processors.
package emit

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/scenepack/internal/command"
	"github.com/Faultbox/scenepack/internal/logger"
	"github.com/Faultbox/scenepack/internal/rules"
)

// HashLen is the number of hex digits of the content hash in file names.
const HashLen = 5

// Asset is one file leaving the packer.
type Asset struct {
	Data []byte
	// DistPath is the slash-separated output path.
	DistPath string
	// FilePath is the source path rules are matched against.
	FilePath string
}

// Sink stores an asset and returns the URL it is reachable at.
type Sink interface {
	Emit(ctx context.Context, a Asset) (string, error)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, a Asset) (string, error)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, a Asset) (string, error) { return f(ctx, a) }

// Hash returns the short content hash used in file names.
func Hash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])[:HashLen]
}

// DistName flattens rel into a content addressed file name:
// "textures/rock.png" becomes "textures-rock-<hash>.png".
func DistName(rel string, data []byte) string {
	rel = strings.TrimPrefix(path.Clean(rules.Normalize(rel)), "/")
	ext := path.Ext(rel)
	parts := strings.Split(strings.TrimSuffix(rel, ext), "/")
	parts = append(parts, Hash(data))
	return strings.Join(parts, "-") + ext
}

// PublicURL joins the public path and a dist path.
func PublicURL(publicPath, distPath string) string {
	if publicPath == "" {
		return distPath
	}
	u, err := url.JoinPath(publicPath, distPath)
	if err != nil {
		return strings.TrimSuffix(publicPath, "/") + "/" + distPath
	}
	return u
}

// DirEmitter writes assets below a directory.
type DirEmitter struct {
	Dir        string
	PublicPath string
}

// Emit writes the asset atomically; concurrent passes may emit the same
// content addressed file.
func (e *DirEmitter) Emit(_ context.Context, a Asset) (string, error) {
	dest := filepath.Join(e.Dir, filepath.FromSlash(a.DistPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(dest), ".emit-*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(a.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if err := os.Rename(f.Name(), dest); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return PublicURL(e.PublicPath, a.DistPath), nil
}

// CommandPublisher uploads assets with an external command. The asset is
// piped to stdin; {file} and {dist} expand to its paths and the trimmed
// stdout is the resulting URL.
type CommandPublisher struct {
	tmpl *command.Template
}

// NewCommandPublisher parses the publish command line.
func NewCommandPublisher(cmdline string) (*CommandPublisher, error) {
	tmpl, err := command.Parse(cmdline)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	return &CommandPublisher{tmpl: tmpl}, nil
}

// Emit publishes one asset.
func (p *CommandPublisher) Emit(ctx context.Context, a Asset) (string, error) {
	out, err := p.tmpl.Run(ctx, map[string]string{"file": a.FilePath, "dist": a.DistPath}, a.Data)
	if err != nil {
		return "", err
	}
	u := strings.TrimSpace(string(out))
	if u == "" {
		return "", fmt.Errorf("publisher returned no url for %s", a.DistPath)
	}
	return u, nil
}

// Router sends every asset to exactly one sink: the publisher when one is
// set and the asset is not excluded from publishing, else the emitter.
type Router struct {
	Emitter   Sink
	Publisher Sink
	Excludes  rules.Set
	log       *zap.Logger
}

// NewRouter creates a router. publisher may be nil.
func NewRouter(emitter, publisher Sink, excludes rules.Set) *Router {
	return &Router{Emitter: emitter, Publisher: publisher, Excludes: excludes, log: logger.Named("emit")}
}

// Emit routes one asset.
func (r *Router) Emit(ctx context.Context, a Asset) (string, error) {
	sink, via := r.Emitter, "emit"
	if r.Publisher != nil && !r.Excludes.Match(a.FilePath) {
		sink, via = r.Publisher, "publish"
	}
	u, err := sink.Emit(ctx, a)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", via, a.DistPath, err)
	}
	r.log.Debug(via, zap.String("dist", a.DistPath), zap.String("url", u), zap.Int("bytes", len(a.Data)))
	return u, nil
}
