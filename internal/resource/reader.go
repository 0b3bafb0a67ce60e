package resource

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/scenepack/pkg/scene"
)

// DefaultConcurrency bounds parallel file reads when Reader.Concurrency is
// not set.
const DefaultConcurrency = 8

// Reader materializes the bytes of every resource in a graph.
type Reader struct {
	Locator     *Locator
	Concurrency int
}

// Read attaches a record to every buffer, image, compressed image, shader
// and audio clip. Buffers are read first; everything else may slice them
// through buffer views, so the second phase only starts once all buffers
// are in.
func (r *Reader) Read(ctx context.Context, g *scene.Graph) error {
	if err := r.readAll(ctx, g, g.Refs(scene.KindBuffer)); err != nil {
		return fmt.Errorf("reading buffers: %w", err)
	}

	var refs []scene.Ref
	for _, kind := range []scene.Kind{scene.KindImage, scene.KindCompressedImage, scene.KindShader, scene.KindAudio} {
		refs = append(refs, g.Refs(kind)...)
	}
	if err := r.readAll(ctx, g, refs); err != nil {
		return fmt.Errorf("reading resources: %w", err)
	}
	return nil
}

func (r *Reader) readAll(ctx context.Context, g *scene.Graph, refs []scene.Ref) error {
	eg, ctx := errgroup.WithContext(ctx)
	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	eg.SetLimit(limit)

	for _, ref := range refs {
		eg.Go(func() error {
			rec, err := r.Locator.Locate(ctx, g, ref)
			if err != nil {
				return err
			}
			g.SetRecord(ref, rec)
			return nil
		})
	}
	return eg.Wait()
}
