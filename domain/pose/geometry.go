package pose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/open-teleop/go2bridge/pkg/log"
)

// Geometry is a renderable resource held by one segment.
type Geometry interface {
	Release()
}

// GeometryLoader materializes the geometry of one segment. Load may be called
// concurrently for different segments.
type GeometryLoader interface {
	Load(ctx context.Context, segment NodeSpec) (Geometry, error)
}

// GeometrySet maps segment names to loaded geometry.
type GeometrySet map[string]Geometry

// Release frees every entry.
func (s GeometrySet) Release() {
	for _, g := range s {
		g.Release()
	}
}

// LoadGeometry loads every segment of t concurrently. A failed segment is
// logged and left out; the rest still load.
func LoadGeometry(ctx context.Context, loader GeometryLoader, t Topology, logger log.Logger) GeometrySet {
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		set = make(GeometrySet, t.Len())
	)
	for _, spec := range t.Nodes() {
		wg.Add(1)
		go func(spec NodeSpec) {
			defer wg.Done()
			g, err := loader.Load(ctx, spec)
			if err != nil {
				logger.Warnf("Failed to load geometry for %s: %v", spec.Name, err)
				return
			}
			if g == nil {
				return
			}
			mu.Lock()
			set[spec.Name] = g
			mu.Unlock()
		}(spec)
	}
	wg.Wait()

	logger.Infof("Loaded geometry for %d/%d segments", len(set), t.Len())
	return set
}

// MeshGeometry holds the raw mesh files of one segment.
type MeshGeometry struct {
	Segment string
	Meshes  map[string][]byte

	mu       sync.Mutex
	released bool
}

func (g *MeshGeometry) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Meshes = nil
	g.released = true
}

// Released reports whether Release was called.
func (g *MeshGeometry) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}

// Size returns the total mesh size in bytes.
func (g *MeshGeometry) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, b := range g.Meshes {
		n += len(b)
	}
	return n
}

// DirLoader reads <Dir>/<mesh>.obj for every mesh of a segment.
type DirLoader struct {
	Dir string
}

func (l DirLoader) Load(ctx context.Context, segment NodeSpec) (Geometry, error) {
	g := &MeshGeometry{Segment: segment.Name, Meshes: make(map[string][]byte, len(segment.Meshes))}
	for _, mesh := range segment.Meshes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(l.Dir, mesh+".obj"))
		if err != nil {
			return nil, fmt.Errorf("mesh %s: %w", mesh, err)
		}
		g.Meshes[mesh] = data
	}
	return g, nil
}
