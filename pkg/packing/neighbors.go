package packing

import (
	"gonum.org/v1/gonum/spatial/kdtree"

	"foamsynth/internal/models"
)

// centroid is a feature centroid stored in the neighbourhood kd-tree
type centroid struct {
	X, Y, Z float64
	ID      int32
}

// Compare implements kdtree.Comparable
func (p centroid) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(centroid)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims implements kdtree.Comparable
func (p centroid) Dims() int { return 3 }

// Distance returns the squared Chebyshev distance, so a neighbourhood is a
// box rather than a ball. Squaring keeps it consistent with the tree's
// plane pruning.
func (p centroid) Distance(c kdtree.Comparable) float64 {
	q := c.(centroid)
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	m := dx * dx
	if dy*dy > m {
		m = dy * dy
	}
	if dz*dz > m {
		m = dz * dz
	}
	return m
}

type centroids []centroid

func (p centroids) Index(i int) kdtree.Comparable         { return p[i] }
func (p centroids) Len() int                              { return len(p) }
func (p centroids) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p centroids) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(centroidPlane{centroids: p, Dim: d}, kdtree.MedianOfRandoms(centroidPlane{centroids: p, Dim: d}, 100))
}

// centroidPlane sorts centroids along one dimension
type centroidPlane struct {
	centroids
	kdtree.Dim
}

func (p centroidPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.centroids[i].X < p.centroids[j].X
	case 1:
		return p.centroids[i].Y < p.centroids[j].Y
	case 2:
		return p.centroids[i].Z < p.centroids[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p centroidPlane) Slice(start, end int) kdtree.SortSlicer {
	return centroidPlane{centroids: p.centroids[start:end], Dim: p.Dim}
}

func (p centroidPlane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}

// CountNeighborhoods sets the neighbourhood count of every feature to the
// number of other features whose centroid lies strictly inside the box of
// half-width one equivalent diameter around its own
func CountNeighborhoods(table *models.FeatureTable) {
	n := table.Count()
	if n == 0 {
		return
	}
	pts := make(centroids, 0, n)
	for id := int32(1); int(id) <= n; id++ {
		f := table.Get(id)
		pts = append(pts, centroid{X: f.Centroid.X, Y: f.Centroid.Y, Z: f.Centroid.Z, ID: id})
	}
	query := make(centroids, len(pts))
	copy(query, pts)
	tree := kdtree.New(pts, false)

	for _, q := range query {
		f := table.Get(q.ID)
		d := f.EquivalentDiameter
		keeper := kdtree.NewDistKeeper(d * d)
		tree.NearestSet(keeper, q)

		count := int32(0)
		for _, item := range keeper.Heap {
			if item.Comparable == nil {
				continue
			}
			if p := item.Comparable.(centroid); p.ID != q.ID && item.Dist < d*d {
				count++
			}
		}
		f.Neighborhood = count
	}
}
