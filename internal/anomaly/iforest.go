package anomaly

import (
	"math"
	"math/rand"
)

// isolationForest scores feature vectors by how quickly random axis-aligned
// splits isolate them: outliers sit on short paths. The forest takes a seeded
// RNG so a fixed event snapshot always produces the same trees and scores.
type isolationForest struct {
	trees      []*iTree
	numTrees   int
	sampleSize int
	// effectiveSample is the per-tree sample actually drawn at train time,
	// min(len(X), sampleSize). Scores normalize against it so small corpora
	// are judged on their own scale rather than the configured maximum.
	effectiveSample int
	heightLim       int
	rng             *rand.Rand
}

type iTree struct {
	root *iNode
}

type iNode struct {
	leaf     bool
	size     int
	dim      int
	splitVal float64
	left     *iNode
	right    *iNode
}

func newIsolationForest(numTrees, sampleSize int, rng *rand.Rand) *isolationForest {
	if numTrees <= 0 {
		numTrees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &isolationForest{
		numTrees:   numTrees,
		sampleSize: sampleSize,
		heightLim:  int(math.Ceil(math.Log2(float64(sampleSize)))),
		rng:        rng,
	}
}

func (f *isolationForest) train(X [][]float64) {
	f.trees = make([]*iTree, f.numTrees)
	n := len(X)
	m := f.sampleSize
	if m > n {
		m = n
	}
	f.effectiveSample = m
	for i := 0; i < f.numTrees; i++ {
		// Sample without replacement up to sampleSize.
		idxs := f.rng.Perm(n)
		sample := make([][]float64, m)
		for j := 0; j < m; j++ {
			sample[j] = X[idxs[j]]
		}
		f.trees[i] = &iTree{root: f.buildTree(sample, 0)}
	}
}

func (f *isolationForest) buildTree(X [][]float64, h int) *iNode {
	if len(X) <= 1 || h >= f.heightLim {
		return &iNode{leaf: true, size: len(X)}
	}
	dim := f.rng.Intn(len(X[0]))
	minv, maxv := X[0][dim], X[0][dim]
	for i := 1; i < len(X); i++ {
		v := X[i][dim]
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
	}
	if minv == maxv { // cannot split further
		return &iNode{leaf: true, size: len(X)}
	}
	split := minv + f.rng.Float64()*(maxv-minv)
	left := make([][]float64, 0, len(X))
	right := make([][]float64, 0, len(X))
	for _, row := range X {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &iNode{leaf: true, size: len(X)}
	}
	return &iNode{
		dim:      dim,
		splitVal: split,
		left:     f.buildTree(left, h+1),
		right:    f.buildTree(right, h+1),
	}
}

// cFactor is c(n), the average unsuccessful-search path length in a binary
// search tree, used to normalize expected path lengths.
func cFactor(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2.0*(math.Log(float64(n-1))+0.5772156649) - 2.0*float64(n-1)/float64(n)
}

func pathLength(node *iNode, x []float64, h int) float64 {
	if node.leaf {
		if node.size <= 1 {
			return float64(h)
		}
		return float64(h) + cFactor(node.size)
	}
	if x[node.dim] < node.splitVal {
		return pathLength(node.left, x, h+1)
	}
	return pathLength(node.right, x, h+1)
}

// score returns an anomaly score in [0,1]; higher means more anomalous.
func (f *isolationForest) score(x []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.trees {
		sum += pathLength(t.root, x, 0)
	}
	expected := sum / float64(len(f.trees))
	c := cFactor(f.effectiveSample)
	if c <= 0 {
		c = 1
	}
	return math.Pow(2, -expected/c)
}
