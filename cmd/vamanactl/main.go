// Command vamanactl is a standalone driver for the vamana module: it builds
// an index from a file of vectors, runs a single query against it, or
// reports recall@k against an exact brute-force scan. Adapted from the
// teacher's cmd/cli/main.go subcommand/flag-set shape, with the gRPC client
// plumbing replaced by direct calls into pkg/vamana/am against a
// pagefile.Manager, since this module has no server of its own.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pgvectorscale/tsv/internal/pagefile"
	"github.com/pgvectorscale/tsv/pkg/vamana"
	"github.com/pgvectorscale/tsv/pkg/vamana/am"
	"github.com/pgvectorscale/tsv/pkg/vamana/host"
	"github.com/pgvectorscale/tsv/pkg/vamana/metapage"
	"github.com/pgvectorscale/tsv/pkg/vamana/observability"
	"github.com/pgvectorscale/tsv/pkg/vamana/query"
	"github.com/pgvectorscale/tsv/pkg/vamana/storage"
)

// sliceFetcher walks an in-memory slice of vectors as a host.HeapFetcher,
// assigning each one a synthetic heap pointer keyed by its row index (there
// is no real host table backing this standalone driver).
type sliceFetcher struct {
	vectors []vamana.Vector
	pos     int
}

func newSliceFetcher(vectors []vamana.Vector) *sliceFetcher {
	return &sliceFetcher{vectors: vectors}
}

func (f *sliceFetcher) Next() (host.TableSlot, bool, error) {
	if f.pos >= len(f.vectors) {
		return host.TableSlot{}, false, nil
	}
	slot := host.TableSlot{
		HeapPointer: vamana.HeapPointer{BlockNumber: uint32(f.pos), Offset: 1},
		Vector:      f.vectors[f.pos],
	}
	f.pos++
	return slot, true, nil
}

func (f *sliceFetcher) Rewind() error {
	f.pos = 0
	return nil
}

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "build":
		handleBuild(os.Args[2:])
	case "query":
		handleQuery(os.Args[2:])
	case "recall":
		handleRecall(os.Args[2:])
	case "version":
		fmt.Printf("vamanactl version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		showUsage()
		os.Exit(1)
	}
}

func handleBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		vectorsPath    = fs.String("vectors", "", "path to a JSON file holding an array of vectors (required)")
		indexPath      = fs.String("index", "", "path to write the index file (required)")
		metricName     = fs.String("metric", "l2", "distance metric: l2 or cosine")
		numNeighbors   = fs.Int("num-neighbors", 50, "R: neighbor-slot count per node")
		searchListSize = fs.Int("search-list-size", 100, "L: candidate-list size used during build")
		maxAlpha       = fs.Float64("max-alpha", 1.2, "alpha for robust-prune, >= 1.0")
		usePQ          = fs.Bool("pq", false, "use product-quantized storage")
		pqVecLen       = fs.Int("pq-vector-length", 0, "PQ segment size (required with -pq)")
		useBQ          = fs.Bool("bq", false, "use binary-quantized storage")
	)
	fs.Parse(args)

	if *vectorsPath == "" || *indexPath == "" {
		fmt.Println("Error: -vectors and -index are required")
		fs.Usage()
		os.Exit(1)
	}

	vectors, err := loadVectors(*vectorsPath)
	if err != nil {
		fmt.Printf("Error loading vectors: %v\n", err)
		os.Exit(1)
	}
	if len(vectors) == 0 {
		fmt.Println("Error: vectors file is empty")
		os.Exit(1)
	}

	metric, err := parseMetric(*metricName)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	opts := vamana.DefaultOptions(len(vectors[0]))
	opts.NumNeighbors = *numNeighbors
	opts.SearchListSize = *searchListSize
	opts.MaxAlpha = float32(*maxAlpha)
	opts.Metric = metric
	opts.UsePQ = *usePQ
	opts.PQVecLen = *pqVecLen
	opts.UseBQ = *useBQ

	if _, err := os.Stat(*indexPath); err == nil {
		fmt.Printf("Error: %s already exists\n", *indexPath)
		os.Exit(1)
	}

	mgr, err := pagefile.Open(*indexPath)
	if err != nil {
		fmt.Printf("Error opening index file: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	logger := observability.NewDefaultLogger()
	metrics := observability.NewMetrics()
	fetcher := newSliceFetcher(vectors)

	start := time.Now()
	result, err := am.Build(context.Background(), am.IndexDef{NumKeyColumns: 1, Dims: opts.Dims}, mgr, opts, fetcher, nil, logger, metrics)
	if err != nil {
		fmt.Printf("Build failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Built index %s in %s\n", *indexPath, time.Since(start))
	fmt.Printf("  rows indexed:       %d\n", result.RowsIndexed)
	fmt.Printf("  rows skipped (nil): %d\n", result.RowsSkippedNull)
	fmt.Printf("  dims:               %d\n", result.Meta.Dims)
	fmt.Printf("  num_neighbors:      %d\n", result.Meta.NumNeighbors)
}

func handleQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var (
		indexPath      = fs.String("index", "", "path to the index file (required)")
		queryStr       = fs.String("query", "", "query vector as a JSON array (required)")
		k              = fs.Int("k", 10, "number of results to return")
		searchListSize = fs.Int("search-list-size", 0, "override the build-time search list size (0 = use build-time value)")
	)
	fs.Parse(args)

	if *indexPath == "" || *queryStr == "" {
		fmt.Println("Error: -index and -query are required")
		fs.Usage()
		os.Exit(1)
	}

	var queryRaw []float64
	if err := json.Unmarshal([]byte(*queryStr), &queryRaw); err != nil {
		fmt.Printf("Error parsing query: %v\n", err)
		os.Exit(1)
	}
	q := toVector(queryRaw)

	mgr, meta, st, err := openIndex(*indexPath)
	if err != nil {
		fmt.Printf("Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	results, err := runQuery(mgr, st, meta, q, *searchListSize, *k)
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d results\n\n", len(results))
	for i, r := range results {
		fmt.Printf("%d. row=%d distance=%.6f\n", i+1, r.HeapPointer.BlockNumber, r.Distance)
	}
}

func handleRecall(args []string) {
	fs := flag.NewFlagSet("recall", flag.ExitOnError)
	var (
		indexPath      = fs.String("index", "", "path to the index file (required)")
		vectorsPath    = fs.String("vectors", "", "path to the JSON vectors file the index was built from (required)")
		queriesPath    = fs.String("queries", "", "path to a JSON file of query vectors (required)")
		k              = fs.Int("k", 10, "number of results to compare")
		searchListSize = fs.Int("search-list-size", 0, "override the build-time search list size (0 = use build-time value)")
	)
	fs.Parse(args)

	if *indexPath == "" || *vectorsPath == "" || *queriesPath == "" {
		fmt.Println("Error: -index, -vectors, and -queries are required")
		fs.Usage()
		os.Exit(1)
	}

	base, err := loadVectors(*vectorsPath)
	if err != nil {
		fmt.Printf("Error loading vectors: %v\n", err)
		os.Exit(1)
	}
	queries, err := loadVectors(*queriesPath)
	if err != nil {
		fmt.Printf("Error loading queries: %v\n", err)
		os.Exit(1)
	}

	mgr, meta, st, err := openIndex(*indexPath)
	if err != nil {
		fmt.Printf("Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	distFn := vamana.DistanceFuncFor(meta.Metric)
	var totalRecall float64
	for qi, q := range queries {
		approx, err := runQuery(mgr, st, meta, q, *searchListSize, *k)
		if err != nil {
			fmt.Printf("Query %d failed: %v\n", qi, err)
			os.Exit(1)
		}
		exact := bruteForceTopK(base, q, distFn, *k)

		exactRows := make(map[uint32]bool, len(exact))
		for _, row := range exact {
			exactRows[row] = true
		}
		hits := 0
		for _, r := range approx {
			if exactRows[r.HeapPointer.BlockNumber] {
				hits++
			}
		}
		recall := 0.0
		if len(exact) > 0 {
			recall = float64(hits) / float64(len(exact))
		}
		totalRecall += recall
	}

	fmt.Printf("recall@%d over %d queries: %.4f\n", *k, len(queries), totalRecall/float64(len(queries)))
}

// openIndex reopens an already-built index file and returns its manager,
// metadata, and storage variant.
func openIndex(path string) (*pagefile.Manager, *metapage.MetaPage, storage.Storage, error) {
	mgr, err := pagefile.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	meta, err := metapage.Fetch(mgr)
	if err != nil {
		mgr.Close()
		return nil, nil, nil, err
	}
	st, err := storage.Open(mgr, meta, meta.NumNeighbors)
	if err != nil {
		mgr.Close()
		return nil, nil, nil, err
	}
	return mgr, meta, st, nil
}

type queryResult struct {
	HeapPointer vamana.HeapPointer
	Distance    float32
}

func runQuery(mgr *pagefile.Manager, st storage.Storage, meta *metapage.MetaPage, q vamana.Vector, searchListSize, k int) ([]queryResult, error) {
	it, err := query.New(mgr, st, meta, q, searchListSize, nil, nil)
	if err != nil {
		return nil, err
	}
	defer it.End()

	var out []queryResult
	for len(out) < k {
		hp, dist, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, queryResult{HeapPointer: hp, Distance: dist})
	}
	return out, nil
}

// bruteForceTopK linearly scans every base vector and returns the row ids of
// the k closest under distFn, used as ground truth for recall.
func bruteForceTopK(base []vamana.Vector, q vamana.Vector, distFn vamana.DistanceFunc, k int) []uint32 {
	type scored struct {
		row  uint32
		dist float32
	}
	scores := make([]scored, len(base))
	for i, v := range base {
		scores[i] = scored{row: uint32(i), dist: distFn(q, v)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })
	if k > len(scores) {
		k = len(scores)
	}
	rows := make([]uint32, k)
	for i := 0; i < k; i++ {
		rows[i] = scores[i].row
	}
	return rows
}

func parseMetric(s string) (vamana.Metric, error) {
	switch s {
	case "l2", "":
		return vamana.L2, nil
	case "cosine":
		return vamana.Cosine, nil
	default:
		return 0, fmt.Errorf("unknown metric %q (want l2 or cosine)", s)
	}
}

func loadVectors(path string) ([]vamana.Vector, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw [][]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	out := make([]vamana.Vector, len(raw))
	for i, r := range raw {
		out[i] = toVector(r)
	}
	return out, nil
}

func toVector(raw []float64) vamana.Vector {
	v := make(vamana.Vector, len(raw))
	for i, x := range raw {
		v[i] = float32(x)
	}
	return v
}

func showUsage() {
	fmt.Println(`vamanactl - standalone driver for a Vamana/DiskANN-style vector index

Usage:
  vamanactl <command> [options]

Commands:
  build    Build an index from a JSON file of vectors
  query    Run a single nearest-neighbor query against a built index
  recall   Report recall@k against an exact brute-force scan
  version  Show version
  help     Show this help message

Examples:

  vamanactl build -vectors base.json -index idx.bin -num-neighbors 50

  vamanactl query -index idx.bin -query '[0.1, 0.2, 0.3]' -k 10

  vamanactl recall -index idx.bin -vectors base.json -queries queries.json -k 10`)
}
