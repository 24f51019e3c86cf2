package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	viewengine "github.com/wippyai/view-engine"
	"github.com/wippyai/view-engine/engine"
	"github.com/wippyai/view-engine/indexer"
)

func main() {
	var (
		mapFiles    = flag.String("map", "", "Comma-separated map function files")
		reduceFiles = flag.String("reduce", "", "Comma-separated reduce function files")
		kindStr     = flag.String("kind", "mapreduce", "Index kind (mapreduce or spatial)")
		docsFile    = flag.String("docs", "", "File with one JSON document per line (default stdin)")
		budget      = flag.Int("budget", 0, "Per-function emit budget in bytes (0 = 1 MiB default, negative = unlimited)")
		timeout     = flag.Duration("timeout", 5*time.Second, "Per-document timeout (0 = none)")
		workers     = flag.Int("workers", 0, "Mapping workers (0 = NumCPU)")
		metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *mapFiles == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -map <fn.js[,fn2.js]> [-reduce <fn.js,...>] [-docs <file>] [flags]")
		fmt.Fprintln(os.Stderr, "       run -map <fn.js> -i  (interactive mode)")
		os.Exit(1)
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	if err := engine.Init(exe); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer engine.Deinit()

	if *interactive {
		if err := runInteractive(*mapFiles, *reduceFiles, *kindStr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", indexer.MetricsHandler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	if err := run(*mapFiles, *reduceFiles, *kindStr, *docsFile, *budget, *workers, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(mapFiles, reduceFiles, kindStr, docsFile string, budget, workers int, timeout time.Duration) error {
	mapSources, err := readSources(mapFiles)
	if err != nil {
		return err
	}

	var reduceSources []string
	if reduceFiles != "" {
		if reduceSources, err = readSources(reduceFiles); err != nil {
			return err
		}
		if len(reduceSources) > len(mapSources) {
			return fmt.Errorf("%d reduce function(s) for %d map function(s)", len(reduceSources), len(mapSources))
		}
	}

	kind, err := parseKind(kindStr)
	if err != nil {
		return err
	}

	if docsFile == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("stdin is a terminal; pipe documents in or pass -docs")
	}

	docs, err := readDocs(docsFile)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Mapping %d document(s) with %d function(s)...\n", len(docs), len(mapSources))

	ix := indexer.New(mapSources, indexer.Config{
		Workers:      workers,
		DocTimeout:   timeout,
		MaxEmitBytes: budget,
		Index:        kind,
	})
	results, err := ix.MapAll(context.Background(), docs)
	if err != nil {
		return fmt.Errorf("map: %w", err)
	}

	// Rows print as TSV: docID, function index, key, value. Rows also
	// accumulate per map slot so reduce function i can consume the rows
	// of map function i.
	keysBySlot := make([][][]byte, len(mapSources))
	valuesBySlot := make([][][]byte, len(mapSources))
	var failures int
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "doc %s: %v\n", res.DocID, res.Err)
			failures++
			continue
		}
		for fi, mr := range res.Results {
			kvs, ok := mr.KVs()
			if !ok {
				fmt.Fprintf(os.Stderr, "doc %s function %d: %v\n", res.DocID, fi, mr.Err())
				failures++
				continue
			}
			for _, kv := range kvs {
				fmt.Printf("%s\t%d\t%s\t%s\n", res.DocID, fi, kv.Key, kv.Value)
				keysBySlot[fi] = append(keysBySlot[fi], kv.Key)
				valuesBySlot[fi] = append(valuesBySlot[fi], kv.Value)
			}
		}
		for _, line := range res.Logs {
			fmt.Fprintf(os.Stderr, "log %s: %s\n", res.DocID, line)
		}
	}

	if len(reduceSources) > 0 {
		red, err := indexer.NewReducer(reduceSources, kind)
		if err != nil {
			return fmt.Errorf("compile reduce functions: %w", err)
		}
		defer red.Close()

		for ri := range reduceSources {
			out, err := red.ReduceOne(ri, keysBySlot[ri], valuesBySlot[ri])
			if err != nil {
				fmt.Fprintf(os.Stderr, "reduce %d: %v\n", ri, err)
				failures++
				continue
			}
			fmt.Printf("reduce[%d]\t%s\n", ri, out)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d failure(s)", failures)
	}
	return nil
}

// readSources loads one script per comma-separated path.
func readSources(list string) ([]string, error) {
	var sources []string
	for _, path := range strings.Split(list, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read function: %w", err)
		}
		sources = append(sources, string(data))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no function files in %q", list)
	}
	return sources, nil
}

type docIDProbe struct {
	ID string `json:"_id"`
}

// readDocs reads one JSON document per line from path, or stdin when path
// is empty. A document's _id field names it; otherwise IDs are doc-N in
// input order.
func readDocs(path string) ([]indexer.Document, error) {
	var r io.Reader = os.Stdin
	name := "stdin"
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
		name = path
	}

	var docs []indexer.Document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	n := 0
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		n++
		id := fmt.Sprintf("doc-%d", n)
		var probe docIDProbe
		if err := json.Unmarshal(line, &probe); err == nil && probe.ID != "" {
			id = probe.ID
		}
		docs = append(docs, indexer.Document{
			ID:   id,
			Body: append([]byte(nil), line...),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return docs, nil
}

func parseKind(s string) (viewengine.IndexType, error) {
	switch s {
	case "", "mapreduce":
		return viewengine.IndexTypeMapReduce, nil
	case "spatial":
		return viewengine.IndexTypeSpatial, nil
	default:
		return 0, fmt.Errorf("unknown index kind %q", s)
	}
}
