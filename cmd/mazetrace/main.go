package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"mazeworld/internal/trace"
)

func main() {
	dir := flag.String("dir", "", "trace directory; every drive-*.jsonl.zst file is read in order")
	asJSON := flag.Bool("json", false, "print entries as JSON lines")
	summary := flag.Bool("summary", false, "print totals only")
	flag.Parse()

	files := flag.Args()
	if *dir != "" {
		found, err := trace.Files(*dir, "drive")
		if err != nil {
			fmt.Fprintf(os.Stderr, "list traces: %v\n", err)
			os.Exit(1)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mazetrace [-json] [-summary] [-dir traces] file.jsonl.zst...")
		os.Exit(2)
	}

	var totals struct {
		cycles, generated, evicted, failed, changes int
		elapsed                                     time.Duration
	}
	enc := json.NewEncoder(os.Stdout)
	for _, path := range files {
		err := trace.Scan(path, func(e trace.Entry) bool {
			totals.cycles++
			totals.generated += len(e.Generated)
			totals.evicted += len(e.Evicted)
			totals.failed += len(e.Failed)
			totals.changes += e.WallChanges
			totals.elapsed += time.Duration(e.DurationUS) * time.Microsecond
			switch {
			case *summary:
			case *asJSON:
				_ = enc.Encode(e)
			default:
				printEntry(e)
			}
			return true
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	if *asJSON {
		return
	}
	fmt.Printf("cycles=%d generated=%d evicted=%d failed=%d wallChanges=%d time=%s\n",
		totals.cycles, totals.generated, totals.evicted, totals.failed, totals.changes, totals.elapsed)
}

func printEntry(e trace.Entry) {
	fmt.Printf("%s #%d observer=(%.2f,%.2f) center=%v gen=%d evict=%d walls=%d took=%s\n",
		e.Time.Format(time.RFC3339Nano), e.Cycle, e.Observer[0], e.Observer[1], e.Center,
		len(e.Generated), len(e.Evicted), e.WallChanges, time.Duration(e.DurationUS)*time.Microsecond)
	if len(e.Failed) > 0 {
		keys := make([]string, 0, len(e.Failed))
		for k := range e.Failed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  failed %s: %s\n", k, e.Failed[k])
		}
	}
	if len(e.Generated) > 0 {
		parts := make([]string, 0, len(e.Generated))
		for _, c := range e.Generated {
			parts = append(parts, fmt.Sprintf("%v:%.8s", c, e.Fingerprints[c.String()]))
		}
		fmt.Printf("  generated %s\n", strings.Join(parts, " "))
	}
}
