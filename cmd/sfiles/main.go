package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/plan-systems/klog"

	"github.com/sfiles-systems/gosfiles/gosfiles"
	"github.com/sfiles-systems/gosfiles/libsfiles"
	"github.com/sfiles-systems/gosfiles/libsfiles/catalog"
)

var (
	emitV1    = flag.Bool("v1", false, "emit legacy v1 notation (tag blocks dropped)")
	noNum     = flag.Bool("nonum", false, "strip unit instance numbering (template form)")
	rawOrder  = flag.Bool("raw", false, "encode in numeric-index order instead of canonical order")
	normalize = flag.String("normalize", "", "heat-integration rewrite before encoding: merge or split")
	dbPath    = flag.String("db", "", "catalog db path; each canonical form is added (dedupe by string)")
	match     = flag.String("match", "", "list catalog entries with this prefix and exit (requires -db)")
)

func main() {

	fset := flag.NewFlagSet("", flag.ContinueOnError)
	klog.InitFlags(fset)
	fset.Set("logtostderr", "true")
	fset.Set("v", "2")
	klog.SetFormatter(&klog.FmtConstWidth{
		FileNameCharWidth: 16,
		UseColor:          true,
	})

	flag.Parse()

	status := run()
	klog.Flush()
	os.Exit(status)
}

func run() int {
	opts := gosfiles.DefaultEncodeOpts
	if *emitV1 {
		opts.Version = gosfiles.V1
	}
	opts.RemoveNumbering = *noNum
	opts.Canonical = !*rawOrder

	ctx := gosfiles.NewCatalogContext()
	defer ctx.Close()

	var cat gosfiles.Catalog
	if *dbPath != "" {
		var err error
		cat, err = catalog.OpenCatalog(ctx, gosfiles.CatalogOpts{
			DbPathName: *dbPath,
			ReadOnly:   *match != "",
		})
		if err != nil {
			klog.Errorf("open catalog: %v", err)
			return 1
		}
		defer cat.Close()
	}

	if *match != "" {
		if cat == nil {
			klog.Errorf("-match requires -db")
			return 1
		}
		err := cat.Select(*match, func(canonical string) bool {
			fmt.Println(canonical)
			return true
		})
		if err != nil {
			klog.Errorf("select: %v", err)
			return 1
		}
		return 0
	}

	status := 0
	for sfiles := range inputs() {
		if err := emit(sfiles, opts, cat); err != nil {
			klog.Errorf("%q: %v", sfiles, err)
			status = 1
		}
	}
	return status
}

// inputs yields each SFILES string named on the command line, or each
// non-empty stdin line when no args are given.
func inputs() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		if flag.NArg() > 0 {
			for _, arg := range flag.Args() {
				out <- arg
			}
			return
		}
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				out <- line
			}
		}
	}()
	return out
}

func emit(sfiles string, opts gosfiles.EncodeOpts, cat gosfiles.Catalog) error {
	X, err := libsfiles.Parse(sfiles)
	if err != nil {
		return err
	}

	switch *normalize {
	case "":
	case "merge":
		X, err = libsfiles.NormalizeHeatIntegration(X, gosfiles.MergeHeatX)
	case "split":
		X, err = libsfiles.NormalizeHeatIntegration(X, gosfiles.SplitHeatX)
	default:
		return fmt.Errorf("unknown -normalize mode %q", *normalize)
	}
	if err != nil {
		return err
	}

	canonical, err := libsfiles.Encode(X, opts)
	if err != nil {
		return err
	}
	fmt.Println(canonical)

	if cat != nil {
		added, err := cat.TryAdd(canonical)
		if err != nil {
			return err
		}
		if added {
			klog.V(2).Infof("added to catalog: %s", canonical)
		}
	}
	return nil
}
