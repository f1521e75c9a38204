// whisker-stats merges the whisker dumps written by several senders and
// prints how often each whisker was used, as CSV.
package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/remycc/logging"
	"github.com/m-lab/remycc/whiskers"
)

var (
	output = flag.String("output", "", "Write the CSV here instead of the standard output.")
	top    = flag.Int("top", 0, "Only print the N most used whiskers; 0 prints all in table order.")
	unused = flag.Bool("unused", true, "Include whiskers that were never used.")
)

var errNoDumps = errors.New("no whisker dumps given")

func readDump(path string) ([]whiskers.Usage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer warnonerror.Close(f, "Could not close "+path)
	return whiskers.ParseDump(f)
}

func run(paths []string, w io.Writer) error {
	if len(paths) == 0 {
		return errNoDumps
	}
	var dumps [][]whiskers.Usage
	for _, p := range paths {
		u, err := readDump(p)
		if err != nil {
			return err
		}
		logging.Logger.WithField("file", p).WithField("whiskers", len(u)).Debug("read dump")
		dumps = append(dumps, u)
	}
	merged := whiskers.Merge(dumps...)
	if !*unused {
		used := merged[:0]
		for _, u := range merged {
			if u.Used > 0 {
				used = append(used, u)
			}
		}
		merged = used
	}
	if *top > 0 {
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Used > merged[j].Used })
		if len(merged) > *top {
			merged = merged[:*top]
		}
	}
	return gocsv.Marshal(merged, w)
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not get args from environment")

	var w io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		rtx.Must(err, "Could not create %s", *output)
		defer warnonerror.Close(f, "Could not close "+*output)
		w = f
	}
	rtx.Must(run(flag.Args(), w), "Could not merge whisker dumps")
}
