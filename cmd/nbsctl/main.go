package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/nbsgate/internal/common"
	"example.com/nbsgate/internal/frames"
	"example.com/nbsgate/internal/ingest"
	"example.com/nbsgate/internal/nbs"
	"example.com/nbsgate/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "scan":
		scanCmd(os.Args[2:])
	case "dump":
		dumpCmd(os.Args[2:])
	case "order":
		orderCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "verify":
		verifyCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`nbsctl %s (built %s) <command> [options]

Commands:
  scan    --in <capture> [--index <frames.ndjson>] [--json <summary.json>]
  dump    --in <capture> [--count <n>]
  order   --in <capture>[,<capture>...] --out <file> [--timeout <seconds>] [--max-frames <n>]
  report  --in <capture> --out <report.pdf> [--json <summary.json>]
  verify  --in <capture> --summary <summary.json>
`, version, buildDate)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

type scanTally struct {
	commands    map[uint8]*report.CommandCount
	datastreams map[uint8]*report.DatastreamCount
	products    map[uint8]map[uint32]struct{}
}

func newScanTally() *scanTally {
	return &scanTally{
		commands:    make(map[uint8]*report.CommandCount),
		datastreams: make(map[uint8]*report.DatastreamCount),
		products:    make(map[uint8]map[uint32]struct{}),
	}
}

func (t *scanTally) add(frame []byte, fh *nbs.FrameHeader, pdh *nbs.ProductDefinitionHeader) {
	cc := t.commands[fh.Command]
	if cc == nil {
		cc = &report.CommandCount{Command: commandLabel(fh.Command)}
		t.commands[fh.Command] = cc
	}
	cc.Frames++
	cc.Bytes += int64(len(frame))

	if pdh == nil {
		return
	}
	dc := t.datastreams[fh.Datastream]
	if dc == nil {
		dc = &report.DatastreamCount{Datastream: fh.Datastream}
		t.datastreams[fh.Datastream] = dc
		t.products[fh.Datastream] = make(map[uint32]struct{})
	}
	dc.Frames++
	seen := t.products[fh.Datastream]
	if _, ok := seen[pdh.ProdSeqNum]; !ok {
		seen[pdh.ProdSeqNum] = struct{}{}
		dc.Products++
	}
}

func (t *scanTally) summarize() ([]report.CommandCount, []report.DatastreamCount) {
	var cmds []report.CommandCount
	for _, cc := range t.commands {
		cmds = append(cmds, *cc)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Command < cmds[j].Command })
	var streams []report.DatastreamCount
	for _, dc := range t.datastreams {
		streams = append(streams, *dc)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].Datastream < streams[j].Datastream })
	return cmds, streams
}

func commandLabel(command uint8) string {
	switch command {
	case nbs.CmdData:
		return "3 (data transfer)"
	case nbs.CmdTime:
		return "5 (time sync)"
	case nbs.CmdTest:
		return "10 (test)"
	default:
		return fmt.Sprintf("%d (unknown)", command)
	}
}

// scanCapture decodes every frame in the capture, tallying commands and
// datastreams and hashing the consumed bytes.
func scanCapture(path string, indexPath string) (report.IngestSummary, error) {
	var sum report.IngestSummary
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return sum, err
	}

	var index *ingest.NDJSONWriter
	if indexPath != "" {
		out, err := os.Create(indexPath)
		if err != nil {
			return sum, err
		}
		defer out.Close()
		buffered := bufio.NewWriter(out)
		defer buffered.Flush()
		index = ingest.NewNDJSONWriter(buffered)
	}

	metrics := common.NewMetrics()
	metrics.Start()
	metrics.SetTotalBytes(info.Size())
	stopProgress := common.StartProgressPrinter(os.Stderr, metrics, time.Second)
	defer stopProgress()

	digest := common.NewDigest()
	decoder := nbs.NewFrameDecoder(bufio.NewReaderSize(io.TeeReader(f, digest), 64*1024))
	decoder.SetMetrics(metrics)

	tally := newScanTally()
	for {
		frame, fh, pdh, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}
		tally.add(frame, fh, pdh)
		if index != nil {
			if err := index.WriteRecord(ingest.NewFrameRecord(decoder.Offset(), len(frame), fh, pdh)); err != nil {
				return sum, err
			}
		}
	}
	metrics.Stop()
	stopProgress()

	s := metrics.Snapshot()
	sum = report.IngestSummary{
		Capture:     path,
		Digest:      digest.Hex(),
		GeneratedAt: time.Now(),
		Elapsed:     s.Duration,
		Bytes:       s.Bytes,
		Frames:      s.Frames,
		Resyncs:     s.Resyncs,
	}
	sum.Commands, sum.Datastreams = tally.summarize()
	return sum, nil
}

func printSummary(sum report.IngestSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "capture\t%s\n", sum.Capture)
	fmt.Fprintf(w, "sha256\t%s\n", sum.Digest)
	fmt.Fprintf(w, "frames\t%d\n", sum.Frames)
	fmt.Fprintf(w, "bytes\t%s\n", common.FormatBytes(sum.Bytes))
	fmt.Fprintf(w, "resyncs\t%d\n", sum.Resyncs)
	fmt.Fprintf(w, "elapsed\t%s\n", sum.Elapsed.Round(time.Millisecond))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "command\tframes\tbytes")
	for _, cc := range sum.Commands {
		fmt.Fprintf(w, "%s\t%d\t%s\n", cc.Command, cc.Frames, common.FormatBytes(cc.Bytes))
	}
	if len(sum.Datastreams) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "datastream\tdata frames\tproducts")
		for _, dc := range sum.Datastreams {
			fmt.Fprintf(w, "%d\t%d\t%d\n", dc.Datastream, dc.Frames, dc.Products)
		}
	}
	w.Flush()
}

func scanCmd(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	in := fs.String("in", "", "input capture")
	index := fs.String("index", "", "NDJSON frame index output")
	jsonOut := fs.String("json", "", "summary JSON output")
	fs.Parse(args)
	if *in == "" {
		fail("scan: --in is required")
	}
	sum, err := scanCapture(*in, *index)
	if err != nil {
		fail("scan: %v", err)
	}
	printSummary(sum)
	if *jsonOut != "" {
		if err := report.SaveSummaryJSON(sum, *jsonOut); err != nil {
			fail("scan: write summary: %v", err)
		}
	}
}

func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	in := fs.String("in", "", "input capture")
	count := fs.Int("count", 0, "maximum frames to dump (0 = all)")
	fs.Parse(args)
	if *in == "" {
		fail("dump: --in is required")
	}
	f, err := os.Open(*in)
	if err != nil {
		fail("dump: %v", err)
	}
	defer f.Close()

	decoder := nbs.NewFrameDecoder(bufio.NewReaderSize(f, 64*1024))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "offset\tlen\tcmd\tstream\tsrc\tseq\trun\tprodSeq\tblk\tblkSize")
	defer w.Flush()
	for n := 0; *count == 0 || n < *count; n++ {
		frame, fh, pdh, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail("dump: %v", err)
		}
		if pdh != nil {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
				decoder.Offset(), len(frame), fh.Command, fh.Datastream, fh.Source,
				fh.SeqNum, fh.RunNum, pdh.ProdSeqNum, pdh.BlockNum, pdh.DataBlockSize)
		} else {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t-\t-\t-\n",
				decoder.Offset(), len(frame), fh.Command, fh.Datastream, fh.Source,
				fh.SeqNum, fh.RunNum)
		}
	}
}

func orderCmd(args []string) {
	fs := flag.NewFlagSet("order", flag.ExitOnError)
	in := fs.String("in", "", "comma-separated input captures")
	out := fs.String("out", "", "ordered output file")
	timeout := fs.Float64("timeout", 1.0, "reveal timeout in seconds")
	maxFrames := fs.Int("max-frames", 1000, "reordering buffer capacity")
	fs.Parse(args)
	if *in == "" || *out == "" {
		fail("order: --in and --out are required")
	}

	var sources []ingest.Source
	for _, p := range strings.Split(*in, ",") {
		f, err := os.Open(p)
		if err != nil {
			fail("order: %v", err)
		}
		defer f.Close()
		sources = append(sources, ingest.Source{Name: p, Reader: bufio.NewReaderSize(f, 64*1024)})
	}
	outFile, err := os.Create(*out)
	if err != nil {
		fail("order: %v", err)
	}
	defer outFile.Close()
	buffered := bufio.NewWriter(outFile)
	defer buffered.Flush()

	metrics := common.NewMetrics()
	metrics.Start()
	pipeline := ingest.NewPipeline(ingest.Options{
		MaxFrames: *maxFrames,
		Timeout:   time.Duration(*timeout * float64(time.Second)),
		Metrics:   metrics,
	})
	var released int64
	err = pipeline.Run(sources, func(frame frames.Frame) error {
		released++
		_, werr := buffered.Write(frame.Data)
		return werr
	})
	metrics.Stop()
	if err != nil {
		fail("order: %v", err)
	}

	s := metrics.Snapshot()
	fmt.Printf("ordered %d frames (%s) to %s: resyncs=%d duplicates=%d late=%d dropped=%d in %s\n",
		released, common.FormatBytes(s.Bytes), *out, s.Resyncs, s.Duplicates, s.Late, s.Dropped,
		s.Duration.Round(time.Millisecond))
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "input capture")
	out := fs.String("out", "report.pdf", "PDF output")
	jsonOut := fs.String("json", "", "summary JSON output")
	fs.Parse(args)
	if *in == "" {
		fail("report: --in is required")
	}
	sum, err := scanCapture(*in, "")
	if err != nil {
		fail("report: %v", err)
	}
	if err := report.SaveSummaryPDF(sum, *out); err != nil {
		fail("report: write pdf: %v", err)
	}
	if *jsonOut != "" {
		if err := report.SaveSummaryJSON(sum, *jsonOut); err != nil {
			fail("report: write summary: %v", err)
		}
	}
	fmt.Printf("report written to %s\n", *out)
}

// verifyCmd re-hashes a capture and compares it against the digest a
// previous scan recorded.
func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	in := fs.String("in", "", "input capture")
	summaryPath := fs.String("summary", "", "summary JSON from a previous scan")
	fs.Parse(args)
	if *in == "" || *summaryPath == "" {
		fail("verify: --in and --summary are required")
	}

	sum, err := report.LoadSummaryJSON(*summaryPath)
	if err != nil {
		fail("verify: load summary: %v", err)
	}
	digest, size, err := common.FileDigest(*in)
	if err != nil {
		fail("verify: %v", err)
	}
	if digest != sum.Digest {
		fail("verify: digest mismatch\n  capture %s\n  summary %s", digest, sum.Digest)
	}
	fmt.Printf("%s verified: %s (%s)\n", *in, digest, common.FormatBytes(size))
}
