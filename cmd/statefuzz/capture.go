package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/gocircum/statefuzz/core"
	"github.com/gocircum/statefuzz/core/capture"
	"github.com/gocircum/statefuzz/core/stategraph"
	"gopkg.in/yaml.v3"
)

const previewLen = 40

func decodeCapture(path, direction string, spans bool) ([]capture.Session, error) {
	dir, err := capture.ParseDirection(direction)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}
	return capture.DecodeSessions(data, capture.Options{Direction: dir, InferSpans: spans})
}

func runInspect(args []string, out io.Writer) error {
	fs := newFlagSet("inspect")
	path := fs.String("capture", "", "Path to a pcap or pcapng file")
	direction := fs.String("direction", "client", "Packets to keep (client, both)")
	verbose := fs.Bool("v", false, "Print every packet")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("-capture is required")
	}

	sessions, err := decodeCapture(*path, *direction, *verbose)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tSESSION\tPACKETS\tBYTES\tDROPPED")
	for i, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", i, s.Key, s.Sequence.Len(), s.Sequence.TotalBytes(), s.Dropped)
		if !*verbose {
			continue
		}
		for j := 0; j < s.Sequence.Len(); j++ {
			p := s.Sequence.At(j)
			data := p.Bytes()
			if len(data) > previewLen {
				data = data[:previewLen]
			}
			fmt.Fprintf(w, "\t  [%d] %d bytes, %d spans\t%s\t\t\n", j, p.Len(), len(p.Spans()), strconv.Quote(string(data)))
		}
	}
	return w.Flush()
}

func runExport(args []string, out io.Writer) error {
	fs := newFlagSet("export")
	path := fs.String("capture", "", "Path to a pcap or pcapng file")
	direction := fs.String("direction", "client", "Packets to keep (client, both)")
	session := fs.Int("session", 0, "Index of the session to export, as listed by inspect")
	dest := fs.String("out", "", "Output pcap file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" || *dest == "" {
		return fmt.Errorf("-capture and -out are required")
	}

	sessions, err := decodeCapture(*path, *direction, false)
	if err != nil {
		return err
	}
	if *session < 0 || *session >= len(sessions) {
		return fmt.Errorf("session %d out of range, capture has %d sessions", *session, len(sessions))
	}
	s := sessions[*session]
	data, err := capture.Encode(s.Sequence)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*dest, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", *dest, err)
	}
	fmt.Fprintf(out, "wrote %d packets of %s to %s\n", s.Sequence.Len(), s.Key, *dest)
	return nil
}

func runGraph(args []string, out io.Writer) error {
	fs := newFlagSet("graph")
	in := fs.String("in", "", "Saved graph (json or yaml)")
	dest := fs.String("out", "", "Output file; the extension picks the format. Empty prints a summary")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("failed to read graph: %w", err)
	}
	// JSON is valid YAML, so one decoder reads both formats.
	var snap stategraph.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse graph: %w", err)
	}

	if *dest == "" {
		return printSnapshot(out, snap)
	}
	f, err := os.Create(*dest)
	if err != nil {
		return err
	}
	if err := core.WriteSnapshot(f, snap, filepath.Ext(*dest)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSnapshot(out io.Writer, snap stategraph.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NODE\tSIGNATURE\tLABEL\tOUT-EDGES")
	outEdges := make(map[stategraph.NodeID]int)
	for _, e := range snap.Edges {
		outEdges[e.Source]++
	}
	fmt.Fprintf(w, "0\t-\tstart\t%d\n", outEdges[stategraph.StartNode])
	for _, n := range snap.Nodes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", n.ID, n.Signature, strconv.Quote(n.Label), outEdges[n.ID])
	}
	fmt.Fprintf(w, "\n%d states, %d transitions\n", len(snap.Nodes), len(snap.Edges))
	return w.Flush()
}
