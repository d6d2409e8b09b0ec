package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/wippyai/continuation/chunk"
	"github.com/wippyai/continuation/engine"
)

func main() {
	var (
		frames      = flag.String("frames", "c8:2,i4:1,c6:1", "Frame layout, bottom first (c<size>:<args>, i<locals>:<args>, m suffix holds a monitor)")
		slow        = flag.Bool("slow", false, "Force the slow freeze/thaw paths")
		tlab        = flag.Int("tlab", 4096, "TLAB budget in words")
		threshold   = flag.Int("threshold", 0, "Whole-chunk thaw threshold in words (0 = default)")
		trace       = flag.Bool("trace", false, "Trace the thaw drain after dumping")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *interactive {
		if err := runInteractive(*frames, *slow, *tlab, *threshold); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*frames, *slow, *tlab, *threshold, *trace); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(framesStr string, slow bool, tlab, threshold int, trace bool) error {
	specs, err := parseFrames(framesStr)
	if err != nil {
		return fmt.Errorf("parse frames: %w", err)
	}
	s := buildScenario(specs)
	e, err := s.newEngine(slow, tlab, threshold)
	if err != nil {
		return fmt.Errorf("resolve engine: %w", err)
	}
	s.car.FastPathAllowed = !slow

	fmt.Printf("Stack: %d words, entry sp %d, suspend sp %d\n",
		synthStackWords, synthEntrySP, s.car.SP)

	res, err := e.Freeze(s.car, s.car.SP)
	fmt.Printf("Freeze: %s\n", res)
	if err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	if !res.OK() {
		return nil
	}

	c := s.car.Entry.Tail()
	if err := dumpChunk(s, c); err != nil {
		return err
	}

	if !trace {
		return nil
	}
	fmt.Printf("\nThaw drain:\n")
	kind := engine.ThawTop
	for step := 1; ; step++ {
		need, err := e.PrepareThaw(s.car, kind != engine.ThawTop)
		if err != nil {
			return fmt.Errorf("prepare thaw: %w", err)
		}
		if need == 0 {
			fmt.Printf("  drained, carrier sp %d\n", s.car.SP)
			return nil
		}
		if _, err := e.Thaw(s.car, kind); err != nil {
			return fmt.Errorf("thaw step %d: %w", step, err)
		}
		left := 0
		if t := s.car.Entry.Tail(); t != nil && !t.IsEmpty() {
			left, _ = t.NumFrames(s)
		}
		fmt.Printf("  step %d (%s): need %d bytes, carrier sp %d, %d frames left\n",
			step, kind, need, s.car.SP, left)
		kind = engine.ThawReturnBarrier
	}
}

func dumpChunk(s *scenario, c *chunk.Chunk) error {
	var flags []string
	if c.HasMixedFrames() {
		flags = append(flags, "mixed")
	}
	if c.HasBitmap() {
		flags = append(flags, "bitmap")
	}
	if c.RequiresBarriers() {
		flags = append(flags, "barriers")
	}
	if len(flags) == 0 {
		flags = append(flags, "none")
	}

	fmt.Printf("\nChunk: %d words, sp %d, argsize %d, maxSize %d, flags %s\n",
		c.Size(), c.SP(), c.ArgSize(), c.MaxSize(), strings.Join(flags, "|"))

	fmt.Printf("\n  %-4s %-10s %-12s %-6s %-6s %-6s\n", "#", "pc", "name", "kind", "size", "args")
	st := chunk.NewStream(c, s)
	for i := 0; st.More(); i++ {
		f, info, err := st.Next()
		if err != nil {
			return fmt.Errorf("walk chunk: %w", err)
		}
		fmt.Printf("  %-4d %-10s %-12s %-6s %-6d %-6d\n",
			i, fmt.Sprintf("%#x", f.PC), info.Name, f.Kind, f.Size, f.ArgSize)
	}
	return nil
}
