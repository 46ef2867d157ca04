package stdout

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"pipeflow/internal/options"
	"pipeflow/internal/record"
	"pipeflow/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	DelayMS      int  `yaml:"delay_ms"`      // artificial per-record delay
	PrintCounter bool `yaml:"print_counter"` // prepend seq#

	Writer io.Writer `yaml:"-"` // defaults to os.Stdout
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config

	mu  sync.Mutex // guards out+seq
	out *bufio.Writer
	seq uint64
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	switch c := raw.(type) {
	case Config:
		d.cfg = c
	case map[string]any:
		if err := options.DecodeTagged(c, &d.cfg, "yaml"); err != nil {
			return fmt.Errorf("stdout-sink: %w", err)
		}
	case nil:
	default:
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	w := d.cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	d.out = bufio.NewWriter(w)
	return nil
}

func (d *driver) Push(rec any) error {
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}
	b, err := record.Encode(rec)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.cfg.PrintCounter {
		fmt.Fprintf(d.out, "[sink %06d] ", d.seq)
	}
	d.out.Write(b)
	return d.out.WriteByte('\n')
}

/* ────────── sink.Flusher ────────── */
func (d *driver) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == nil {
		return nil
	}
	return d.out.Flush()
}

func (d *driver) Close() error {
	return d.Flush()
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
