package backend

import (
	"errors"
	"sync"
	"time"

	"github.com/x448/float16"

	"github.com/samcharles93/qtensor/internal/logger"
	"github.com/samcharles93/qtensor/pkg/quant"
)

// Dispatcher routes quantize and dequantize calls to a strategy. It owns a
// worker pool sized once at construction and tracks asynchronous work
// until Sync.
type Dispatcher struct {
	cfg       Config
	caps      Capabilities
	capsSet   bool
	threshold int
	log       logger.Logger
	metrics   *Metrics
	pool      *pool

	// submit orders inflight.Add in DequantizeAsync against inflight.Wait
	// in Sync.
	submit   sync.RWMutex
	inflight sync.WaitGroup
	mu       sync.Mutex
	asyncErr error
}

type Option func(*Dispatcher)

func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithParallelThreshold overrides Config.ParallelThreshold.
func WithParallelThreshold(blocks int) Option {
	return func(d *Dispatcher) { d.threshold = blocks }
}

// WithCapabilities replaces detection, including the thread count.
func WithCapabilities(c Capabilities) Option {
	return func(d *Dispatcher) {
		d.caps = c
		d.capsSet = true
	}
}

// New builds a dispatcher. A non-positive cfg.Threads falls back to the
// process default.
func New(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:       cfg,
		threshold: cfg.ParallelThreshold,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if !d.capsSet {
		d.caps = DetectCapabilities()
		if cfg.Threads > 0 {
			d.caps.Threads = cfg.Threads
		}
	}
	if d.threshold <= 0 {
		d.threshold = DefaultParallelThreshold
	}
	if d.caps.Threads > 1 {
		d.pool = newPool(d.caps.Threads)
	}
	d.log.Debug("dispatcher ready",
		"threads", d.caps.Threads,
		"features", d.caps.Features(),
		"default", d.cfg.Backend.String(),
		"parallel_threshold", d.threshold,
	)
	return d
}

var (
	defaultOnce       sync.Once
	defaultDispatcher *Dispatcher
)

// Default returns the process-wide dispatcher built from DefaultConfig.
func Default() *Dispatcher {
	defaultOnce.Do(func() {
		defaultDispatcher = New(DefaultConfig())
	})
	return defaultDispatcher
}

func (d *Dispatcher) Capabilities() Capabilities { return d.caps }

// Resolve maps kind to the concrete strategy used for a tensor of the given
// block count. Auto picks Parallel for large tensors, then SIMD, then Scalar.
func (d *Dispatcher) Resolve(kind Kind, blocks int) (Kind, error) {
	if kind == Auto {
		kind = d.cfg.Backend
	}
	if kind == Auto {
		switch {
		case d.caps.Available(Parallel) && blocks >= d.threshold:
			return Parallel, nil
		case d.caps.Available(SIMD):
			return SIMD, nil
		default:
			return Scalar, nil
		}
	}
	if err := d.caps.Check(kind); err != nil {
		d.metrics.unavailable(kind)
		return kind, err
	}
	return kind, nil
}

func (d *Dispatcher) decoder(kind Kind) rangeDecoder {
	switch kind {
	case SIMD:
		return vectorRange
	case Parallel:
		if d.caps.Vector() {
			return vectorRange
		}
		return scalarRange
	default:
		return scalarRange
	}
}

// run executes body over [0, blocks) on the calling goroutine, or split
// across the pool for the parallel strategy. The first error wins.
func (d *Dispatcher) run(kind Kind, blocks int, body func(lo, hi int) error) error {
	if blocks == 0 {
		return nil
	}
	if kind != Parallel || d.pool == nil {
		return body(0, blocks)
	}
	var (
		mu    sync.Mutex
		first error
	)
	d.pool.run(blocks, func(lo, hi int) {
		if err := body(lo, hi); err != nil {
			mu.Lock()
			if first == nil {
				first = err
			}
			mu.Unlock()
		}
	})
	return first
}

func (d *Dispatcher) prepare(t *quant.Tensor, n int, kind Kind) (Kind, error) {
	if t == nil {
		return kind, errors.New("backend: nil tensor")
	}
	k, err := d.Resolve(kind, t.Blocks())
	if err != nil {
		return k, err
	}
	if n != t.Elements() {
		return k, &quant.SizeMismatchError{Format: t.Format(), What: "values", Want: t.Elements(), Got: n}
	}
	return k, nil
}

// Dequantize decodes t into a new slice. An unavailable backend is reported
// before any work starts.
func (d *Dispatcher) Dequantize(t *quant.Tensor, kind Kind) ([]float32, error) {
	if t == nil {
		return nil, errors.New("backend: nil tensor")
	}
	out := make([]float32, t.Elements())
	if err := d.DequantizeInto(out, t, kind); err != nil {
		return nil, err
	}
	return out, nil
}

// DequantizeF16 decodes t and rounds every value to binary16.
func (d *Dispatcher) DequantizeF16(t *quant.Tensor, kind Kind) ([]float16.Float16, error) {
	if t == nil {
		return nil, errors.New("backend: nil tensor")
	}
	out := make([]float16.Float16, t.Elements())
	if err := d.DequantizeF16Into(out, t, kind); err != nil {
		return nil, err
	}
	return out, nil
}

// DequantizeInto decodes t into dst, which must hold exactly
// t.Elements() values.
func (d *Dispatcher) DequantizeInto(dst []float32, t *quant.Tensor, kind Kind) error {
	k, err := d.prepare(t, len(dst), kind)
	if err != nil {
		return err
	}
	return d.dequantizeInto(dst, t, k)
}

func (d *Dispatcher) dequantizeInto(dst []float32, t *quant.Tensor, k Kind) error {
	start := time.Now()
	decode := d.decoder(k)
	f, src := t.Format(), t.View()
	err := d.run(k, t.Blocks(), func(lo, hi int) error {
		return decode(f, src, dst, lo, hi)
	})
	d.finish("dequantize", k, t, start, err)
	return err
}

// DequantizeF16Into is the binary16 counterpart of DequantizeInto.
func (d *Dispatcher) DequantizeF16Into(dst []float16.Float16, t *quant.Tensor, kind Kind) error {
	k, err := d.prepare(t, len(dst), kind)
	if err != nil {
		return err
	}
	start := time.Now()
	decode := d.decoder(k)
	f, src := t.Format(), t.View()
	err = d.run(k, t.Blocks(), func(lo, hi int) error {
		return halfRange(decode, f, src, dst, lo, hi)
	})
	d.finish("dequantize_f16", k, t, start, err)
	return err
}

// Quantize encodes values with the selected strategy. Blocks are encoded
// independently, so every strategy produces the same bytes; SIMD encodes on
// the calling goroutine.
func (d *Dispatcher) Quantize(values []float32, shape quant.Shape, f quant.Format, kind Kind) (*quant.Tensor, error) {
	blocks := 0
	if n, err := shape.Elements(); err == nil && f.Valid() && quant.IsMultipleOf(n, f.BlockSize()) {
		blocks = n / f.BlockSize()
	}
	k, err := d.Resolve(kind, blocks)
	if err != nil {
		return nil, err
	}
	run := quant.RangeFunc(quant.Serial)
	if k == Parallel && d.pool != nil {
		run = d.pool.run
	}
	start := time.Now()
	t, err := quant.QuantizeWith(values, shape, f, run)
	if err != nil {
		return nil, err
	}
	d.metrics.quantized(k, f.String(), t.Blocks(), time.Since(start))
	d.log.Debug("quantized", "format", f.String(), "backend", k.String(), "blocks", t.Blocks(), "elapsed", time.Since(start))
	return t, nil
}

// DequantizeAsync validates its arguments, then decodes in the background.
// Results in dst are only defined after Sync returns. Submissions made while
// a Sync is waiting block until it returns and belong to the next Sync.
func (d *Dispatcher) DequantizeAsync(dst []float32, t *quant.Tensor, kind Kind) error {
	k, err := d.prepare(t, len(dst), kind)
	if err != nil {
		return err
	}
	d.submit.RLock()
	d.inflight.Add(1)
	d.submit.RUnlock()
	go func() {
		defer d.inflight.Done()
		if err := d.dequantizeInto(dst, t, k); err != nil {
			d.mu.Lock()
			if d.asyncErr == nil {
				d.asyncErr = err
			}
			d.mu.Unlock()
		}
	}()
	return nil
}

// Sync blocks until all work started by DequantizeAsync has finished and
// returns the first error any of it produced.
func (d *Dispatcher) Sync() error {
	d.submit.Lock()
	d.inflight.Wait()
	d.submit.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.asyncErr
	d.asyncErr = nil
	return err
}

// ParallelFor runs body over [0, n) on the worker pool, or inline when the
// dispatcher has a single thread.
func (d *Dispatcher) ParallelFor(n int, body func(lo, hi int)) {
	if d.pool == nil {
		quant.Serial(n, body)
		return
	}
	d.pool.run(n, body)
}

// Close waits for pending work and stops the workers.
func (d *Dispatcher) Close() error {
	err := d.Sync()
	if d.pool != nil {
		d.pool.close()
		d.pool = nil
	}
	return err
}

func (d *Dispatcher) finish(op string, k Kind, t *quant.Tensor, start time.Time, err error) {
	took := time.Since(start)
	if err != nil {
		d.log.Error(op+" failed", "format", t.Format().String(), "backend", k.String(), "error", err)
		return
	}
	d.metrics.dequantized(k, t.Format().String(), t.Blocks(), took)
	d.log.Debug(op, "format", t.Format().String(), "backend", k.String(), "blocks", t.Blocks(), "elapsed", took)
}
