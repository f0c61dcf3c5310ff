package quant

import (
	"fmt"

	"chatd/internal/nn"
)

type convertFunc func(l *nn.Linear, perChannel bool) (*nn.QuantizedLinear, error)

// Model is a graph owner whose root can be swapped wholesale.
type Model interface {
	Graph() *nn.Container
	SetGraph(*nn.Container)
}

// transient counts float layers that currently coexist with their quantized
// copy, and remembers the high-water mark.
type transient struct {
	cur, peak int
}

func (t *transient) acquire() {
	t.cur++
	if t.cur > t.peak {
		t.peak = t.cur
	}
}

func (t *transient) release() { t.cur-- }

type executor struct {
	opts       Options
	perChannel bool
	convert    convertFunc
	live       transient
	converted  int
	failed     int
}

func newExecutor(opts Options, eng Engine) *executor {
	conv := opts.convert
	if conv == nil {
		conv = nn.QuantizeWeights
	}
	return &executor{opts: opts, perChannel: eng.PerChannel(), convert: conv}
}

// quantizeOne converts a single layer and recovers from panics in the kernel.
func (e *executor) quantizeOne(l *nn.Linear) (q *nn.QuantizedLinear, err error) {
	defer func() {
		if r := recover(); r != nil {
			q, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return e.convert(l, e.perChannel)
}

// layerwise walks p and converts each direct Linear child in isolation. The
// float layer is released as soon as its slot holds the quantized copy.
func (e *executor) layerwise(p nn.Parent, path string) {
	log := e.opts.logger()
	for i := 0; i < p.NumChildren(); i++ {
		ch := p.Child(i)
		cpath := path + "." + ch.Name()
		switch c := ch.(type) {
		case *nn.Linear:
			q, err := e.quantizeOne(c)
			if err != nil {
				e.failed++
				log.Warn().Err(err).Str("layer", cpath).Msg("layer quantization failed, keeping float layer")
				continue
			}
			e.live.acquire()
			old, err := p.Replace(i, q)
			if err != nil {
				e.live.release()
				q.Release()
				e.failed++
				log.Warn().Err(err).Str("layer", cpath).Msg("layer swap failed, keeping float layer")
				continue
			}
			if r, ok := old.(nn.Releaser); ok {
				r.Release()
			}
			e.live.release()
			e.converted++
		case nn.Parent:
			e.layerwise(c, cpath)
		}
	}
}

// bulk converts every Linear into a new graph and swaps the root in one
// step. Any failure discards the new graph and leaves the model as it was.
func (e *executor) bulk(m Model) (err error) {
	var created []*nn.QuantizedLinear
	var replaced []*nn.Linear
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			for _, q := range created {
				q.Release()
			}
			e.live.cur = 0
			// the converted layers are discarded along with the one that failed
			e.failed += len(created) + 1
			e.converted = 0
		}
	}()

	var rebuild func(c *nn.Container, path string) (*nn.Container, error)
	rebuild = func(c *nn.Container, path string) (*nn.Container, error) {
		cp := c.ShallowCopy()
		for i := 0; i < cp.NumChildren(); i++ {
			ch := cp.Child(i)
			cpath := path + "." + ch.Name()
			var repl nn.Module
			switch v := ch.(type) {
			case *nn.Linear:
				q, err := e.quantizeOne(v)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", cpath, err)
				}
				e.live.acquire()
				created = append(created, q)
				replaced = append(replaced, v)
				repl = q
			case *nn.Container:
				sub, err := rebuild(v, cpath)
				if err != nil {
					return nil, err
				}
				repl = sub
			default:
				continue
			}
			if _, err := cp.Replace(i, repl); err != nil {
				return nil, err
			}
		}
		return cp, nil
	}

	root := m.Graph()
	next, err := rebuild(root, root.Name())
	if err != nil {
		return err
	}
	m.SetGraph(next)
	for _, l := range replaced {
		l.Release()
		e.live.release()
	}
	e.converted = len(created)
	return nil
}

// CountQuantized returns the number of dynamic int8 layers in the graph.
func CountQuantized(root nn.Module) int {
	n := 0
	nn.Walk(root, func(_ string, m nn.Module) bool {
		if _, ok := m.(*nn.QuantizedLinear); ok {
			n++
		}
		return true
	})
	return n
}

// CountLinear returns the number of float dense layers in the graph.
func CountLinear(root nn.Module) int {
	n := 0
	nn.Walk(root, func(_ string, m nn.Module) bool {
		if _, ok := m.(*nn.Linear); ok {
			n++
		}
		return true
	})
	return n
}
