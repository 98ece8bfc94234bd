package jsfilter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/ytget/mediamux/media/formats"
)

type gojaFilter struct {
	prog    *goja.Program
	timeout time.Duration

	mu sync.Mutex
	vm *goja.Runtime
}

func newGoja(expr string, timeout time.Duration) (*gojaFilter, error) {
	prog, err := goja.Compile("filter", "("+expr+")", true)
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return &gojaFilter{prog: prog, timeout: timeout, vm: goja.New()}, nil
}

func (g *gojaFilter) Match(c formats.CombinedFormat) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.vm.Set("f", View(c)); err != nil {
		return false, err
	}
	g.vm.ClearInterrupt()
	fired := make(chan struct{})
	timer := time.AfterFunc(g.timeout, func() {
		g.vm.Interrupt(ErrTimeout)
		close(fired)
	})
	res, err := g.vm.RunProgram(g.prog)
	if !timer.Stop() {
		// The callback is running or done; its Interrupt must land before
		// the clear below.
		<-fired
	}
	g.vm.ClearInterrupt()
	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return false, ErrTimeout
		}
		return false, fmt.Errorf("run filter: %w", err)
	}
	return res.ToBoolean(), nil
}
