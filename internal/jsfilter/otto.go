package jsfilter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robertkrimen/otto"

	"github.com/ytget/mediamux/media/formats"
)

type ottoFilter struct {
	src     string
	script  *otto.Script
	timeout time.Duration

	mu sync.Mutex
	vm *otto.Otto
}

func newOtto(expr string, timeout time.Duration) (*ottoFilter, error) {
	o := &ottoFilter{src: "(" + expr + ")", timeout: timeout}
	if err := o.reset(); err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	return o, nil
}

// reset starts over on a fresh runtime; an interrupted one is not reused.
func (o *ottoFilter) reset() error {
	vm := otto.New()
	script, err := vm.Compile("filter", o.src)
	if err != nil {
		return err
	}
	o.vm, o.script = vm, script
	return nil
}

var errOttoHalt = errors.New("halt")

func (o *ottoFilter) Match(c formats.CombinedFormat) (matched bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.vm.Set("f", View(c)); err != nil {
		return false, err
	}

	interrupt := make(chan func(), 1)
	o.vm.Interrupt = interrupt
	timer := time.AfterFunc(o.timeout, func() {
		select {
		case interrupt <- func() { panic(errOttoHalt) }:
		default:
		}
	})
	defer func() {
		timer.Stop()
		if r := recover(); r != nil {
			if r != errOttoHalt {
				panic(r)
			}
			matched, err = false, ErrTimeout
			_ = o.reset()
		}
	}()

	v, rerr := o.vm.Run(o.script)
	if rerr != nil {
		return false, fmt.Errorf("run filter: %w", rerr)
	}
	return v.ToBoolean()
}
