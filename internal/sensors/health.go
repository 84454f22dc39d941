package sensors

import (
	"strings"
	"sync"
)

// Health tracks per-source error state. Any erroring source makes the
// overall state unhealthy; recovery is automatic once every source reads
// successfully again. Transitions are reported once each way through the
// registered callback so the engine can apply or lift its error overlay.
//
// Transitions are delivered in order: the dispatch mutex serializes the
// state change together with its callback, so a recovery can never be
// overtaken by the error it follows. The state mutex alone guards reads,
// keeping HasError and Detail free of the handler's latency.
type Health struct {
	dispatchMu sync.Mutex // serializes transition + callback delivery

	mu       sync.Mutex
	errors   map[string]string
	unwell   bool
	onChange func(unhealthy bool, detail string)
}

// NewHealth creates an empty tracker.
func NewHealth() *Health {
	return &Health{errors: make(map[string]string)}
}

// SetChangeHandler registers the overall-state transition callback. The
// handler runs on the reporting goroutine, outside the state lock.
func (h *Health) SetChangeHandler(fn func(unhealthy bool, detail string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// ReportError records a source failure.
func (h *Health) ReportError(source string, err error) {
	if err == nil {
		h.ReportOK(source)
		return
	}
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	h.errors[source] = err.Error()
	changed, unwell, detail, fn := h.recomputeLocked()
	h.mu.Unlock()

	if changed && fn != nil {
		fn(unwell, detail)
	}
}

// ReportOK records a successful read for a source.
func (h *Health) ReportOK(source string) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	delete(h.errors, source)
	changed, unwell, detail, fn := h.recomputeLocked()
	h.mu.Unlock()

	if changed && fn != nil {
		fn(unwell, detail)
	}
}

// HasError reports whether any source is currently failing.
func (h *Health) HasError() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unwell
}

// Detail returns a summary of current source errors.
func (h *Health) Detail() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detailLocked()
}

func (h *Health) detailLocked() string {
	parts := make([]string, 0, len(h.errors))
	for source, msg := range h.errors {
		parts = append(parts, source+": "+msg)
	}
	return strings.Join(parts, "; ")
}

func (h *Health) recomputeLocked() (changed bool, unwell bool, detail string, fn func(bool, string)) {
	nowUnwell := len(h.errors) > 0
	if nowUnwell == h.unwell {
		return false, nowUnwell, "", nil
	}
	h.unwell = nowUnwell
	return true, nowUnwell, h.detailLocked(), h.onChange
}
