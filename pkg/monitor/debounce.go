package monitor

// Debouncer is a majority vote over the last N boolean samples
type Debouncer struct {
	history []bool
	next    int
	size    int
	trues   int
}

// NewDebouncer creates a debouncer over a window of n samples
func NewDebouncer(n int) *Debouncer {
	if n < 1 {
		n = 1
	}
	return &Debouncer{history: make([]bool, n)}
}

// Push records a raw sample and returns the stable value: true iff strictly
// more than half of the held samples are true.
func (d *Debouncer) Push(raw bool) bool {
	if d.size == len(d.history) && d.history[d.next] {
		d.trues--
	}
	d.history[d.next] = raw
	if raw {
		d.trues++
	}
	d.next = (d.next + 1) % len(d.history)
	if d.size < len(d.history) {
		d.size++
	}
	return d.Stable()
}

// Stable returns the current stable value
func (d *Debouncer) Stable() bool {
	return d.trues*2 > d.size
}

// Ratio returns the fraction of held samples that are true
func (d *Debouncer) Ratio() float64 {
	if d.size == 0 {
		return 0
	}
	return float64(d.trues) / float64(d.size)
}

// Len returns the number of held samples
func (d *Debouncer) Len() int {
	return d.size
}
