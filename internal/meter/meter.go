// Package meter keeps running averages for live progress display.
package meter

// AverageMeter tracks a weighted running average.
// The zero value is ready to use and reports an average of 0.
type AverageMeter struct {
	val   float64
	sum   float64
	count float64
}

// Update adds value with the given weight, typically the batch size.
func (m *AverageMeter) Update(value, weight float64) {
	m.val = value
	m.sum += value * weight
	m.count += weight
}

// Average returns sum/count, or 0 before any weighted update.
func (m *AverageMeter) Average() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / m.count
}

// Val returns the most recent value passed to Update.
func (m *AverageMeter) Val() float64 { return m.val }

// Sum returns the weighted sum.
func (m *AverageMeter) Sum() float64 { return m.sum }

// Count returns the accumulated weight.
func (m *AverageMeter) Count() float64 { return m.count }

// Reset clears the meter.
func (m *AverageMeter) Reset() {
	*m = AverageMeter{}
}
