package sim

// MaxDrawdown is the largest peak-to-trough fall of curve as a fraction
// of the running peak. The peak starts at the first point.
func MaxDrawdown(curve []float64) float64 {
	var d drawdown
	for _, e := range curve {
		d.add(e)
	}
	return d.max
}

type drawdown struct {
	peak    float64
	max     float64
	started bool
}

func (d *drawdown) add(e float64) {
	if !d.started || e > d.peak {
		d.peak = e
		d.started = true
	}
	if d.peak > 0 {
		if dd := (d.peak - e) / d.peak; dd > d.max {
			d.max = dd
		}
	}
}
