package matrix

import "fmt"

// Filter and threshold defaults of the necoboard capacitive sensor.
const (
	DefaultStateSigma = 2.0
	DefaultNoiseSigma = 10.0
	DefaultThreshold  = 40.0
)

// AnalogReader is the external capacitive sensor driver. Read returns the raw
// ADC value of one cell for the current tick.
type AnalogReader interface {
	Read(c Cell) (uint16, error)
}

// KalmanFilter is a one-dimensional Kalman filter used to smooth the charge
// readings of a single cell.
type KalmanFilter struct {
	mu, sigma  float32
	primed     bool
	stateSigma float32
	noiseSigma float32
}

// NewKalmanFilter returns a filter with the given process and measurement sigmas.
func NewKalmanFilter(stateSigma, noiseSigma float32) KalmanFilter {
	return KalmanFilter{stateSigma: stateSigma, noiseSigma: noiseSigma}
}

// Predict folds one observation into the estimate and returns the new mean.
// The first observation seeds the estimate unchanged.
func (k *KalmanFilter) Predict(observation float32) float32 {
	if !k.primed {
		k.mu, k.sigma, k.primed = observation, k.stateSigma, true
		return observation
	}
	priorSigma := k.sigma + k.noiseSigma
	gain := priorSigma / (priorSigma + k.stateSigma)
	k.mu = k.mu + gain*(observation-k.mu)
	k.sigma = (1 - gain) * priorSigma
	return k.mu
}

// AnalogSampler turns filtered analog readings into activation frames.
type AnalogSampler struct {
	reader    AnalogReader
	grid      Grid
	threshold float32
	filters   []KalmanFilter
	values    []uint16
}

// AnalogConfig configures an AnalogSampler. Zero fields take the defaults.
type AnalogConfig struct {
	StateSigma float32
	NoiseSigma float32
	Threshold  float32
}

// NewAnalogSampler wraps an analog reader for the grid.
func NewAnalogSampler(r AnalogReader, g Grid, cfg AnalogConfig) *AnalogSampler {
	if cfg.StateSigma == 0 {
		cfg.StateSigma = DefaultStateSigma
	}
	if cfg.NoiseSigma == 0 {
		cfg.NoiseSigma = DefaultNoiseSigma
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	s := &AnalogSampler{
		reader:    r,
		grid:      g,
		threshold: cfg.Threshold,
		filters:   make([]KalmanFilter, g.Size()),
		values:    make([]uint16, g.Size()),
	}
	for i := range s.filters {
		s.filters[i] = NewKalmanFilter(cfg.StateSigma, cfg.NoiseSigma)
	}
	return s
}

// Sample reads every cell, filters it and thresholds the estimate. A failed
// cell read fails the whole tick.
func (s *AnalogSampler) Sample(f *Frame) error {
	for i := 0; i < s.grid.Size(); i++ {
		c := s.grid.CellAt(i)
		raw, err := s.reader.Read(c)
		if err != nil {
			return fmt.Errorf("read cell %s: %w", c, err)
		}
		v := s.filters[i].Predict(float32(raw))
		s.values[i] = uint16(v)
		f.Set(c, v > s.threshold)
	}
	return nil
}

// Value returns the last filtered reading of a cell.
func (s *AnalogSampler) Value(c Cell) uint16 {
	if !s.grid.Contains(c) {
		return 0
	}
	return s.values[s.grid.Index(c)]
}
