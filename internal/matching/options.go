package matching

// Default thresholds on the 0-100 confidence scale.
const (
	DefaultAcceptanceThreshold   = 50.0
	DefaultShortCircuitThreshold = 95.0
	DefaultRunnerUps             = 3
)

// Options tune one engine or one Match call.
type Options struct {
	// AcceptanceThreshold is the lowest aggregate score returned as a match.
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"`
	// ShortCircuitThreshold ends the pipeline after a short-circuiting stage.
	ShortCircuitThreshold float64 `yaml:"short_circuit_threshold"`
	// RunnerUps is how many ranked alternatives are kept for diagnostics.
	RunnerUps int `yaml:"runner_ups"`
	// NarrowByFirstLetter lets FirstLetter restrict GeneralSimilarity's candidates.
	NarrowByFirstLetter bool `yaml:"first_letter_narrowing"`
}

// DefaultOptions returns 50/95/3 with narrowing off.
func DefaultOptions() Options {
	return Options{
		AcceptanceThreshold:   DefaultAcceptanceThreshold,
		ShortCircuitThreshold: DefaultShortCircuitThreshold,
		RunnerUps:             DefaultRunnerUps,
	}
}

// Option overrides an engine default for a single call.
type Option func(*Options)

// WithAcceptanceThreshold overrides the acceptance threshold.
func WithAcceptanceThreshold(v float64) Option {
	return func(o *Options) { o.AcceptanceThreshold = v }
}

// WithShortCircuitThreshold overrides the short-circuit threshold.
func WithShortCircuitThreshold(v float64) Option {
	return func(o *Options) { o.ShortCircuitThreshold = v }
}

// WithRunnerUps overrides the number of runner-ups kept.
func WithRunnerUps(n int) Option {
	return func(o *Options) { o.RunnerUps = n }
}

// WithFirstLetterNarrowing toggles candidate narrowing.
func WithFirstLetterNarrowing(on bool) Option {
	return func(o *Options) { o.NarrowByFirstLetter = on }
}

func (o Options) apply(opts []Option) Options {
	for _, fn := range opts {
		fn(&o)
	}
	if o.RunnerUps < 0 {
		o.RunnerUps = 0
	}
	return o
}
