package wavesort

// Option is a functional option for configuring an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	mode      SortMode
	keyType   KeyType
	order     Order
	dispatch  DispatchMode
	algorithm Algorithm
	waveWidth int // 0 = adopt the device's detected width
}

func defaultEngineConfig() *engineConfig {
	return &engineConfig{
		mode:      KeysOnly,
		keyType:   KeyUnsigned,
		order:     Ascending,
		dispatch:  DirectDispatch,
		algorithm: Onesweep,
	}
}

// WithPayload configures the engine to carry a 32-bit payload stream,
// permuted identically to the keys.
func WithPayload() Option {
	return func(c *engineConfig) {
		c.mode = KeysAndPayload
	}
}

// WithKeyType declares how key bits are interpreted when ordering.
func WithKeyType(t KeyType) Option {
	return func(c *engineConfig) {
		c.keyType = t
	}
}

// WithOrder sets the output ordering.
func WithOrder(o Order) Option {
	return func(c *engineConfig) {
		c.order = o
	}
}

// WithIndirectDispatch configures the engine to read element counts from a
// device buffer; Sort calls must then go through SortIndirect.
func WithIndirectDispatch() Option {
	return func(c *engineConfig) {
		c.dispatch = IndirectDispatch
	}
}

// WithAlgorithm selects the offset-resolution strategy.
func WithAlgorithm(a Algorithm) Option {
	return func(c *engineConfig) {
		c.algorithm = a
	}
}

// WithWaveWidth requires the device to execute with the given wave width.
// New fails if the device reports a different width. The default adopts
// whatever the device detected.
func WithWaveWidth(width int) Option {
	return func(c *engineConfig) {
		c.waveWidth = width
	}
}
