package ide

// Default controller settings
const (
	DefaultBlockSize   = 0x8000
	DefaultScratchSize = 0x10000

	maxBlockSize = 0xFFFE
)

// Options configures a Controller
type Options struct {
	// BlockSize is the PIO chunk size used when the host does not program a
	// byte count limit. One interrupt is raised per chunk.
	BlockSize int

	// ScratchSize is the initial capacity of the response buffer
	ScratchSize int
}

// DefaultOptions returns the settings used when none are given
func DefaultOptions() Options {
	return Options{
		BlockSize:   DefaultBlockSize,
		ScratchSize: DefaultScratchSize,
	}
}

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	// PIO moves 16-bit words and the byte count registers hold 16 bits
	if o.BlockSize > maxBlockSize {
		o.BlockSize = maxBlockSize
	}
	o.BlockSize &^= 1
	if o.BlockSize == 0 {
		o.BlockSize = 2
	}
	if o.ScratchSize <= 0 {
		o.ScratchSize = DefaultScratchSize
	}
	return o
}

// scratch is the response buffer shared by all packet commands. It doubles
// its capacity whenever a response does not fit, so a response of n bytes
// costs at most log2(n/initial)+1 allocations over the controller's life.
type scratch struct {
	buf    []byte
	allocs int
}

func newScratch(size int) *scratch {
	return &scratch{buf: make([]byte, size), allocs: 1}
}

// ensure returns a slice of at least n bytes, preserving the first keep
// bytes of the current contents.
func (s *scratch) ensure(n, keep int) []byte {
	if n <= len(s.buf) {
		return s.buf
	}

	size := len(s.buf)
	if size == 0 {
		size = 1
	}
	for size < n {
		size *= 2
	}
	grown := make([]byte, size)
	copy(grown, s.buf[:keep])
	s.buf = grown
	s.allocs++
	return s.buf
}
