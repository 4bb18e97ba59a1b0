package bytestream

import (
	"sync"

	"github.com/orcaman/writerseeker"
)

// memoryBackend is an in-memory Backend. Grounded on
// github.com/orcaman/writerseeker (a dependency pulled in via the donor
// corpus's qrank repo), which provides a growable io.WriteSeeker/io.Reader
// over a plain byte slice with none of the ceremony of bytes.Buffer plus a
// manual cursor. Used for round-trip tests (spec.md §8 invariants) and as
// Copier.compact's "memory" temporary-sink mode.
type memoryBackend struct {
	mu sync.Mutex
	ws writerseeker.WriterSeeker
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() Backend {
	return &memoryBackend{}
}

func (m *memoryBackend) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.ws.Reader()
	return r.ReadAt(p, off)
}

func (m *memoryBackend) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.ws.Writer()
	if _, err := w.Seek(off, 0); err != nil {
		return 0, err
	}
	return w.Write(p)
}

func (m *memoryBackend) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, err := m.ws.Writer().Seek(0, 2)
	if err != nil {
		return err
	}
	if size >= cur {
		// Growing: pad with zeros so subsequent ReadAt within the new
		// length returns zero bytes instead of an error, matching a file
		// backend's behavior after os.File.Truncate.
		pad := make([]byte, size-cur)
		_, err := m.ws.Writer().Write(pad)
		return err
	}
	// writerseeker has no native shrink; rebuild from the retained prefix.
	data := make([]byte, size)
	if _, err := m.ws.Reader().ReadAt(data, 0); err != nil {
		return err
	}
	m.ws = writerseeker.WriterSeeker{}
	_, err = m.ws.Writer().Write(data)
	return err
}

func (m *memoryBackend) Len() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ws.Writer().Seek(0, 2)
}

func (m *memoryBackend) Flush() error { return nil }
func (m *memoryBackend) Close() error { return nil }
