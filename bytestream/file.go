package bytestream

import "os"

// fileBackend wraps an *os.File as a Backend. Grounded on how the teacher's
// cmd/cogger/main.go opens plain os.File handles and hands them to the COG
// writer as io.Writer/tiff.ReadAtReadSeeker.
type fileBackend struct {
	f *os.File
}

// NewFileBackend wraps an already-open file. The caller owns opening it
// with the right flags (os.O_RDWR|os.O_CREATE for a Writer, os.O_RDONLY for
// a Reader).
func NewFileBackend(f *os.File) Backend {
	return &fileBackend{f: f}
}

func (fb *fileBackend) ReadAt(p []byte, off int64) (int, error) {
	return fb.f.ReadAt(p, off)
}

func (fb *fileBackend) WriteAt(p []byte, off int64) (int, error) {
	return fb.f.WriteAt(p, off)
}

func (fb *fileBackend) Truncate(size int64) error {
	return fb.f.Truncate(size)
}

func (fb *fileBackend) Len() (int64, error) {
	fi, err := fb.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (fb *fileBackend) Flush() error {
	return fb.f.Sync()
}

func (fb *fileBackend) Close() error {
	return fb.f.Close()
}
