package serial

import "io"

// PipePort is an in-memory Port. Pair returns two connected ends, one for
// the host code under test and one standing in for the device.
type PipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// Pair returns two connected in-memory ports
func Pair() (host *PipePort, device *PipePort) {
	hr, dw := io.Pipe()
	dr, hw := io.Pipe()
	return &PipePort{r: hr, w: hw}, &PipePort{r: dr, w: dw}
}

func (p *PipePort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *PipePort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

// Close closes both directions; the peer sees io.EOF
func (p *PipePort) Close() error {
	p.w.Close()
	return p.r.Close()
}

func (p *PipePort) Flush() error {
	return nil
}
