// Package frame splits a stream of text chunks into lines, tolerating
// terminators split across chunk boundaries.
//
// Terminators are "\n" or "\r\n"; a lone "\r" not followed by "\n" is
// ordinary text. The result is equivalent to splitting the fully
// concatenated input on the pattern `\r?\n`. For N terminators in the
// input, exactly N+1 lines are produced, each without its terminator; the
// final unterminated remainder (possibly empty) counts as the last line.
package frame

import "context"

// Framer accumulates text chunks and emits complete lines. It is stateful:
// the unterminated suffix of the input so far, including a trailing "\r"
// that may yet pair with a "\n" from the next chunk, is carried between
// Push calls. Not safe for concurrent use.
type Framer struct {
	pending string
}

// NewFramer creates a Framer with no buffered text.
func NewFramer() *Framer {
	return &Framer{}
}

// Push consumes one chunk and returns the complete lines it terminated, in
// order, without their terminators. Lines spanning earlier chunks include
// the buffered prefix.
func (f *Framer) Push(chunk string) []string {
	if chunk == "" {
		return nil
	}

	buf := chunk
	if f.pending != "" {
		buf = f.pending + chunk
	}

	var lines []string
	start := 0
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		end := i
		if end > start && buf[end-1] == '\r' {
			end--
		}
		lines = append(lines, buf[start:end])
		start = i + 1
	}
	f.pending = buf[start:]
	return lines
}

// Flush ends the stream and returns the final unterminated remainder as
// one last line. An entirely empty input yields the empty line. The Framer
// must not be reused afterwards.
func (f *Framer) Flush() string {
	line := f.pending
	f.pending = ""
	return line
}

// FindLines drives a Framer over a chunk stream and delivers lines on the
// returned channel, closed after the final flush or on cancellation.
func FindLines(ctx context.Context, chunks <-chan string) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)
		f := NewFramer()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-chunks:
				if !ok {
					select {
					case out <- f.Flush():
					case <-ctx.Done():
					}
					return
				}
				for _, line := range f.Push(chunk) {
					select {
					case out <- line:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}
