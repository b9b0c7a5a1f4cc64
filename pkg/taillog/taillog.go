// Package taillog keeps a bounded textual record of a line stream: the
// first headLimit lines and the most recent tailLimit lines, with a count
// of everything dropped in between. Memory stays constant no matter how
// long the stream runs.
package taillog

import "sync"

// Log is a bounded head/tail line buffer. Safe for one writer and many
// readers.
type Log struct {
	mu        sync.Mutex
	headLimit int
	tailLimit int

	head      []string
	tail      []string // circular once full
	tailStart int

	total   int64
	dropped int64
}

// Snapshot is a point-in-time copy of the log contents. Dropped counts the
// lines that fell between Head and Tail.
type Snapshot struct {
	Head    []string `json:"head"`
	Tail    []string `json:"tail"`
	Total   int64    `json:"total"`
	Dropped int64    `json:"dropped"`
}

// New creates a Log keeping the first headLimit and last tailLimit lines.
// Negative limits are treated as zero.
func New(headLimit, tailLimit int) *Log {
	if headLimit < 0 {
		headLimit = 0
	}
	if tailLimit < 0 {
		tailLimit = 0
	}
	return &Log{headLimit: headLimit, tailLimit: tailLimit}
}

// Append records one line.
func (l *Log) Append(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	if len(l.head) < l.headLimit {
		l.head = append(l.head, line)
		return
	}
	if l.tailLimit == 0 {
		l.dropped++
		return
	}
	if len(l.tail) < l.tailLimit {
		l.tail = append(l.tail, line)
		return
	}
	l.tail[l.tailStart] = line
	l.tailStart = (l.tailStart + 1) % l.tailLimit
	l.dropped++
}

// Snapshot copies the current contents, tail lines in arrival order.
func (l *Log) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		Head:    append([]string(nil), l.head...),
		Total:   l.total,
		Dropped: l.dropped,
	}
	s.Tail = make([]string, 0, len(l.tail))
	s.Tail = append(s.Tail, l.tail[l.tailStart:]...)
	s.Tail = append(s.Tail, l.tail[:l.tailStart]...)
	return s
}

// Total returns the number of lines seen.
func (l *Log) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Reset discards all recorded lines and counters.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.head = nil
	l.tail = nil
	l.tailStart = 0
	l.total = 0
	l.dropped = 0
}
