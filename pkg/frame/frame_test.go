package frame

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/serialscope/pkg/testutil"
)

var terminator = regexp.MustCompile(`\r?\n`)

// frameAll runs a full Push/Flush cycle over the given chunks.
func frameAll(chunks []string) []string {
	f := NewFramer()
	var lines []string
	for _, chunk := range chunks {
		lines = append(lines, f.Push(chunk)...)
	}
	return append(lines, f.Flush())
}

func TestFramerMatchesReferenceSplit(t *testing.T) {
	inputs := []string{
		"",
		"\n",
		"\r\n",
		"\r",
		"a",
		"a\n",
		"a\r\n",
		"a\nb",
		"a\r\nb\r\nc",
		"1,2\n3,4",
		"Time,Temp\r\n0.0,21.5\r\n0.1,21.6\r\n",
		"a\n\n",
		"\n\nx",
		"\r\r\n",
		"a\rb\nc",
		"mixed\nstyle\r\nends\rhere\n",
	}

	for _, input := range inputs {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			want := terminator.Split(input, -1)
			got := frameAll([]string{input})
			assert.Equal(t, want, got)
		})
	}
}

func TestFramerSplitInvariance(t *testing.T) {
	inputs := []string{
		"Time,Temp\r\n0.0,21.5\r\n0.1,21.6\r\n0.2,21.8",
		"a\nb\r\nc\rd\n\n",
		"\r\n\r\n\r\n",
		"no terminator at all",
		"\rsplit\r\ncarriage\r",
	}

	for _, input := range inputs {
		want := terminator.Split(input, -1)
		for seed := int64(0); seed < 25; seed++ {
			r := rand.New(rand.NewSource(seed))
			chunks := testutil.SplitString(r, input)
			got := frameAll(chunks)
			require.Equal(t, want, got, "input %q seed %d chunks %q", input, seed, chunks)
		}
	}
}

func TestFramerTerminatorSplitAcrossChunks(t *testing.T) {
	f := NewFramer()
	require.Equal(t, []string(nil), f.Push("a\r"))
	require.Equal(t, []string{"a"}, f.Push("\nb"))
	require.Equal(t, "b", f.Flush())
}

func TestFramerLoneCarriageReturnIsText(t *testing.T) {
	f := NewFramer()
	require.Equal(t, []string{"a\rb"}, f.Push("a\rb\n"))
	require.Equal(t, "", f.Flush())
}

func TestFramerTrailingCarriageReturnKeptOnFlush(t *testing.T) {
	f := NewFramer()
	require.Empty(t, f.Push("abc\r"))
	require.Equal(t, "abc\r", f.Flush())
}

func TestFramerEmptyInputYieldsOneEmptyLine(t *testing.T) {
	lines := frameAll(nil)
	require.Equal(t, []string{""}, lines)
}

func TestFramerLineCountIsTerminatorsPlusOne(t *testing.T) {
	cases := []struct {
		input string
		lines int
	}{
		{"1,2\n3,4", 2},
		{"1,2\n3,4\n", 3},
		{"a\n\n", 3},
		{"", 1},
		{"\r\n", 2},
	}

	for _, tc := range cases {
		got := frameAll([]string{tc.input})
		assert.Len(t, got, tc.lines, "input %q", tc.input)
	}
}

func TestFramerStripsOnlyOneCarriageReturn(t *testing.T) {
	f := NewFramer()
	require.Equal(t, []string{"a\r"}, f.Push("a\r\r\n"))
	require.Equal(t, "", f.Flush())
}

func TestFindLines(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	chunks := testutil.FeedStrings([]string{"Time,Temp\r\n0.0,", "21.5\n0.1,21.6"})
	var lines []string
	for line := range FindLines(ctx, chunks) {
		lines = append(lines, line)
	}

	require.Equal(t, []string{"Time,Temp", "0.0,21.5", "0.1,21.6"}, lines)
}

func TestFindLinesEmptyStream(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	chunks := make(chan string)
	close(chunks)

	var lines []string
	for line := range FindLines(ctx, chunks) {
		lines = append(lines, line)
	}
	require.Equal(t, []string{""}, lines)
}

func TestFindLinesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	chunks := make(chan string)
	out := FindLines(ctx, chunks)

	chunks <- "a\nb\n"
	require.Equal(t, "a", <-out)
	cancel()

	testutil.AssertEventually(t, func() bool {
		_, open := <-out
		return !open
	}, 5*time.Second, "line channel should close after cancellation")
}
