package procmgr

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// captureStream tails one output pipe line by line into buf, timestamping
// each line at assembly time. Terminates on EOF or read error; on error it
// appends one synthetic line before returning. Grounded on the teacher's
// handleStdout/handleStderr (processmgr/process.go), generalized to share
// one implementation across both streams and to perform the lossy-UTF8 /
// CRLF handling spec.md §3 requires (the teacher's scanner assumes clean
// text and does not need this).
//
// wg.Done is called exactly once on return so callers (the reaper) can
// wait for both capture tasks to finish before completing a state
// transition out of Running (invariant I3 in spec.md §8).
func captureStream(r io.ReadCloser, stream Stream, buf *ringBuffer, wg *sync.WaitGroup) {
	defer wg.Done()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	// ScanLines splits on '\n' and already drops a '\r' before it; the
	// explicit trim and the UTF-8 repair below run on each line it yields.
	sc.Split(bufio.ScanLines)

	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		line = toValidUTF8(line)
		buf.push(LogLine{Time: time.Now(), Stream: stream, Text: line})
	}

	if err := sc.Err(); err != nil {
		buf.push(LogLine{
			Time:   time.Now(),
			Stream: stream,
			Text:   "<capture error: " + err.Error() + ">",
		})
	}
}

// toValidUTF8 replaces invalid byte sequences with the Unicode replacement
// character, per spec.md §3 ("Invalid bytes are replaced ... no binary is
// stored").
func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
