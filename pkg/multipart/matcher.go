package multipart

import "bytes"

// matcher finds a fixed delimiter in a stream delivered as arbitrary chunks.
//
// matched is the length of the longest delimiter prefix that is also a
// suffix of everything scanned so far. Those bytes are withheld: they are
// not known to be data until later input falsifies the match. Because they
// equal pattern[:matched], they never need to be copied.
type matcher struct {
	pattern []byte
	fail    []int // KMP failure table
	matched int
}

func newMatcher(pattern []byte) *matcher {
	fail := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = fail[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		fail[i] = k
	}
	return &matcher{pattern: pattern, fail: fail}
}

// scan advances over chunk until the delimiter completes or the chunk runs
// out. It returns:
//
//   - released: how many of the bytes withheld before this call turned out
//     to be data (they are pattern[:released])
//   - data: how many leading bytes of chunk are data
//   - consumed: how many bytes of chunk were examined
//   - found: whether the delimiter completed at chunk[consumed-1]
//
// Bytes of chunk that are neither data nor part of a found delimiter are
// withheld for the next call.
func (m *matcher) scan(chunk []byte) (released, data, consumed int, found bool) {
	carried := m.matched
	i := 0
	for i < len(chunk) {
		if m.matched == 0 {
			// Nothing pending: skip ahead to the next possible start.
			j := bytes.IndexByte(chunk[i:], m.pattern[0])
			if j < 0 {
				i = len(chunk)
				break
			}
			i += j
		}
		b := chunk[i]
		for m.matched > 0 && b != m.pattern[m.matched] {
			m.matched = m.fail[m.matched-1]
		}
		if b == m.pattern[m.matched] {
			m.matched++
		}
		i++
		if m.matched == len(m.pattern) {
			found = true
			break
		}
	}

	// Everything up to the withheld suffix (or the delimiter) is data.
	safe := carried + i - m.matched
	if safe <= carried {
		released = safe
	} else {
		released = carried
		data = safe - carried
	}
	if found {
		m.matched = 0
	}
	return released, data, i, found
}

// pending returns the withheld bytes.
func (m *matcher) pending() []byte {
	return m.pattern[:m.matched]
}

// reset forgets any partial match and primes the matcher as if prefix
// bytes of the delimiter had already been seen.
func (m *matcher) reset(prefix int) {
	m.matched = prefix
}
