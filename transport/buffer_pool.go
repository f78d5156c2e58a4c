package transport

import "sync"

// ReceiveBufferSize covers every frame of the calculation protocol with room
// for multi-line greetings.
const ReceiveBufferSize = 2048

// receivePool reuses read buffers across receives.
var receivePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ReceiveBufferSize)
		return &buf
	},
}

// getReceiveBuffer returns a buffer of at least size bytes. Buffers larger
// than ReceiveBufferSize are allocated and never pooled.
func getReceiveBuffer(size int) *[]byte {
	if size > ReceiveBufferSize {
		buf := make([]byte, size)
		return &buf
	}
	return receivePool.Get().(*[]byte)
}

func putReceiveBuffer(buf *[]byte) {
	if buf == nil || cap(*buf) != ReceiveBufferSize {
		return
	}
	receivePool.Put(buf)
}

// readInto runs read against a pooled buffer and returns a copy of the bytes
// read.
func readInto(max int, read func([]byte) (int, error)) ([]byte, error) {
	if max <= 0 {
		max = ReceiveBufferSize
	}
	bufPtr := getReceiveBuffer(max)
	defer putReceiveBuffer(bufPtr)

	n, err := read((*bufPtr)[:max])
	if n <= 0 {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, (*bufPtr)[:n])
	return out, err
}
