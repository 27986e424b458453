package transport

import (
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/westonvoglesonger/cortex/pkg/cortexerr"
	"golang.org/x/sys/unix"
)

// shmRegionSize is the total size of one direction's mapped region:
// a 16-byte ring header (head, tail, futex word, then 4 unused bytes)
// followed by the ring data itself. The capacity is not stored; it is
// the length of the data area.
const (
	shmHeaderSize = 16
	shmDataSize   = 1 << 20 // 1 MiB ring per direction
	shmRegionSize = shmHeaderSize + shmDataSize
)

// shmRing is one direction's mapped ring buffer: a single-producer,
// single-consumer byte ring with a futex word the consumer blocks on
// and the producer wakes after every write.
type shmRing struct {
	mem []byte
}

func (r *shmRing) head() *uint32  { return (*uint32)(unsafe.Pointer(&r.mem[0])) }
func (r *shmRing) tail() *uint32  { return (*uint32)(unsafe.Pointer(&r.mem[4])) }
func (r *shmRing) futex() *int32  { return (*int32)(unsafe.Pointer(&r.mem[8])) }
func (r *shmRing) data() []byte   { return r.mem[shmHeaderSize:] }

func (r *shmRing) write(buf []byte) error {
	data := r.data()
	capacity := uint32(len(data))
	for len(buf) > 0 {
		head := atomic.LoadUint32(r.head())
		tail := atomic.LoadUint32(r.tail())
		free := capacity - (head - tail)
		if free == 0 {
			// Ring full: wait for the consumer to wake us after it
			// advances tail via the shared futex word.
			word := atomic.LoadInt32(r.futex())
			unix.FutexWait(r.futex(), word, nil)
			continue
		}
		n := uint32(len(buf))
		if n > free {
			n = free
		}
		off := head % capacity
		end := off + n
		if end <= capacity {
			copy(data[off:end], buf[:n])
		} else {
			first := capacity - off
			copy(data[off:], buf[:first])
			copy(data[:n-first], buf[first:n])
		}
		atomic.StoreUint32(r.head(), head+n)
		buf = buf[n:]
		atomic.AddInt32(r.futex(), 1)
		unix.FutexWake(r.futex(), 1)
	}
	return nil
}

func (r *shmRing) read(buf []byte, deadline time.Time, hasDeadline bool) (int, error) {
	data := r.data()
	capacity := uint32(len(data))

	for {
		head := atomic.LoadUint32(r.head())
		tail := atomic.LoadUint32(r.tail())
		avail := head - tail
		if avail > 0 {
			n := uint32(len(buf))
			if n > avail {
				n = avail
			}
			off := tail % capacity
			end := off + n
			if end <= capacity {
				copy(buf[:n], data[off:end])
			} else {
				first := capacity - off
				copy(buf[:first], data[off:])
				copy(buf[first:n], data[:n-first])
			}
			atomic.StoreUint32(r.tail(), tail+n)
			atomic.AddInt32(r.futex(), 1)
			unix.FutexWake(r.futex(), 1)
			return int(n), nil
		}

		var timeoutSpec *unix.Timespec
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, cortexerr.New(cortexerr.KindTimeout, "shm recv")
			}
			ts := unix.NsecToTimespec(remaining.Nanoseconds())
			timeoutSpec = &ts
		}
		word := atomic.LoadInt32(r.futex())
		err := unix.FutexWait(r.futex(), word, timeoutSpec)
		if err != nil && err != unix.EAGAIN && err != unix.EINTR && err != unix.ETIMEDOUT {
			return 0, cortexerr.Wrap(cortexerr.KindIO, "shm futex wait", err)
		}
		if hasDeadline && time.Now().After(deadline) {
			return 0, cortexerr.New(cortexerr.KindTimeout, "shm recv")
		}
	}
}

// SHMTransport is a shared-memory ring carrier: two named, file-backed
// regions (host-to-adapter and adapter-to-host), each an mmap'd ring
// buffer with futex-based blocking wait. Create/open are asymmetric —
// the harness creates both regions, the adapter opens them — mirroring
// the host-owns-the-calibration-buffer ownership convention elsewhere
// in the protocol.
type SHMTransport struct {
	send, recv *shmRing
	sendFile   *os.File
	recvFile   *os.File
	owner      bool
	name       string
	start      time.Time
}

// CreateSHM creates both named regions for name and returns the
// harness-side transport. Cleanup unlinks the backing files on Close.
func CreateSHM(name string) (*SHMTransport, error) {
	sendFile, sendMem, err := createRegion(name + ".h2a")
	if err != nil {
		return nil, err
	}
	recvFile, recvMem, err := createRegion(name + ".a2h")
	if err != nil {
		sendFile.Close()
		os.Remove(sendFile.Name())
		return nil, err
	}
	return &SHMTransport{
		send:     &shmRing{mem: sendMem},
		recv:     &shmRing{mem: recvMem},
		sendFile: sendFile,
		recvFile: recvFile,
		owner:    true,
		name:     name,
		start:    time.Now(),
	}, nil
}

// OpenSHM opens both named regions for name, previously created by
// CreateSHM, and returns the adapter-side transport.
func OpenSHM(name string) (*SHMTransport, error) {
	// The adapter's send direction is the harness's recv direction and
	// vice versa.
	sendFile, sendMem, err := openRegion(name + ".a2h")
	if err != nil {
		return nil, err
	}
	recvFile, recvMem, err := openRegion(name + ".h2a")
	if err != nil {
		sendFile.Close()
		return nil, err
	}
	return &SHMTransport{
		send:     &shmRing{mem: sendMem},
		recv:     &shmRing{mem: recvMem},
		sendFile: sendFile,
		recvFile: recvFile,
		owner:    false,
		name:     name,
		start:    time.Now(),
	}, nil
}

func createRegion(path string) (*os.File, []byte, error) {
	full := "/dev/shm/" + path
	f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, nil, cortexerr.Wrap(cortexerr.KindConfig, "create shm region "+full, err)
	}
	if err := f.Truncate(shmRegionSize); err != nil {
		f.Close()
		os.Remove(full)
		return nil, nil, cortexerr.Wrap(cortexerr.KindConfig, "truncate shm region "+full, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, shmRegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(full)
		return nil, nil, cortexerr.Wrap(cortexerr.KindIO, "mmap shm region "+full, err)
	}
	return f, mem, nil
}

func openRegion(path string) (*os.File, []byte, error) {
	full := "/dev/shm/" + path
	f, err := os.OpenFile(full, os.O_RDWR, 0600)
	if err != nil {
		return nil, nil, cortexerr.Wrap(cortexerr.KindConnect, "open shm region "+full, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, shmRegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, nil, cortexerr.Wrap(cortexerr.KindIO, "mmap shm region "+full, err)
	}
	return f, mem, nil
}

// Send implements transport.Transport.
func (s *SHMTransport) Send(buf []byte) error {
	return s.send.write(buf)
}

// Recv implements transport.Transport.
func (s *SHMTransport) Recv(buf []byte, timeout time.Duration) (int, error) {
	deadline, hasDeadline := deadlineFor(timeout)
	return s.recv.read(buf, deadline, hasDeadline)
}

// Close unmaps both regions. The harness (owner) additionally unlinks
// the backing files; the adapter leaves them for the harness to clean
// up. Idempotent.
func (s *SHMTransport) Close() error {
	if s.sendFile == nil {
		return nil
	}
	unix.Munmap(s.send.mem)
	unix.Munmap(s.recv.mem)
	s.sendFile.Close()
	s.recvFile.Close()
	if s.owner {
		os.Remove("/dev/shm/" + s.name + ".h2a")
		os.Remove("/dev/shm/" + s.name + ".a2h")
	}
	s.sendFile = nil
	s.recvFile = nil
	return nil
}

// MonotonicTimestampNs implements transport.Transport.
func (s *SHMTransport) MonotonicTimestampNs() int64 {
	return time.Since(s.start).Nanoseconds()
}

func deadlineFor(timeout time.Duration) (time.Time, bool) {
	if timeout == NoTimeout {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

