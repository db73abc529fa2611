//go:build linux

package keystroke

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	evKey = 0x01

	// poll timeout, bounds how long a reader takes to notice cancellation
	pollTimeoutMs = 250
)

// input_event is a timeval followed by type, code and value.
var eventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

// Evdev reads keyboard events from /dev/input on Linux.
type Evdev struct {
	devices []string
	log     *slog.Logger
	layout  Layout

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	files   []*os.File
	wg      sync.WaitGroup
	err     error
}

// NewEvdev creates a source for the given event device paths. With no
// paths, every keyboard listed in /proc/bus/input/devices is used.
func NewEvdev(log *slog.Logger, devices ...string) *Evdev {
	if log == nil {
		log = slog.Default()
	}
	return &Evdev{devices: devices, log: log}
}

// Available checks if we can read at least one keyboard device.
func (e *Evdev) Available() (bool, string) {
	devices, err := e.resolveDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}

	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}

	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

func (e *Evdev) resolveDevices() ([]string, error) {
	if len(e.devices) > 0 {
		return e.devices, nil
	}

	found, err := Keyboards()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(found))
	for _, d := range found {
		paths = append(paths, d.Handler)
	}
	return paths, nil
}

// Events opens every readable keyboard and starts one reader per device.
func (e *Evdev) Events(ctx context.Context) (<-chan Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil, ErrAlreadyRunning
	}

	devices, err := e.resolveDevices()
	if err != nil {
		return nil, fmt.Errorf("find keyboard devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNotAvailable
	}

	var files []*os.File
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			e.log.Warn("cannot open keyboard device", "device", dev, "error", err)
			continue
		}
		e.log.Info("reading keyboard device", "device", dev, "name", deviceName(f))
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, ErrPermissionDenied
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.files = files
	e.running = true

	out := make(chan Event, 64)
	for _, f := range files {
		e.wg.Add(1)
		go func(f *os.File) {
			defer e.wg.Done()
			if err := readDevice(ctx, f, &e.layout, out); err != nil {
				e.log.Error("keyboard device failed", "device", f.Name(), "error", err)
				e.setErr(err)
				cancel()
			}
		}(f)
	}

	go func() {
		e.wg.Wait()
		close(out)
	}()

	return out, nil
}

func (e *Evdev) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

// Err returns the first device error.
func (e *Evdev) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Close stops all readers and closes the devices.
func (e *Evdev) Close() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	files := e.files
	e.files = nil
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func readDevice(ctx context.Context, f *os.File, layout *Layout, out chan<- Event) error {
	conn, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var fd int
	conn.Control(func(p uintptr) { fd = int(p) })

	buf := make([]byte, eventSize*64)
	for {
		if ctx.Err() != nil {
			return nil
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return fmt.Errorf("device %s disconnected", f.Name())
		}

		m, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return fmt.Errorf("read: %w", err)
		}

		now := time.Now()
		for off := 0; off+eventSize <= m; off += eventSize {
			rec := buf[off : off+eventSize]
			tail := rec[eventSize-8:]
			typ := binary.NativeEndian.Uint16(tail[0:2])
			code := binary.NativeEndian.Uint16(tail[2:4])
			value := int32(binary.NativeEndian.Uint32(tail[4:8]))

			if typ != evKey {
				continue
			}
			sym, dir, ok := layout.Translate(code, value)
			if !ok {
				continue
			}

			select {
			case out <- Event{Key: sym, Dir: dir, Time: now}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// deviceName reads the device name with EVIOCGNAME.
func deviceName(f *os.File) string {
	buf := make([]byte, 256)
	req := uintptr(2)<<30 | uintptr(len(buf))<<16 | uintptr('E')<<8 | 0x06

	conn, err := f.SyscallConn()
	if err != nil {
		return ""
	}
	var errno unix.Errno
	conn.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&buf[0])))
	})
	if errno != 0 {
		return ""
	}
	return unix.ByteSliceToString(buf)
}
