//go:build linux

package device

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/Dronakurl/realtypecoach/internal/eventqueue"
	"github.com/Dronakurl/realtypecoach/internal/keycodes"
)

// Linux input event constants (linux/input-event-codes.h).
const (
	evKey = 1

	keyValueRelease = 0
	keyValuePress   = 1
	keyValueRepeat  = 2

	keyEsc   = 1
	keyEnter = 28
	keySpace = 57

	// KEY_Q..KEY_P, KEY_A..KEY_L, KEY_Z..KEY_M: the letter rows.
	letterRowStart = 16
	letterRowEnd   = 50
)

// inputEventSize is sizeof(struct input_event) on 64-bit Linux:
// two 8-byte time fields plus type, code, value.
const inputEventSize = 24

// selectTimeout keeps the reader responsive to the stop flag: the
// multiplexed wait never sleeps longer than this.
var selectTimeout = unix.Timeval{Usec: 100_000} // 100 ms

type openDevice struct {
	path string
	file *os.File
	fd   int
}

type linuxSource struct {
	sink   Sink
	layout LayoutProvider
	log    *slog.Logger

	devices []openDevice

	stop chan struct{}
	wg   sync.WaitGroup
}

func newPlatformSource(sink Sink, layout LayoutProvider) (*linuxSource, error) {
	paths, err := enumerateKeyboards()
	if err != nil {
		return nil, err
	}

	var devices []openDevice
	permissionFailures := 0
	for _, path := range paths {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			if os.IsPermission(err) {
				permissionFailures++
			}
			continue
		}
		devices = append(devices, openDevice{path: path, file: f, fd: int(f.Fd())})
	}

	if len(devices) == 0 {
		if permissionFailures > 0 {
			return nil, ErrPermissionDenied
		}
		return nil, ErrNoInputDevices
	}

	return &linuxSource{
		sink:    sink,
		layout:  layout,
		log:     slog.Default().With("component", "device"),
		devices: devices,
	}, nil
}

// SetLogger replaces the source's logger; call before Start.
func (s *linuxSource) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.log = logger.With("component", "device")
	}
}

// DevicePaths lists the devices the reader holds open.
func (s *linuxSource) DevicePaths() []string {
	out := make([]string, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.path
	}
	return out
}

// Start launches the reader thread.
func (s *linuxSource) Start() {
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.readLoop()
}

// Stop signals the reader and waits for it to close all devices.
func (s *linuxSource) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.stop = nil
}

func (s *linuxSource) readLoop() {
	defer s.wg.Done()
	defer func() {
		for _, d := range s.devices {
			d.file.Close()
		}
	}()

	buf := make([]byte, inputEventSize*64)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		readable, err := s.waitReadable()
		if err != nil {
			s.log.Warn("device wait failed", "error", err)
			continue
		}

		for _, idx := range readable {
			if !s.readDevice(idx, buf) {
				// Device vanished (unplugged): drop it, keep the rest.
				s.log.Warn("input device lost, continuing with remaining devices",
					"path", s.devices[idx].path)
				s.devices[idx].file.Close()
				s.devices = append(s.devices[:idx], s.devices[idx+1:]...)
				break
			}
		}

		if len(s.devices) == 0 {
			s.log.Error("all input devices lost, reader exiting")
			return
		}
	}
}

// waitReadable multiplexes over every open device with a short timeout
// so the stop flag is observed promptly.
func (s *linuxSource) waitReadable() ([]int, error) {
	var fds unix.FdSet
	maxFd := 0
	for _, d := range s.devices {
		fds.Set(d.fd)
		if d.fd > maxFd {
			maxFd = d.fd
		}
	}

	timeout := selectTimeout
	n, err := unix.Select(maxFd+1, &fds, nil, nil, &timeout)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	var readable []int
	for i, d := range s.devices {
		if fds.IsSet(d.fd) {
			readable = append(readable, i)
		}
	}
	return readable, nil
}

// readDevice drains one device's pending events into the sink. Returns
// false when the device is gone.
func (s *linuxSource) readDevice(idx int, buf []byte) bool {
	n, err := s.devices[idx].file.Read(buf)
	if err != nil {
		return false
	}

	layout := keycodes.Resolve(s.layout())
	for off := 0; off+inputEventSize <= n; off += inputEventSize {
		evType := binary.LittleEndian.Uint16(buf[off+16 : off+18])
		code := binary.LittleEndian.Uint16(buf[off+18 : off+20])
		value := int32(binary.LittleEndian.Uint32(buf[off+20 : off+24]))

		// Presses only: releases carry no timing signal here, and
		// synthetic auto-repeats would skew every per-key statistic.
		if evType != evKey || value != keyValuePress {
			continue
		}

		sec := int64(binary.LittleEndian.Uint64(buf[off : off+8]))
		usec := int64(binary.LittleEndian.Uint64(buf[off+8 : off+16]))

		s.sink.Put(eventqueue.Event{
			Keycode:     code,
			KeyName:     keycodes.KeyName(code, layout),
			TimestampMs: sec*1000 + usec/1000,
		})
	}
	return true
}

// enumerateKeyboards parses /proc/bus/input/devices and keeps devices
// whose key capability bitmap covers typing keys: any of the letter
// rows, SPACE, ENTER or ESC.
func enumerateKeyboards() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("device: read input device list: %w", err)
	}
	defer f.Close()

	var devices []string
	var currentHandler string
	isKeyboard := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "H: Handlers=") {
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					currentHandler = "/dev/input/" + part
				}
			}
		}

		if strings.HasPrefix(line, "B: KEY=") {
			isKeyboard = hasTypingKeys(strings.TrimPrefix(line, "B: KEY="))
		}

		if line == "" {
			if isKeyboard && currentHandler != "" {
				devices = append(devices, currentHandler)
			}
			currentHandler = ""
			isKeyboard = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("device: scan input device list: %w", err)
	}

	if isKeyboard && currentHandler != "" {
		devices = append(devices, currentHandler)
	}
	return devices, nil
}

// hasTypingKeys decodes the hex key-capability bitmap (most-significant
// word first) and checks the typing key codes.
func hasTypingKeys(bitmap string) bool {
	words := strings.Fields(strings.TrimSpace(bitmap))
	if len(words) == 0 {
		return false
	}

	bitSet := func(code int) bool {
		// Word w holds bits [w*64, w*64+64); words are listed most
		// significant first.
		wordIdx := code / 64
		pos := len(words) - 1 - wordIdx
		if pos < 0 {
			return false
		}
		w, err := strconv.ParseUint(words[pos], 16, 64)
		if err != nil {
			return false
		}
		return w&(1<<uint(code%64)) != 0
	}

	if bitSet(keySpace) || bitSet(keyEnter) || bitSet(keyEsc) {
		return true
	}
	for code := letterRowStart; code <= letterRowEnd; code++ {
		if bitSet(code) {
			return true
		}
	}
	return false
}
