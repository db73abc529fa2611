package keystroke

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const procInputDevices = "/proc/bus/input/devices"

// Keyboards lists the keyboards known to the kernel.
func Keyboards() ([]InputDevice, error) {
	f, err := os.Open(procInputDevices)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseInputDevices(f)
}

// InputDevice is a keyboard listed in /proc/bus/input/devices.
type InputDevice struct {
	Name    string
	Phys    string
	Handler string // /dev/input/eventN
}

// parseInputDevices returns the devices whose handlers include a kbd
// handler and an event node.
func parseInputDevices(r io.Reader) ([]InputDevice, error) {
	var devices []InputDevice
	var cur InputDevice
	isKeyboard := false

	flush := func() {
		if isKeyboard && cur.Handler != "" {
			devices = append(devices, cur)
		}
		cur = InputDevice{}
		isKeyboard = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "N: Name="):
			cur.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "P: Phys="):
			cur.Phys = strings.TrimPrefix(line, "P: Phys=")
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				switch {
				case part == "kbd":
					isKeyboard = true
				case strings.HasPrefix(part, "event"):
					cur.Handler = "/dev/input/" + part
				}
			}
		case line == "":
			flush()
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}
