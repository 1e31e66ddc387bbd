package stream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when the serial URL has no baud parameter.
const DefaultBaudRate = 115200

// SerialMode parses the serial mode from URL query, like
// serial:///dev/ttyUSB0?baud=115200&parity=none&stop=1.
func SerialMode(q url.Values) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if val := q.Get("baud"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil || baud <= 0 {
			return nil, fmt.Errorf("invalid baud rate %q", val)
		}
		mode.BaudRate = baud
	}
	switch q.Get("parity") {
	case "", "none":
	case "even":
		mode.Parity = serial.EvenParity
	case "odd":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("invalid parity %q", q.Get("parity"))
	}
	switch q.Get("stop") {
	case "", "1":
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %q", q.Get("stop"))
	}
	return mode, nil
}

// SerialOpener returns an OpenFunc opening the serial port.
func SerialOpener(port string, mode *serial.Mode) OpenFunc {
	return func(context.Context) (io.ReadWriteCloser, error) {
		return serial.Open(port, mode)
	}
}

// TCPOpener returns an OpenFunc dialing a TCP address.
func TCPOpener(addr string) OpenFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

// Ports lists the serial ports on the machine.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
