// Package env selects and configures the transport from flags and
// environment variables.
package env

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/robotalks/diffdrive/pkg/transport"
	"github.com/robotalks/diffdrive/pkg/transport/mqtt"
	"github.com/robotalks/diffdrive/pkg/transport/stream"
	"github.com/robotalks/diffdrive/pkg/transport/websocket"
)

// Default endpoint address of the motor controller.
const (
	DefaultName   = "rpmsg:motor_ctrl"
	DefaultLocal  = 1002
	DefaultRemote = 1003
)

// Config provides common options to setup an endpoint.
type Config struct {
	// URL selects the transport:
	//   mqtt://host:port/topic-prefix/
	//   serial:///dev/ttyUSB0?baud=115200
	//   tcp://host:port
	//   ws://host:port/path        (dial)
	//   ws+listen://:port/path     (accept)
	URL  string
	Addr transport.Address
}

var defaultConfig = Config{
	URL: "mqtt://localhost:1883/diffdrive/",
	Addr: transport.Address{
		Name:   DefaultName,
		Local:  DefaultLocal,
		Remote: DefaultRemote,
	},
}

func init() {
	if val := os.Getenv("DIFFDRIVE_ENDPOINT_URL"); val != "" {
		defaultConfig.URL = val
	}
	if val := os.Getenv("DIFFDRIVE_ENDPOINT_NAME"); val != "" {
		defaultConfig.Addr.Name = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.URL, "endpoint", defaultConfig.URL, "Endpoint URL")
	flag.StringVar(&defaultConfig.Addr.Name, "endpoint-name", defaultConfig.Addr.Name, "Endpoint name")
	flag.Var((*portValue)(&defaultConfig.Addr.Local), "endpoint-local", "Local endpoint address")
	flag.Var((*portValue)(&defaultConfig.Addr.Remote), "endpoint-remote", "Remote endpoint address")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// ForHost returns the config for the host side, with the addresses swapped.
func (c Config) ForHost() *Config {
	c.Addr.Local, c.Addr.Remote = c.Addr.Remote, c.Addr.Local
	return &c
}

// NewLink creates the Link from URL.
func (c *Config) NewLink(recv transport.ReceiveFunc, unbind transport.UnbindFunc) (transport.Link, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "mqtts":
		if u.Query().Get("client-id") == "" {
			q := u.Query()
			q.Set("client-id", ClientID(c.Addr))
			u.RawQuery = q.Encode()
		}
		ep, err := mqtt.NewEndpoint(u.String(), c.Addr, recv, unbind)
		if err != nil {
			return nil, err
		}
		return ep, nil
	case "serial":
		mode, err := stream.SerialMode(u.Query())
		if err != nil {
			return nil, err
		}
		port := u.Path
		if port == "" {
			port = u.Opaque
		}
		return stream.NewEndpoint(c.Addr, stream.SerialOpener(port, mode), recv, unbind), nil
	case "tcp":
		return stream.NewEndpoint(c.Addr, stream.TCPOpener(u.Host), recv, unbind), nil
	case "ws", "wss":
		return websocket.NewClient(u.String(), c.Addr, recv, unbind), nil
	case "ws+listen":
		return websocket.NewServer(u.Host, u.Path, c.Addr, recv, unbind), nil
	default:
		return nil, fmt.Errorf("unknown endpoint URL scheme: %q", u.Scheme)
	}
}

type portValue uint32

func (v *portValue) String() string {
	return strconv.FormatUint(uint64(*v), 10)
}

func (v *portValue) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return err
	}
	*v = portValue(n)
	return nil
}
