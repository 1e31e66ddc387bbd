package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	fx "github.com/robotalks/diffdrive/pkg/framework"
	"github.com/robotalks/diffdrive/pkg/protocol"
	"github.com/robotalks/diffdrive/pkg/transport"
	"github.com/robotalks/diffdrive/pkg/transport/env"
	"github.com/robotalks/diffdrive/pkg/transport/stream"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *Conn
}

// Conn is a running link to the controller.
type Conn struct {
	Ctx    context.Context
	Cancel func()
	URL    string
	Link   transport.Link
	Client *protocol.Client
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

// ConnectTimeout bounds the wait for the link to become ready.
var ConnectTimeout = 3 * time.Second

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell. conf is the device side config, the shell
// connects with the addresses swapped.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf.ForHost(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Client returns the protocol client of current connection.
func Client(c *ishell.Context) *protocol.Client {
	return ShellFrom(c).Conn.Client
}

// DoSend runs fn which sends a frame and prints the result.
func DoSend(c *ishell.Context, fn func(*protocol.Client) error) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	if err := fn(s.Conn.Client); err != nil {
		c.Err(err)
		return err
	}
	if s.OutputJSON {
		c.Println(`{"ok":true}`)
	} else {
		c.Println("OK")
	}
	return nil
}

// PrintValue prints v in JSON if OutputJSON, otherwise text.
func PrintValue(c *ishell.Context, v interface{}, text string) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens a link to url, waiting until it is ready.
func (s *Shell) Connect(url string) error {
	conf := *s.Config
	conf.URL = url
	conn := &Conn{URL: url}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	var client *protocol.Client
	link, err := conf.NewLink(func(frame []byte) {
		if client != nil {
			client.HandleFrame(frame)
		}
	}, func() {
		s.Shell.Printf("\n%s unbound\n", conf.Addr.Name)
	})
	if err != nil {
		conn.Cancel()
		return err
	}
	client = protocol.NewClient(link)
	conn.Link, conn.Client = link, client

	runner := fx.NewRunnerWith(conn.Ctx).Go(link)
	deadline := time.Now().Add(ConnectTimeout)
	for !link.Ready() {
		if time.Now().After(deadline) {
			conn.Cancel()
			runner.Wait()
			return fmt.Errorf("connect %s: timeout", url)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if s.Conn != nil {
		s.Conn.Cancel()
	}
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conf.Addr.Name))
	return nil
}

// Disconnect disconnects current controller.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Cancel()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.URL != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.URL)
		}
		if err := s.Connect(s.Config.URL); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.URL, err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := stream.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if ports == nil {
				ports = []string{}
			}
			text := "No serial ports found"
			if len(ports) > 0 {
				text = fmt.Sprint(ports)
			}
			PrintValue(c, ports, text)
		},
	}

	// ConnectCmd connects a controller.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			url := s.Config.URL
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if err := s.Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current controller.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	env.SetupFlags()
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
