package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"
	"github.com/solpipe/solpipe-crank/config"
	"github.com/solpipe/solpipe-crank/logger"
	"github.com/solpipe/solpipe-crank/util"
)

type CLIContext struct {
	Clients *Clients
	Ctx     context.Context
}

type debugFlag bool

type ConfigFile string
type EnvFile string
type RpcUrl string
type WsUrl string

var cli struct {
	Verbose    debugFlag  `help:"Set logging to verbose." short:"v" default:"false"`
	ConfigFile ConfigFile `option:"" name:"config" short:"c" help:"Path to the yaml configuration file" default:"crank.yaml"`
	EnvFile    EnvFile    `option:"" name:"env" help:"Path to a .env file loaded before the configuration" default:".env"`
	RpcUrl     RpcUrl     `option:"" name:"rpc" help:"Override rpc_url with format protocol://host:port (ie http://localhost:8899)"`
	WsUrl      WsUrl      `option:"" name:"ws" help:"Override ws_url with format protocol://host:port (ie ws://localhost:8900)"`
	Crank      Crank      `cmd:"" name:"crank" help:"Watch event queues and send consume events transactions"`
	Check      Check      `cmd:"" name:"check" help:"Validate the configuration and print the markets being cranked"`
}

type Clients struct {
	ctx        context.Context
	Verbose    bool
	ConfigFile string
	EnvFile    string
	RpcUrl     string
	WsUrl      string
}

func (v ConfigFile) AfterApply(clients *Clients) error {
	clients.ConfigFile = string(v)
	return nil
}

func (v EnvFile) AfterApply(clients *Clients) error {
	clients.EnvFile = string(v)
	return nil
}

func (v RpcUrl) AfterApply(clients *Clients) error {
	clients.RpcUrl = string(v)
	return nil
}

func (v WsUrl) AfterApply(clients *Clients) error {
	clients.WsUrl = string(v)
	return nil
}

func (d debugFlag) AfterApply(clients *Clients) error {
	clients.Verbose = bool(d)
	if d {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	return nil
}

// Load reads the env file and the configuration, applies the url flags and
// sets up logging.  --verbose wins over log_level.
func (clients *Clients) Load() (*config.Configuration, error) {
	err := util.LoadEnvFile(clients.EnvFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(clients.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	c, err := config.ParseWith(data, func(c *config.Configuration) {
		if 0 < len(clients.RpcUrl) {
			c.RpcUrl = clients.RpcUrl
		}
		if 0 < len(clients.WsUrl) {
			c.WsUrl = clients.WsUrl
		}
	})
	if err != nil {
		return nil, err
	}
	level := c.LogLevel
	if clients.Verbose {
		level = "debug"
	}
	err = logger.Setup(level, c.LogJson)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func main() {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, syscall.SIGTERM, syscall.SIGINT)
	ctx, cancel := context.WithCancel(context.Background())
	go loopSignal(ctx, cancel, signalC)
	clients := &Clients{ctx: ctx}
	kongCtx := kong.Parse(&cli, kong.Bind(clients))
	err := kongCtx.Run(&CLIContext{Ctx: ctx, Clients: clients})
	kongCtx.FatalIfErrorf(err)
}

func loopSignal(ctx context.Context, cancel context.CancelFunc, signalC <-chan os.Signal) {
	defer cancel()
	doneC := ctx.Done()
	select {
	case <-doneC:
	case s := <-signalC:
		os.Stderr.WriteString(fmt.Sprintf("%s\n", s.String()))
	}
}
