package util

import (
	"context"
	"errors"
	"net/http"
	"os"

	sgorpc "github.com/gagliardetto/solana-go/rpc"
	sgows "github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/joho/godotenv"
)

type RpcConfig struct {
	Rpc     string
	Ws      string
	Headers http.Header
}

// LoadEnvFile loads fp into the environment.  A missing file is not an error.
func LoadEnvFile(fp string) error {
	if len(fp) == 0 {
		return nil
	}
	if _, err := os.Stat(fp); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(fp)
}

// RpcConfigFromEnv reads RPC_URL and WS_URL.
func RpcConfigFromEnv() (*RpcConfig, error) {
	var present bool
	config := new(RpcConfig)
	config.Rpc, present = os.LookupEnv("RPC_URL")
	if !present {
		return nil, errors.New("no rpc url")
	}
	config.Ws, present = os.LookupEnv("WS_URL")
	if !present {
		return nil, errors.New("no ws url")
	}
	return config, nil
}

func (config *RpcConfig) headerMap() map[string]string {
	h := make(map[string]string)
	for k, v := range config.Headers {
		if len(v) == 1 {
			h[k] = v[0]
		}
	}
	return h
}

func (config *RpcConfig) Client() *sgorpc.Client {
	return sgorpc.NewWithHeaders(config.Rpc, config.headerMap())
}

func (config *RpcConfig) WsConnect(ctx context.Context) (*sgows.Client, error) {
	if len(config.Headers) == 0 {
		return sgows.Connect(ctx, config.Ws)
	}
	return sgows.ConnectWithOptions(ctx, config.Ws, &sgows.Options{HttpHeader: config.Headers})
}
