package daemon

import (
	"os"

	"github.com/grovetools/autoreg/config"
	"github.com/grovetools/autoreg/errors"
)

// AddrEnv overrides the daemon address used by clients.
const AddrEnv = "AUTOREG_ADDR"

// ResolveAddr picks the daemon address: AUTOREG_ADDR, then server.listen of
// cfg, then the default listen address.
func ResolveAddr(cfg *config.Config) string {
	if addr := os.Getenv(AddrEnv); addr != "" {
		return addr
	}
	if cfg != nil && cfg.Server.Listen != "" {
		return cfg.Server.Listen
	}
	return config.DefaultListen
}

// New returns a client for the daemon at addr.
func New(addr string) (Client, error) {
	return NewRemoteClient(addr)
}

// MustConnect returns a client for a daemon that is known to be responding.
// Use this in contexts where the daemon is required.
func MustConnect(addr string) (Client, error) {
	client, err := NewRemoteClient(addr)
	if err != nil {
		return nil, err
	}
	if !client.IsRunning() {
		return nil, errors.New(errors.ErrCodeDaemonUnreachable,
			"autoreg daemon is not running; start it with 'autoreg serve'").WithDetail("url", client.BaseURL())
	}
	return client, nil
}
