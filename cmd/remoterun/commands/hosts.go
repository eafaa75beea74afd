package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/slok/remoterun/internal/config"
	"github.com/slok/remoterun/internal/conn"
	sshconn "github.com/slok/remoterun/internal/conn/ssh"
	"github.com/slok/remoterun/internal/model"
)

// resolveHosts turns host specs into dialable hosts. A spec is either the
// name of a host in the hosts file or "user@addr:port".
func resolveHosts(rootCmd *RootCommand, specs []string, defaultUser, defaultKeyPath string) ([]config.Host, error) {
	var cfg *config.Config
	if _, err := os.Stat(rootCmd.HostsFile); err == nil {
		cfg, err = config.LoadFile(rootCmd.HostsFile)
		if err != nil {
			return nil, fmt.Errorf("could not load hosts file: %w", err)
		}
	}

	hosts := make([]config.Host, 0, len(specs))
	for _, spec := range specs {
		if cfg != nil {
			h, err := cfg.Host(spec)
			if err == nil {
				hosts = append(hosts, applyHostDefaults(*h, defaultUser, defaultKeyPath))
				continue
			}
			if !errors.Is(err, model.ErrNotFound) {
				return nil, err
			}
		}

		h, err := parseHostSpec(spec)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, applyHostDefaults(h, defaultUser, defaultKeyPath))
	}

	return hosts, nil
}

func applyHostDefaults(h config.Host, defaultUser, defaultKeyPath string) config.Host {
	if h.User == "" {
		h.User = defaultUser
	}
	if h.PrivateKeyPath == "" {
		h.PrivateKeyPath = defaultKeyPath
	}
	return h
}

// parseHostSpec parses "user@addr:port" with user and port optional.
func parseHostSpec(spec string) (config.Host, error) {
	h := config.Host{Port: 22}

	rest := spec
	if i := strings.Index(rest, "@"); i >= 0 {
		h.User = rest[:i]
		rest = rest[i+1:]
	}

	if addr, port, err := net.SplitHostPort(rest); err == nil {
		p, err := strconv.Atoi(port)
		if err != nil {
			return config.Host{}, fmt.Errorf("invalid port in host %q: %w", spec, model.ErrNotValid)
		}
		h.Addr = addr
		h.Port = p
	} else {
		h.Addr = rest
	}

	if h.Addr == "" {
		return config.Host{}, fmt.Errorf("invalid host %q: %w", spec, model.ErrNotValid)
	}

	h.Name = h.Addr
	return h, nil
}

// dialHosts establishes an SSH channel per host. The returned closer closes
// every channel that was established.
func dialHosts(ctx context.Context, rootCmd *RootCommand, hosts []config.Host, connectTimeout time.Duration) ([]conn.Channel, func(), error) {
	channels := make([]conn.Channel, 0, len(hosts))
	closeAll := func() {
		for _, ch := range channels {
			if err := ch.Close(); err != nil {
				rootCmd.Logger.Warningf("Could not close channel %s: %v", ch.Peer(), err)
			}
		}
	}

	for _, h := range hosts {
		if h.PrivateKeyPath == "" {
			closeAll()
			return nil, nil, fmt.Errorf("host %q has no private key: %w", h.Name, model.ErrNotValid)
		}
		key, err := os.ReadFile(h.PrivateKeyPath)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("could not read private key for host %q: %w", h.Name, err)
		}

		ch, err := sshconn.NewChannel(ctx, sshconn.ChannelConfig{
			Host:           h.Addr,
			Port:           h.Port,
			User:           h.User,
			PrivateKey:     key,
			ConnectTimeout: connectTimeout,
			Logger:         rootCmd.Logger,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("could not connect to host %q: %w", h.Name, err)
		}
		channels = append(channels, ch)
	}

	return channels, closeAll, nil
}
