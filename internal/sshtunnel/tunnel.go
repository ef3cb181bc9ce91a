// Package sshtunnel dials a ship's container daemon through an SSH
// connection, for ships configured with ssh_tunnel instead of a directly
// reachable TCP or TLS endpoint.
package sshtunnel

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"

	"github.com/signalfx/maestro-go/internal/model"
)

// Tunnel wraps an established SSH connection to a ship, used to dial the
// remote daemon port without exposing it directly on the network.
type Tunnel struct {
	client *ssh.Client
}

// Open establishes an SSH connection to host using cfg's user and private
// key, filling in anything cfg leaves unset (user, key, port) from the
// operator's ~/.ssh/config, the way the ssh binary itself would. Host key
// verification is intentionally not performed: ships are operator-supplied
// trusted infrastructure, matching how the rest of the connection layer
// treats ship addresses.
func Open(host string, cfg *model.SSHTunnelConfig, timeout time.Duration) (*Tunnel, error) {
	user, keyPath, port := resolveFromSSHConfig(host, cfg)

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading SSH key %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing SSH key %s: %w", keyPath, err)
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	return &Tunnel{client: client}, nil
}

// resolveFromSSHConfig fills in whatever cfg leaves unset for host by
// consulting the user's ~/.ssh/config, falling back to ssh's own defaults
// (current user, ~/.ssh/id_rsa, port 22) when no config file or no matching
// Host block exists. Explicit cfg values always take precedence.
func resolveFromSSHConfig(host string, cfg *model.SSHTunnelConfig) (user, keyPath string, port int) {
	user, keyPath, port = cfg.User, cfg.Key, cfg.Port

	var sshCfg *ssh_config.Config
	if home, err := os.UserHomeDir(); err == nil {
		if f, err := os.Open(filepath.Join(home, ".ssh", "config")); err == nil {
			defer f.Close()
			sshCfg, _ = ssh_config.Decode(f)
		}
	}

	if user == "" {
		if sshCfg != nil {
			if v, _ := sshCfg.Get(host, "User"); v != "" {
				user = v
			}
		}
		if user == "" {
			if u, err := os.UserHomeDir(); err == nil {
				user = filepath.Base(u)
			}
		}
	}

	if keyPath == "" && sshCfg != nil {
		if v, _ := sshCfg.Get(host, "IdentityFile"); v != "" {
			keyPath = expandHome(v)
		}
	}
	if keyPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			keyPath = filepath.Join(home, ".ssh", "id_rsa")
		}
	}

	if port == 0 {
		if sshCfg != nil {
			if v, _ := sshCfg.Get(host, "Port"); v != "" {
				if p, err := strconv.Atoi(v); err == nil {
					port = p
				}
			}
		}
		if port == 0 {
			port = 22
		}
	}

	return user, keyPath, port
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// DialContext satisfies the signature expected by http.Transport /
// docker client.WithDialContext, forwarding the connection through SSH to
// addr as seen from the ship itself.
func (t *Tunnel) DialContext(_ context.Context, network, addr string) (net.Conn, error) {
	return t.client.Dial(network, addr)
}

// Close tears down the underlying SSH connection.
func (t *Tunnel) Close() error {
	return t.client.Close()
}
