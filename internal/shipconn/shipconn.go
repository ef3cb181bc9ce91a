// Package shipconn builds a Docker daemon client for a ship, dispatching on
// its connection mode: plain TCP, TLS-protected TCP, an SSH-forwarded
// tunnel, or a local Unix socket. Exactly one of these modes is active per
// ship, enforced at config-load time.
package shipconn

import (
	"fmt"
	"net/http"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"

	"github.com/signalfx/maestro-go/internal/errs"
	"github.com/signalfx/maestro-go/internal/model"
	"github.com/signalfx/maestro-go/internal/sshtunnel"
)

// Connection pairs a Docker client with the resources it needs closed when
// the orchestrator is done with a ship (notably, an SSH tunnel).
type Connection struct {
	Client *client.Client
	tunnel *sshtunnel.Tunnel
}

// Close releases the Docker client's transport and any SSH tunnel backing
// it.
func (c *Connection) Close() error {
	err := c.Client.Close()
	if c.tunnel != nil {
		if tErr := c.tunnel.Close(); err == nil {
			err = tErr
		}
	}
	return err
}

// Dial builds a Connection to ship's daemon per its configured mode.
func Dial(ship *model.Ship) (*Connection, error) {
	timeout := time.Duration(ship.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var opts []client.Opt
	var tunnel *sshtunnel.Tunnel

	switch ship.Mode {
	case model.ConnUnixSocket:
		opts = append(opts, client.WithHost("unix://"+ship.SocketPath))

	case model.ConnPlainTCP:
		opts = append(opts, client.WithHost(fmt.Sprintf("tcp://%s:%d", ship.EndpointOrIP(), ship.DockerPort)))

	case model.ConnTLSTCP:
		tlsCfg, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:             ship.TLS.CACert,
			CertFile:           ship.TLS.Cert,
			KeyFile:            ship.TLS.Key,
			InsecureSkipVerify: !ship.TLS.Verify,
		})
		if err != nil {
			return nil, &errs.ConnectionError{Ship: ship.Name, Cause: fmt.Errorf("building TLS config: %w", err)}
		}
		httpClient := &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
			Timeout:   timeout,
		}
		opts = append(opts,
			client.WithHost(fmt.Sprintf("tcp://%s:%d", ship.EndpointOrIP(), ship.DockerPort)),
			client.WithHTTPClient(httpClient),
		)

	case model.ConnSSHTunnel:
		var err error
		sshTimeout := time.Duration(ship.SSHTimeout) * time.Second
		if sshTimeout <= 0 {
			sshTimeout = 10 * time.Second
		}
		tunnel, err = sshtunnel.Open(ship.EndpointOrIP(), ship.SSHTunnel, sshTimeout)
		if err != nil {
			return nil, &errs.ConnectionError{Ship: ship.Name, Cause: err}
		}
		httpClient := &http.Client{
			Transport: &http.Transport{DialContext: tunnel.DialContext},
			Timeout:   timeout,
		}
		opts = append(opts,
			client.WithHost(fmt.Sprintf("tcp://127.0.0.1:%d", ship.DockerPort)),
			client.WithHTTPClient(httpClient),
		)

	default:
		return nil, &errs.ConnectionError{Ship: ship.Name, Cause: fmt.Errorf("unknown connection mode")}
	}

	if ship.APIVersion != "" {
		opts = append(opts, client.WithVersion(ship.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		if tunnel != nil {
			tunnel.Close()
		}
		return nil, &errs.ConnectionError{Ship: ship.Name, Cause: err}
	}

	return &Connection{Client: cli, tunnel: tunnel}, nil
}
