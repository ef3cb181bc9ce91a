package main

import (
	"testing"

	"github.com/signalfx/maestro-go/internal/model"
)

func TestDialAllDialsEveryShipIndependently(t *testing.T) {
	env := &model.Environment{
		Ships: map[string]*model.Ship{
			"good": {
				Name: "good", IP: "10.0.0.1", DockerPort: 2375, Mode: model.ConnPlainTCP,
			},
			"bad": {
				Name: "bad", IP: "10.0.0.2", DockerPort: 2376, Mode: model.ConnTLSTCP,
				TLS: &model.TLSConfig{CACert: "/nonexistent/ca.pem", Cert: "/nonexistent/cert.pem", Key: "/nonexistent/key.pem"},
			},
		},
	}

	conns, dialErrs := dialAll(env)
	defer closeAll(conns)

	if _, ok := conns["good"]; !ok {
		t.Error("expected a connection for the reachable ship")
	}
	if _, ok := conns["bad"]; ok {
		t.Error("did not expect a connection for the ship with a broken TLS config")
	}
	if _, ok := dialErrs["bad"]; !ok {
		t.Error("expected a dial error recorded for the ship with a broken TLS config")
	}
	if _, ok := dialErrs["good"]; ok {
		t.Error("did not expect a dial error for the reachable ship")
	}
}
