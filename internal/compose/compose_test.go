package compose

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalfx/maestro-go/internal/model"
)

func buildEnv() *model.Environment {
	env := &model.Environment{
		Name: "testenv",
		Ships: map[string]*model.Ship{
			"ship1": {Name: "ship1", IP: "10.0.0.1"},
		},
	}
	db := &model.Service{
		Name:  "db",
		Image: "postgres:14",
		Env:   map[string]string{"DB_ENGINE": "postgres"},
		Instances: map[string]*model.Instance{
			"db-1": {
				Name: "db-1", Ship: "ship1", Service: "db",
				Ports: map[string]*model.Port{
					"client": {Name: "client", ExposedPort: 5432, ExposedProto: "tcp", ExternalPort: 15432},
				},
			},
		},
	}
	web := &model.Service{
		Name:     "web",
		Image:    "nginx:1.25",
		Requires: []string{"db"},
		Env:      map[string]string{"WEB_ENV": "prod"},
		Instances: map[string]*model.Instance{
			"web-1": {
				Name: "web-1", Ship: "ship1", Service: "web",
				Env: map[string]string{"WEB_ENV": "instance-override"},
				Ports: map[string]*model.Port{
					"http": {Name: "http", ExposedPort: 80, ExposedProto: "tcp", ExternalPort: 8080},
				},
			},
			"web-2": {
				Name: "web-2", Ship: "ship1", Service: "web",
				Ports: map[string]*model.Port{
					"http": {Name: "http", ExposedPort: 80, ExposedProto: "tcp", ExternalPort: 8081},
				},
			},
		},
	}
	env.Services = map[string]*model.Service{"db": db, "web": web}
	return env
}

func TestComposeSelfLinksIncludeInternalPort(t *testing.T) {
	env := buildEnv()
	out, err := Compose(env, env.Services["db"].Instances["db-1"])
	require.NoError(t, err)
	require.Equal(t, "15432", out["DB_DB_1_CLIENT_PORT"])
	require.Equal(t, "5432", out["DB_DB_1_CLIENT_INTERNAL_PORT"])
}

func TestComposeDependencyLinksIncludeInternalPort(t *testing.T) {
	env := buildEnv()
	out, err := Compose(env, env.Services["web"].Instances["web-1"])
	require.NoError(t, err)
	require.Equal(t, "15432", out["DB_DB_1_CLIENT_PORT"])
	require.Equal(t, "5432", out["DB_DB_1_CLIENT_INTERNAL_PORT"])
}

func TestComposeSetsDockerImageAndTag(t *testing.T) {
	env := buildEnv()
	out, err := Compose(env, env.Services["web"].Instances["web-1"])
	require.NoError(t, err)
	require.Equal(t, "nginx", out["DOCKER_IMAGE"])
	require.Equal(t, "1.25", out["DOCKER_TAG"])
}

func TestComposeInstanceEnvWinsOverServiceEnv(t *testing.T) {
	env := buildEnv()
	out, err := Compose(env, env.Services["web"].Instances["web-1"])
	require.NoError(t, err)
	require.Equal(t, "instance-override", out["WEB_ENV"])
}

func TestComposeServiceEnvAppliesToAllInstances(t *testing.T) {
	env := buildEnv()
	out, err := Compose(env, env.Services["web"].Instances["web-2"])
	require.NoError(t, err)
	require.Equal(t, "prod", out["WEB_ENV"])
}

func TestComposeSetsContainerHostAddress(t *testing.T) {
	env := buildEnv()
	out, err := Compose(env, env.Services["db"].Instances["db-1"])
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", out["CONTAINER_HOST_ADDRESS"])
}

func TestComposeSetsBaseIdentityVariables(t *testing.T) {
	env := buildEnv()
	out, err := Compose(env, env.Services["web"].Instances["web-1"])
	require.NoError(t, err)
	require.Equal(t, "testenv", out["MAESTRO_ENVIRONMENT_NAME"])
	require.Equal(t, "web", out["SERVICE_NAME"])
	require.Equal(t, "web-1", out["CONTAINER_NAME"])
}

func TestEnvNameSanitizesNonWordChars(t *testing.T) {
	require.Equal(t, "WEB_1", envName("web-1"))
}
