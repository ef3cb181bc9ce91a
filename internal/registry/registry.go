// Package registry resolves which configured registry credentials, if any,
// apply to a given image reference: first by exact registry name match,
// then by matching the image's registry-host prefix against a registry's
// URL.
package registry

import (
	"net/url"
	"strings"

	"github.com/signalfx/maestro-go/internal/model"
)

// Lookup finds the *model.Registry whose credentials should be used to pull
// image, or nil if none apply (the image is unqualified or its host matches
// no configured registry).
func Lookup(env *model.Environment, image string) *model.Registry {
	host := model.RegistryHost(image)
	if host == "" {
		return nil
	}

	if r, ok := env.Registries[host]; ok {
		return r
	}

	for _, r := range env.Registries {
		if hostOf(r.URL) == host {
			return r
		}
	}
	return nil
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
