package main

import (
	"sort"

	"github.com/signalfx/maestro-go/internal/model"
	"github.com/signalfx/maestro-go/internal/shipconn"
)

// dialAll dials every ship in env independently, never letting one ship's
// failure stop the others from being tried. Per spec, an unreachable ship
// is fatal only for that ship's own instances, not for the run as a whole
// (internal/errs.ConnectionError's own doc comment: "every instance on that
// ship is reported failed" — other ships still proceed). The returned errs
// map carries one entry per ship that failed to dial, for the Orchestrator
// to surface as a per-instance ConnectionError on that ship alone; conns
// carries every ship that succeeded.
func dialAll(env *model.Environment) (conns map[string]*shipconn.Connection, dialErrs map[string]error) {
	var names []string
	for name := range env.Ships {
		names = append(names, name)
	}
	sort.Strings(names)

	conns = make(map[string]*shipconn.Connection, len(names))
	dialErrs = make(map[string]error)
	for _, name := range names {
		conn, err := shipconn.Dial(env.Ships[name])
		if err != nil {
			dialErrs[name] = err
			continue
		}
		conns[name] = conn
	}
	return conns, dialErrs
}

func closeAll(conns map[string]*shipconn.Connection) {
	for _, c := range conns {
		c.Close()
	}
}
