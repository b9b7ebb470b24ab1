package journal

import (
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts a tailsql console over the journal at
// /debug/tailsql/.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+j.path, j.db, &tailsql.DBOptions{
		Label: "Session journal",
	})
	debug.Handle("tailsql/", "SQL console over the session journal", tsql.NewMux())
	return nil
}
