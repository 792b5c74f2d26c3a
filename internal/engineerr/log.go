package engineerr

import (
	"log"
	"os"
)

// defaultLogger mirrors the donor's bare use of the stdlib "log" package
// (wongdb.LoadAllIssues logs and skips on a corrupt issue rather than
// failing the whole load) — no structured-logging library is used
// anywhere in the donor's non-CLI internal/ packages.
var defaultLogger = log.New(os.Stderr, "workspace-engine: ", log.LstdFlags)
