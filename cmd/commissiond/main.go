/*
main.go - commissiond entry point

PURPOSE:
  Command-line front end for the commission engine.

COMMANDS:
  serve              Run the HTTP API (and the optional periodic sweep)
  recalc <deal>...   Recalculate deals once and print per-deal counts
  seed <scenario>    Reset the database and load a demo scenario

CONFIGURATION:
  --config points at a YAML file; a missing file falls back to defaults.
  Every key can be overridden from the environment, e.g.
    COMMISSION_DATABASE_PATH=":memory:"
    COMMISSION_LOCK_BACKEND=redis COMMISSION_REDIS_ADDR=redis:6379

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Routes
*/
package main

func main() {
	Execute()
}
