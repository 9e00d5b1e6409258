/*
Package health provides the health checkers used by the post-promotion
verifier.

Two checker types cover the fleet's external probe contracts:

  - HTTPChecker: probes an externally routed HTTP endpoint, optionally
    requiring a JSON body with a non-empty status field (the backend's
    /api/health contract)
  - ExecChecker: runs a command inside a container through the runtime's
    exec interface (the database's ping contract)

These probes are deliberately independent of the container-internal health
checks the orchestrator polls: an internal check can pass while the
externally routed path is still broken.
*/
package health
