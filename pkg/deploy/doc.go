/*
Package deploy implements the release orchestrator, the core control loop
of a deployment.

Each invocation drives one release through an explicit state machine:

	Idle → Stopping(old) → Starting(new) → Polling → AllHealthy | TimedOut

Stopping is a blocking step with a bounded grace period per service, in
reverse dependency order. Starting launches the full service set in
dependency order and prunes prior releases' dangling images in the
background. Polling queries the runtime's typed health status for every
service at a fixed interval until the required healthy count is met or a
bounded attempt counter fires; unhealthy services have their recent log
tails captured for the diagnostic bundle.

The orchestrator is idempotent: running it twice with the same release
makes the second Stopping step a no-op and recreates the same desired
state. It never sets health itself; status comes only from polling the
runtime.

Failures are typed by where they hit. Once the first container has been
stopped or removed, any stop, start, or poll failure is an
OrchestrationError: the host holds a mixed state the caller must tear
down. Failures before that point return plain errors and leave the
previous release running.

Pull (fetch.go) is the image-fetch stage that precedes the state machine:
all images for the release are pulled as a unit, and any failure aborts
before any container is touched.
*/
package deploy
