/*
Package orchestrator adapts the external templating and cluster inspection
tools behind a typed interface.

Both tools are opaque command-line collaborators: helm installs and
uninstalls the templated store release, kubectl reports pod and ingress
state as JSON. Only the commands invoked and the output fields consumed are
part of the contract; everything else about the tools is out of scope.

# Command construction

All invocations pass arguments as argv through exec.CommandContext. No
string ever reaches a shell, and identifiers are checked against a
restricted character set before use. This is defence in depth: ids,
namespaces, and hosts are generated internally, but future user-supplied
fields must not be able to smuggle metacharacters into a command line.

# Failure semantics

Install and Uninstall return the captured stderr text on failure.
Uninstalling a release that no longer exists is not a failure, because the
delete path must be tolerant of partial prior cleanup. Readiness checks
never return an error: any invocation or parse failure yields a not-ready
result whose reason carries the error text, and the watch loop simply tries
again on its next tick.
*/
package orchestrator
