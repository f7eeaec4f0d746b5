// Package tor provides the SOCKS5 dialing used by the --proxy and --tor
// fetch paths.
//
// Client wraps golang.org/x/net/proxy and is handed to the fetch package as
// a dial function. EmbeddedTor starts a private Tor daemon through
// github.com/nao1215/tornago for users who do not run one themselves; its
// SOCKS address feeds a Client like any other proxy.
//
// Neither type holds global state. The CLI creates them per run and stops
// the daemon when the run ends.
package tor
