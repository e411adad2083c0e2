// Package api provides the HTTP surface of the synchronization gateway.
//
// It exposes session-cookie authentication, tenant administration, the
// change protocol (fetch-since and atomic apply), the graph object API
// over tags, groups, roles, attributes, classes and queries, the query
// runner, and a change-feed WebSocket. Unmatched GET paths fall through
// to the embedded application shell.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
