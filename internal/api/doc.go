// Package api is the HTTP front end.
//
// Routes:
//
//	GET  /ping.html              worker health
//	GET  /                       channel descriptions
//	POST /{channel}              enqueue a message (form or JSON)
//	GET  /{channel}              channel statistics
//	GET  /{channel}/deliveries   recent journal records (storage enabled only)
//
// Every response is JSON: {"status": "success", ...} or
// {"status": "error", "message": "..."}.
package api
