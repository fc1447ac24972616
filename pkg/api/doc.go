// Package api exposes an edit engine over HTTP.
//
// Every route is scoped to one engine key:
//
//	POST /v1/{engine}/form[/{object}]            form-encoded submission
//	POST /v1/{engine}/params[/{object}]          HTTP parameter batch
//	GET  /v1/{engine}/params                     parameter documentation
//	POST /v1/{engine}/comment/{object}           comment text and actions (JSON)
//	POST /v1/{engine}/rpc                        typed transaction batch (JSON)
//	GET  /v1/{engine}/objects/{object}/transactions
//	GET  /v1/{engine}/configurations
//	PUT  /v1/{engine}/configurations             store a configuration (JSON)
//
// Query parameters config, template, continue and action control form and
// parameter submissions and are never read as field values. The acting
// viewer is taken from the X-Viewer and X-Viewer-Roles headers; an absent
// X-Viewer header is a logged-out viewer.
//
// Outcomes map to status codes: saved is 201 for a creation and 200
// otherwise, invalid is 422, no effect is 409, and rejected requests are
// 404, 403, 400 or 409 depending on the reason. Configuration defects and
// storage failures are 500.
package api
