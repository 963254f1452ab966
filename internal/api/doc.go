// Package api exposes the team registry over HTTP.
//
// Every team operation has a JSON endpoint under /api/teams. Participants
// receive their messages either by long polling
//
//	GET /api/teams/{team}/members/{member}/messages?lastMessageId=N
//
// which acknowledges every message up to N and waits for the next one, or by
// holding a WebSocket open on .../stream. Registry errors are mapped to HTTP
// status codes by kind.
package api
