// Package cluster holds the wire types shared by the coordinator and the
// node service: group records, error bodies, pass phases and the outcome
// vector a pass produces.
//
// # Overview
//
// groupsync runs one coordinator in front of a fixed, ordered list of
// independent nodes. Nodes do not talk to each other and do not replicate;
// each one keeps its own private set of groups:
//
//	              ┌──────────────┐
//	              │ Coordinator  │
//	              │              │
//	              │ - Passes     │
//	              │ - Rollback   │
//	              │ - Health Mon │
//	              └──────┬───────┘
//	                     │
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│  Node 1   │ │  Node 2   │ │  Node 3   │
//	│ groups{}  │ │ groups{}  │ │ groups{}  │
//	└───────────┘ └───────────┘ └───────────┘
//
// # Communication Protocol
//
// All traffic is HTTP/JSON:
//
//	GET    /v1/group/{groupId}/   200 record, 404 absent
//	POST   /v1/group/             {"groupId": "..."}  201 created, 409 exists
//	DELETE /v1/group/             {"groupId": "..."}  200 deleted, 404 absent
//	GET    /health                200
//
// Hosts may be configured as "host:port" or as full URLs; BaseURL
// normalises both forms.
//
// # Outcome vectors
//
// Every pass yields an OutcomeVector with exactly one entry per host in
// host list order, whether the pass ran sequentially or fanned out.
package cluster
