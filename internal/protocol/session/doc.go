// Package session owns the typed yard messages and their wire codecs.
//
// Ownership boundary:
// - control messages carried on the reliable per-client connection
//   (Join, Move and the single JoinAck reply)
// - broadcast messages carried on the multicast group
//   (Snapshot, ScoreBoard, Eliminated)
// - connect timeouts and retry backoff for clients
//
// Every broadcast message is self-contained so receivers tolerate loss,
// duplication and reordering.
package session
