// Package protocol defines the JSON control messages exchanged between
// clients, the manager and downloaders.
//
// Every frame is an envelope {"id": <packet id>, "data": <object>}. Each
// direction has its own sealed interface (ClientPacket, ServerPacket,
// WorkerPacket, ManagerPacket) so handlers dispatch with a type switch over
// concrete types. Decoding only checks shape; semantic validation of user
// payloads lives in package validation.
package protocol
