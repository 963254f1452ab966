// Package bus carries messages between the nodes of a planning poker
// cluster.
//
// A node registers under its id, then sends [NodeMessage] values that every
// other registered node receives on [Bus.Messages]. A message with a
// RecipientNodeID is only delivered to that node. A node never receives its
// own messages.
//
// Two implementations exist: [MemoryHub] connects buses inside one process
// and is used by tests, and [PostgresBus] uses PostgreSQL LISTEN/NOTIFY so
// nodes that already share a database need no extra broker.
//
// Delivery is at-least-once and unordered between different senders.
package bus
