// Package transport defines the chat-transport boundary: inbound event
// shapes, outbound messaging and transfer interfaces, and the transfer
// error type. Concrete implementations live in their own packages.
package transport
