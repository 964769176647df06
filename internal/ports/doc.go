// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the application core and the outside
// world. They state what the application needs from external systems without
// saying how those needs are met.
//
// # Port Interfaces
//
//   - [EntryReader]: reads the key-value entries of a source file
//   - [Disposer]: deletes or quarantines source files after an outcome
//   - [Dialer]: opens one transmission connection to the store server
//   - [AckWaiter]: resolves the acknowledgment for one transmission (client side)
//   - [AckResponder]: delivers exactly one acknowledgment (server side)
//   - [EntryStore]: durably persists an entry set under a filename
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with the file
// system, TCP and zerolog.
package ports
