// Package protocol implements the propship wire formats.
//
// Client to server, one envelope per connection:
//
//	uvarint(len(message)) || message
//
// message is encoded in the protobuf wire format:
//
//	1: varint  version (currently 1)
//	2: bytes   entry, repeated; each entry holds 1: key, 2: value
//
// which is the layout of a protobuf map<string,string>. Unknown fields are
// skipped so later versions can add fields without breaking older servers.
//
// Server to client, one acknowledgment per envelope:
//
//	<filename>=<Success|Failure>\n
package protocol
