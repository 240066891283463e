// Package protocol implements framing and validation for the payloads that
// parcel clients and servers exchange over a single TCP connection.
//
// === Payloads
//
// Every message is a Payload with exactly five keys:
//
// - `command`   - PUT, GET or LIST. Responses echo the request's command.
// - `status`    - REQUEST for requests, OK or ERROR for responses.
// - `filename`  - string or null. Null for LIST.
// - `file_data` - bytes or null. Carries the file for PUT requests and GET responses.
// - `details`   - string or null. The error message of an ERROR response, or the
//                 newline separated listing of a LIST response.
//
// Unset keys are sent as an explicit null, never omitted.
//
// === Framing
//
//   ```
//   [length: N bytes, unsigned big-endian][record: length bytes]
//   ```
//
// N is fixed per deployment (1 to 8, default 4), see Config. A stream socket has
// no message boundaries, so the receiver reads exactly N bytes, then exactly
// `length` bytes. See ByteSource.
//
// === Records
//
// The record is a self-describing tagged-length encoding:
//
//   ```
//   count:u16 { keyLen:u8 key kind:u8 valueLen:u32 value }*
//   ```
//
// Kinds are null, string (UTF-8), bytes, int and bool. Only the first three are
// valid in a payload; the others exist so a peer sending the wrong type is
// reported as such.
//
// === Validation
//
// Payloads are validated before they are framed and after they are unframed:
// key completeness (StructuralError), value kinds (FieldTypeError), size
// (SizeError), then command and status names (ErrCommand, ErrStatus).
//
// Application failures such as a missing file are not errors at this level.
// They travel as an ERROR payload with a message in `details`.
//
package protocol
