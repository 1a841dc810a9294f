// Package wire defines the CBOR messages exchanged between a data server and
// its clients.
//
// Every frame carries exactly one message. Clients send Requests, servers
// answer each with a Response carrying the same message ID. Responses may
// arrive out of order.
//
// # CBOR Integer Keys
//
// Message fields use integer keys. Values are free-form CBOR; complex numbers
// travel as tag 43000 wrapping a [re, im] array, which decodes back to
// complex128.
package wire
