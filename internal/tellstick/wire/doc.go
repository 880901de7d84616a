// Package wire implements the token format spoken by Tellstick Net
// appliances on their UDP command port.
//
// The format is a bencode variant with hexadecimal lengths:
//
//	Text     <HEX length>:<bytes>      5:hello, 0:
//	Integer  i<hex>s                   i2as, i-2as
//	Map      h<key><value>...s         h3:fooi1ss
//	List     l<value>...s              declared, not supported
//
// A packet is a Text command name optionally followed by a Map of arguments:
//
//	7:RawDatah5:class6:sensor8:protocolA:fineoffset4:datai488029FF9Ass
//
// Decoding accepts integers with redundant leading zeros because real
// appliances emit them (i0000000000s), but rejects negative zero.
// Every decoding failure wraps ErrMalformedPacket.
//
// Encoding is deterministic: map keys are written in ascending order.
package wire
