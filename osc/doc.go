// Package osc provides a client and server for sending and receiving
// OpenSoundControl messages over UDP, TCP and Unix domain sockets.
//
// This implementation covers the Open Sound Control 1.0 Specification
// (http://opensoundcontrol.org/spec-1_0.html) together with the additional
// argument types introduced by OSC 1.1.
//
// Open Sound Control (OSC) is an open, transport-independent, message-based
// protocol developed for communication among computers, sound synthesizers,
// and other multimedia devices.
//
// # Features
//
// - Supports OSC messages with the following TypeTags:
//
//	'i' (int32)
//	'f' (float32)
//	's' (string)
//	'b' ([]byte)
//	't' (Timetag)
//	'h' (int64)
//	'd' (float64)
//	'S' (Symbol)
//	'c' (Char)
//	'r' (RGBA)
//	'm' (MIDI)
//	'T' (true)
//	'F' (false)
//	'N' (nil)
//	'I' (Infinitum)
//	'[' ']' (Array)
//
// - Supports OSC bundles, including Timetags and nested bundles
//
// - OSC address pattern matching ('?', '*', '[...]', '{...}') and dispatching
//
// - UDP, TCP and Unix domain socket transports, with length-prefixed or SLIP
// framing on the stream transports
//
// # Packets
//
// The unit of transmission of OSC is an OSC Packet. Any application that sends
// OSC Packets is an OSC Client; any application that receives OSC Packets is
// an OSC Server.
//
// An OSC packet consists of its contents, a contiguous block of binary data.
// The size of an OSC packet is always 32-bit aligned.
//
// OSC packets come in two flavors:
//
// OSC Messages: An OSC message consists of an OSC address pattern and zero or
// more OSC arguments.
//
// OSC Bundles: An OSC Bundle consists of an OSC Timetag, followed by zero or
// more OSC bundle elements. Each bundle element can be another OSC bundle
// (note this recursive definition: a bundle may contain bundles) or an OSC
// message.
//
// # Usage
//
// OSC client example:
//
//	addr, _ := osc.NewAddress("localhost", "8765", osc.UDP)
//	msg := osc.NewMessage("/osc/address").AddInt32(111).AddBool(true).AddString("hello")
//	addr.Send(msg)
//
// OSC server example:
//
//	server, _ := osc.NewServer(":8765", osc.UDP)
//	server.AddMethod("/message/address", "", func(msg *osc.Message) {
//	    fmt.Println(msg)
//	})
//	server.ListenAndServe()
package osc
