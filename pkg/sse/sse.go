// Package sse provides a minimal, purpose-built reader for the server-sent
// events encoding used by OpenAI-compatible chat completion streams.
//
// The package is split into three leaves that the stream assembler chains
// together for every chunk of bytes read from the transport:
//
//	bytes ─▶ Decoder ─▶ LineBuffer ─▶ ParseLine ─▶ Frame
//
// Decoder turns raw bytes into text without splitting multi-byte characters,
// LineBuffer yields complete lines while retaining an unterminated tail, and
// ParseLine classifies each line.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities, nor the multi-line "event:"/"id:" accumulation of the full
// specification: only single-line "data:" frames carry payloads.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse
