// Package source reads transaction records for the feeder.
//
// New(config.Source) returns a Source for the configured type:
//   - file: tails a JSON-lines file, one record per line, resuming from the
//     byte offset reached by the previous Poll. A trailing line without a
//     newline is left for the next Poll. Malformed lines are logged and
//     skipped. A file that shrinks is read again from the start.
//   - http: GETs a JSON array of records from an endpoint through the shared
//     authRoundTripper (apikey, bearer, basic, mtls).
//
// A record is {"id": "...", "attributes": {...}}. Attribute values may be
// JSON strings, numbers or booleans; numbers keep their original text so
// "1000.50" and 1000.50 reach the router identically.
package source
