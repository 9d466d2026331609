// Package model defines the normalized conversation shape shared by every
// connector, plus the handful of pure helpers (timestamp parsing, content
// flattening, edge-n-gram tokenization, mtime comparison) that the rest of
// the system routes through to keep parsing behavior consistent.
package model
