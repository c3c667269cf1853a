// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration shared by turbot binaries.
//
// Run parameters normally arrive as JSON, but the dispatcher may hand
// the runner a binary parameter file instead. Those files are CBOR
// encoded with Core Deterministic Encoding, so the same parameters
// always produce the same bytes and a file can be compared or hashed
// without decoding.
//
// Struct fields use `json` tags; the encoder is configured to honour
// them so one struct definition serves both encodings.
package codec
