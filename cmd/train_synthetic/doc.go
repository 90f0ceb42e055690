// Package main provides a demo program training a toy adversarial encoder/decoder
// on several synthetic translation tasks at once.
//
// Each task shifts source words by its own offset. The critic learns to tell the
// tasks apart from the encoder states while the encoder is pushed to hide them.
// Training reports are kept in a SQLite file and can be listed with the report
// command.
package main
