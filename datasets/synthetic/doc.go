// Package synthetic generates tagged toy translation corpora: each task shifts source words
// by a fixed offset, so the tasks share a vocabulary but differ in their mapping.
package synthetic
