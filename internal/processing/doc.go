// Package processing implements the individual audio stages: silence
// detection and the overread guard, MP3 codec normalization, head/tail trim,
// full silence removal, intro/outro fades and composition, loudness
// normalization, and ID3 tagging with cover art.
//
// Every stage follows the same lifecycle: load the input through the engine,
// run one command to a derived sibling path, and on success delete the files
// it consumed. On failure the input is left untouched and any partial output
// is removed. Business no-ops (no silence found, nothing to compose, codec
// already MP3) return the input path unchanged.
package processing
