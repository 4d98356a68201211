// Package imageutil holds the stateless image helpers used by the translation
// pipeline: perceptual hashing, dialogue-box cropping, PNG encoding and debug
// image persistence.
package imageutil
