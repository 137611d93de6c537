package constants

// ImageStatus is the per-upload outcome of a grading batch.
type ImageStatus string

const (
	ImageStatusAccepted      ImageStatus = "ACCEPTED"
	ImageStatusUnsupported   ImageStatus = "UNSUPPORTED"    // extension not allowed
	ImageStatusPrepFailed    ImageStatus = "PREP_FAILED"    // could not stage or decode the image
	ImageStatusExtractFailed ImageStatus = "EXTRACT_FAILED" // stage 1: no text
	ImageStatusParseFailed   ImageStatus = "PARSE_FAILED"   // stage 2: no structured payload
	ImageStatusRejected      ImageStatus = "REJECTED"       // record failed validation
	ImageStatusCancelled     ImageStatus = "CANCELLED"
)
