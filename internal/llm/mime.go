package llm

import (
	"net/http"
	"strings"

	"github.com/joseph-ayodele/exam-grader/constants"
)

// PickMIME prefers an explicit MIME type, then the one implied by the file
// extension, and finally sniffs the bytes.
func PickMIME(explicit, ext string, data []byte) string {
	if exp := strings.TrimSpace(explicit); exp != "" {
		return exp
	}
	if constants.IsAllowedExt(ext) {
		return constants.MIMEForExt(ext)
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "image/jpeg"
}
