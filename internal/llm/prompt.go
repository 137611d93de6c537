package llm

import (
	"strconv"
	"strings"

	"github.com/joseph-ayodele/exam-grader/constants"
)

// maxTextChars bounds the extracted text forwarded to the structuring call.
const maxTextChars = 12000

// BuildExtractionPrompt is the instruction sent with the answer-sheet image for
// free-text extraction.
func BuildExtractionPrompt() string {
	q := strconv.Itoa(constants.QuestionCount)
	parts := []string{
		"You are an image analysis and text extraction assistant.",
		"Extract all printed and handwritten text from the attached answer sheet, leaving nothing out.",
		"Questions are numbered 1-" + q + " and each has sub-questions labelled (a, b, c, d). " +
			"Capture the marks awarded for every sub-question and keep each mark next to its question and part.",
		"Reproduce the marks table exactly as laid out: header row, sub-question rows, the 'CO Number' row and the 'Marks Awarded' row. " +
			"The table ends at the row holding the marks awarded.",
		"Report the roll number exactly as written (it is labelled like 'Roll No: A23456789012').",
		"Add up the individual marks and compare the sum with the written total. " +
			"If they differ, state both values and flag the discrepancy, including any verification note written on the sheet.",
		"Account for blur, glare, skew, faded ink and corrections. Mark uncertain readings instead of guessing silently.",
		"Keep the original layout: paragraph breaks, lists and table structure.",
		"Double-check every number and total before answering.",
	}
	return strings.Join(parts, "\n")
}

// BuildStructuringPrompt is the system instruction for turning extracted text
// plus the image into one JSON object.
func BuildStructuringPrompt() string {
	var keys []string
	for _, k := range constants.QuestionKeys() {
		keys = append(keys, `    "`+k+`": {"a": number, "b": number, "c": number, "d": number}`)
	}
	shape := "{\n" +
		`  "roll_number": string,` + "\n" +
		`  "questions": {` + "\n" +
		strings.Join(keys, ",\n") + "\n" +
		"  },\n" +
		`  "total_marks": number` + "\n" +
		"}"

	parts := []string{
		"You convert examination mark sheets into a single JSON object.",
		"Roll number: the " + strconv.Itoa(constants.RollNumberLength) + "-character value written as 'Roll No: A23456789012'. " +
			"Use \"" + constants.DefaultRollNumber + "\" when it cannot be found.",
		"Questions: Q1 through Q" + strconv.Itoa(constants.QuestionCount) + ", each with parts a, b, c, d. " +
			"Every part is a number between 0 and " + strconv.FormatFloat(constants.MaxPartScore, 'f', -1, 64) + ". Use 0 for a missing or unreadable mark.",
		"total_marks is the total written on the sheet.",
		"Do not confuse the marks with other numbers on the page such as CO numbers or dates.",
		"All fields are required. Return ONLY the JSON object, no notes or explanations, in this exact shape:",
		"```json\n" + shape + "\n```",
		"Use both the text and the image. When they disagree, prefer the text.",
	}
	return strings.Join(parts, "\n")
}

// BuildStructuringUserPrompt wraps the stage-one text for the structuring call.
func BuildStructuringUserPrompt(text string) string {
	text = strings.TrimSpace(text)

	var b strings.Builder
	b.WriteString("Extracted text:\n")
	if len(text) > maxTextChars {
		b.WriteString(text[:maxTextChars])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	b.WriteString("\n\nThe answer sheet image is attached.")
	return b.String()
}
