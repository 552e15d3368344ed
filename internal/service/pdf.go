package service

import (
	"path/filepath"
	"regexp"
	"strings"
)

// showTextOp matches a literal string followed by the Tj text operator.
var showTextOp = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*Tj`)

var pdfEscapes = strings.NewReplacer(
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
	`\(`, "(",
	`\)`, ")",
	`\\`, `\`,
)

// ExtractPDFText pulls the text drawn by Tj operators out of an uncompressed PDF. Documents
// whose content streams are compressed yield an empty string and are treated as unreadable.
func ExtractPDFText(data []byte) string {
	matches := showTextOp.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return ""
	}

	parts := make([]string, 0, len(matches))
	for _, match := range matches {
		text := strings.TrimSpace(pdfEscapes.Replace(string(match[1])))
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n")
}

// ParseStudentFromFilename reads "StudentName_RollNumber.pdf". Underscores inside the name
// become spaces; a file without a roll number keeps the whole base name as the student name.
func ParseStudentFromFilename(fileName string) (name, rollNumber string) {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	base = strings.TrimSpace(base)

	idx := strings.LastIndex(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return strings.TrimSpace(strings.ReplaceAll(base, "_", " ")), ""
	}

	name = strings.TrimSpace(strings.ReplaceAll(base[:idx], "_", " "))
	rollNumber = strings.TrimSpace(base[idx+1:])
	return name, rollNumber
}
