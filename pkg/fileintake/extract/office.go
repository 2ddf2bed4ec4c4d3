package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCX reads a DOCX file (ZIP+XML) and extracts paragraph text.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx zip: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return parseDOCXXML(rc)
	}
	return "", fmt.Errorf("word/document.xml not found in docx")
}

func parseDOCXXML(r io.Reader) (string, error) {
	var sb strings.Builder
	decoder := xml.NewDecoder(r)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return strings.TrimSpace(sb.String()), nil
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "t":
			var content struct {
				Text string `xml:",chardata"`
			}
			if err := decoder.DecodeElement(&content, &se); err == nil {
				sb.WriteString(content.Text)
			}
		case "p":
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractRTF strips control words and braces from an RTF document. Lossy but
// sufficient for previews and keyword search.
func extractRTF(data []byte) string {
	var sb strings.Builder
	i := 0
	for i < len(data) {
		c := data[i]
		switch c {
		case '\\':
			i++
			// Escaped literal.
			if i < len(data) && (data[i] == '\\' || data[i] == '{' || data[i] == '}') {
				sb.WriteByte(data[i])
				i++
				continue
			}
			// Control word: letters then optional numeric parameter.
			start := i
			for i < len(data) && isLetter(data[i]) {
				i++
			}
			word := string(data[start:i])
			if word == "par" || word == "line" || word == "tab" || word == "cell" {
				sb.WriteByte(' ')
			}
			if i < len(data) && (data[i] == '-' || isDigit(data[i])) {
				i++
				for i < len(data) && isDigit(data[i]) {
					i++
				}
			}
			// A single trailing space terminates the control word.
			if i < len(data) && data[i] == ' ' {
				i++
			}
		case '{', '}', '\r', '\n':
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(sb.String()), " "))
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
