package ocr

import (
	"bytes"
	"context"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
)

// PDFCPU extracts text from PDF content streams in-process with pdfcpu.
// Text drawn with embedded CID fonts is not decodable this way; those PDFs
// come back empty and need the mistral provider.
type PDFCPU struct {
	timeout time.Duration
}

// NewPDFCPU creates a PDFCPU extractor.
func NewPDFCPU() *PDFCPU { return &PDFCPU{timeout: DefaultTimeout} }

// ExtractText returns one line per text row, pages separated by a blank line.
func (p *PDFCPU) ExtractText(ctx context.Context, pdf []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("ocr: pdfcpu panic: %v", r)
		}
	}()

	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		return "", eris.Wrap(err, "ocr: pdfcpu read")
	}

	var pages []string
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r, err := pdfcpu.ExtractPageContent(pctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		if t := strings.TrimSpace(ContentStreamText(data)); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// ContentStreamText interprets the text operators of a PDF content stream.
// A new line starts whenever the text baseline moves vertically; horizontal
// moves on the same baseline become a single space.
func ContentStreamText(data []byte) string {
	var (
		sb           strings.Builder
		operands     []any
		inArray      bool
		array        []any
		y, lastY     float64
		leading      float64
		written      bool
		pendingSpace bool
		forceNewline bool
	)

	emit := func(s string) {
		if s == "" {
			return
		}
		switch {
		case !written:
		case forceNewline || math.Abs(y-lastY) > 0.5:
			sb.WriteByte('\n')
		case pendingSpace:
			sb.WriteByte(' ')
		}
		sb.WriteString(s)
		written = true
		lastY = y
		pendingSpace = false
		forceNewline = false
	}
	nextLine := func() {
		if leading != 0 {
			y -= leading
		} else {
			forceNewline = true
		}
	}

	lx := &lexer{data: data}
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		switch tok.(type) {
		case arrayOpen:
			inArray, array = true, nil
			continue
		case arrayClose:
			if inArray {
				operands = append(operands, array)
			}
			inArray = false
			continue
		}
		if inArray {
			array = append(array, tok)
			continue
		}
		op, isOp := tok.(operator)
		if !isOp {
			operands = append(operands, tok)
			continue
		}

		switch op {
		case "BT":
			y = 0
		case "Tm":
			if f, ok := numAt(operands, 5); ok {
				y = f
			}
			pendingSpace = true
		case "Td":
			tx, _ := numAt(operands, 0)
			ty, _ := numAt(operands, 1)
			y += ty
			if tx != 0 {
				pendingSpace = true
			}
		case "TD":
			tx, _ := numAt(operands, 0)
			ty, _ := numAt(operands, 1)
			y += ty
			leading = -ty
			if tx != 0 {
				pendingSpace = true
			}
		case "TL":
			leading, _ = numAt(operands, 0)
		case "T*":
			nextLine()
		case "Tj":
			emit(lastString(operands))
		case "'":
			nextLine()
			emit(lastString(operands))
		case "\"":
			nextLine()
			emit(lastString(operands))
		case "TJ":
			if len(operands) > 0 {
				if arr, ok := operands[len(operands)-1].([]any); ok {
					var part strings.Builder
					for _, el := range arr {
						switch e := el.(type) {
						case string:
							part.WriteString(e)
						case float64:
							// Large negative kerning is a visual word gap.
							if e < -200 && part.Len() > 0 {
								part.WriteByte(' ')
							}
						}
					}
					emit(part.String())
				}
			}
		}
		operands = operands[:0]
	}
	return sb.String()
}

func numAt(ops []any, i int) (float64, bool) {
	if i >= len(ops) {
		return 0, false
	}
	f, ok := ops[i].(float64)
	return f, ok
}

func lastString(ops []any) string {
	for i := len(ops) - 1; i >= 0; i-- {
		if s, ok := ops[i].(string); ok {
			return s
		}
	}
	return ""
}

type (
	operator   string
	pdfName    string
	arrayOpen  struct{}
	arrayClose struct{}
)

// lexer tokenizes content streams: literal and hex strings decode to
// string, numbers to float64, names to pdfName, keywords to operator.
type lexer struct {
	data []byte
	pos  int
}

func (l *lexer) next() (any, bool) {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isSpace(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			return l.literal(), true
		case c == '<':
			if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
				l.pos += 2
				continue
			}
			return l.hex(), true
		case c == '>':
			l.pos++
		case c == '[':
			l.pos++
			return arrayOpen{}, true
		case c == ']':
			l.pos++
			return arrayClose{}, true
		case c == '/':
			start := l.pos + 1
			l.pos++
			for l.pos < len(l.data) && isRegular(l.data[l.pos]) {
				l.pos++
			}
			return pdfName(l.data[start:l.pos]), true
		case c == '{' || c == '}':
			l.pos++
		default:
			start := l.pos
			for l.pos < len(l.data) && isRegular(l.data[l.pos]) {
				l.pos++
			}
			if l.pos == start {
				l.pos++
				continue
			}
			word := string(l.data[start:l.pos])
			if f, err := strconv.ParseFloat(word, 64); err == nil {
				return f, true
			}
			if word == "BI" {
				l.skipInlineImage()
				continue
			}
			return operator(word), true
		}
	}
	return nil, false
}

func (l *lexer) literal() string {
	l.pos++ // (
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos >= len(l.data) {
				break
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b', 'f':
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return decodeText(out)
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return decodeText(out)
}

func (l *lexer) hex() string {
	l.pos++ // <
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		if c := l.data[l.pos]; !isSpace(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++ // >
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return ""
		}
		out = append(out, byte(v))
	}
	// Two-byte glyph ids are font specific and cannot be mapped here.
	for _, b := range out {
		if b < 0x20 && b != '\t' {
			return ""
		}
	}
	return decodeText(out)
}

func (l *lexer) skipInlineImage() {
	if i := bytes.Index(l.data[l.pos:], []byte("EI")); i >= 0 {
		l.pos += i + 2
		return
	}
	l.pos = len(l.data)
}

func decodeText(b []byte) string {
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isRegular(c byte) bool {
	return !isSpace(c) && !strings.ContainsRune("()<>[]{}/%", rune(c))
}
