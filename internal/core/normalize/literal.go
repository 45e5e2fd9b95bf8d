package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseLiteral parses a loosely written object or array literal.
//
// Beyond strict JSON it accepts single-quoted strings, trailing commas,
// unquoted identifier keys, True/False/None, and # or // line comments.
// Values decode to the same Go types encoding/json produces. Nothing in the
// input is ever evaluated.
func ParseLiteral(input string) (any, error) {
	p := &literalParser{src: []rune(input)}
	p.skipSpace()
	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected trailing content")
	}
	return value, nil
}

type literalParser struct {
	src []rune
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("literal parse error at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case unicode.IsSpace(c):
			p.pos++
		case c == '#':
			p.skipLine()
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/':
			p.skipLine()
		default:
			return
		}
	}
}

func (p *literalParser) skipLine() {
	for p.pos < len(p.src) && p.src[p.pos] != '\n' {
		p.pos++
	}
}

func (p *literalParser) parseValue() (any, error) {
	switch c := p.peek(); {
	case c == '{':
		return p.parseObject()
	case c == '[':
		return p.parseArray()
	case c == '"' || c == '\'':
		return p.parseString()
	case c == '-' || c == '+' || c == '.' || unicode.IsDigit(c):
		return p.parseNumber()
	case isIdentStart(c):
		return p.parseKeyword()
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	default:
		return nil, p.errorf("unexpected character %q", c)
	}
}

func (p *literalParser) parseObject() (any, error) {
	p.pos++
	obj := make(map[string]any)
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return obj, nil
		}

		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		p.pos++
		p.skipSpace()
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		obj[key] = value

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return obj, nil
		default:
			return nil, p.errorf("expected ',' or '}' in object")
		}
	}
}

func (p *literalParser) parseKey() (string, error) {
	c := p.peek()
	if c == '"' || c == '\'' {
		return p.parseString()
	}
	if !isIdentStart(c) {
		return "", p.errorf("expected object key")
	}
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return string(p.src[start:p.pos]), nil
}

func (p *literalParser) parseArray() (any, error) {
	p.pos++
	arr := make([]any, 0)
	for {
		p.skipSpace()
		if p.peek() == ']' {
			p.pos++
			return arr, nil
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, value)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return arr, nil
		default:
			return nil, p.errorf("expected ',' or ']' in array")
		}
	}
}

func (p *literalParser) parseString() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch {
		case c == quote:
			return b.String(), nil
		case c == '\\':
			if p.pos >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			esc := p.src[p.pos]
			p.pos++
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case 'b':
				b.WriteRune('\b')
			case 'f':
				b.WriteRune('\f')
			case 'u':
				if p.pos+4 > len(p.src) {
					return "", p.errorf("short unicode escape")
				}
				code, err := strconv.ParseUint(string(p.src[p.pos:p.pos+4]), 16, 32)
				if err != nil {
					return "", p.errorf("invalid unicode escape")
				}
				b.WriteRune(rune(code))
				p.pos += 4
			default:
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(c)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *literalParser) parseNumber() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if unicode.IsDigit(c) || strings.ContainsRune("+-.eE_", c) {
			p.pos++
			continue
		}
		break
	}
	text := strings.ReplaceAll(string(p.src[start:p.pos]), "_", "")
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return value, nil
}

func (p *literalParser) parseKeyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	word := string(p.src[start:p.pos])
	switch word {
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	case "null", "None", "nil":
		return nil, nil
	default:
		return nil, p.errorf("unknown bare word %q", word)
	}
}

func isIdentStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func isIdentPart(c rune) bool {
	return c == '_' || c == '-' || unicode.IsLetter(c) || unicode.IsDigit(c)
}
