package rql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF
	TOKEN_IDENT
	TOKEN_STRING
	TOKEN_EQUALS
	TOKEN_LESS
	TOKEN_LESS_EQUAL
	TOKEN_GREATER
	TOKEN_GREATER_EQUAL
	TOKEN_PREFIX
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_COMMA
)

func tokenName(i TokenType) string {
	switch i {
	case TOKEN_EOF:
		return "EOF"
	case TOKEN_IDENT:
		return "IDENT"
	case TOKEN_STRING:
		return "STRING"
	case TOKEN_EQUALS:
		return "EQUALS"
	case TOKEN_LESS:
		return "LESS"
	case TOKEN_LESS_EQUAL:
		return "LESS_EQUAL"
	case TOKEN_GREATER:
		return "GREATER"
	case TOKEN_GREATER_EQUAL:
		return "GREATER_EQUAL"
	case TOKEN_PREFIX:
		return "PREFIX"
	case TOKEN_LPAREN:
		return "LPAREN"
	case TOKEN_RPAREN:
		return "RPAREN"
	case TOKEN_COMMA:
		return "COMMA"
	}
	return "ILLEGAL"
}

type Token struct {
	Type    TokenType
	Literal string
}

type Lexer struct {
	input        string
	position     int
	readPosition int
	ch           byte
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '.' || l.ch == '-' || l.ch == '/' || l.ch == ':' {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readString() (string, error) {
	position := l.position + 1
	for {
		l.readChar()
		if l.ch == 0 {
			return "", errors.New("unterminated string")
		}
		if l.ch == '"' {
			break
		}
	}
	return l.input[position:l.position], nil
}

func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipWhitespace()

	switch l.ch {
	case '=':
		tok = Token{TOKEN_EQUALS, "="}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{TOKEN_LESS_EQUAL, "<="}
		} else {
			tok = Token{TOKEN_LESS, "<"}
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{TOKEN_GREATER_EQUAL, ">="}
		} else {
			tok = Token{TOKEN_GREATER, ">"}
		}
	case '^':
		tok = Token{TOKEN_PREFIX, "^"}
	case '(':
		tok = Token{TOKEN_LPAREN, "("}
	case ')':
		tok = Token{TOKEN_RPAREN, ")"}
	case ',':
		tok = Token{TOKEN_COMMA, ","}
	case '"':
		if str, err := l.readString(); err == nil {
			tok = Token{TOKEN_STRING, str}
		} else {
			tok = Token{TOKEN_ILLEGAL, ""}
		}
	case 0:
		tok = Token{TOKEN_EOF, ""}
	default:
		if isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
			tok.Literal = l.readIdentifier()
			tok.Type = TOKEN_IDENT
			return tok
		}
		tok = Token{TOKEN_ILLEGAL, string(l.ch)}
	}

	l.readChar()
	return tok
}

// Query is a parsed range query such as
//
//	key>="b" key<"d" limit=2
//	(key^user/, nobuffer)
type Query struct {
	Gt, Gte  *string
	Lt, Lte  *string
	Prefix   *string
	Limit    int
	Raw      bool
	NoBuffer bool
}

func (q *Query) String() string {
	var parts []string
	add := func(op string, v *string) {
		if v != nil {
			parts = append(parts, fmt.Sprintf(`key%s"%s"`, op, *v))
		}
	}
	add("^", q.Prefix)
	add(">", q.Gt)
	add(">=", q.Gte)
	add("<", q.Lt)
	add("<=", q.Lte)
	if q.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", q.Limit))
	}
	if q.Raw {
		parts = append(parts, "raw")
	}
	if q.NoBuffer {
		parts = append(parts, "nobuffer")
	}
	return strings.Join(parts, " ")
}

type Parser struct {
	l        *Lexer
	curToken Token
}

func NewParser(l *Lexer) *Parser {
	p := &Parser{l: l}
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.l.NextToken()
}

// ParseQuery reads terms until EOF. A parenthesised group of terms may appear
// anywhere a term can; groups do not nest.
func (p *Parser) ParseQuery() (*Query, error) {
	q := &Query{}

	for {
		p.skipCommas()
		switch p.curToken.Type {
		case TOKEN_EOF:
			return q, nil
		case TOKEN_LPAREN:
			if err := p.parseGroup(q); err != nil {
				return nil, err
			}
		case TOKEN_RPAREN:
			return nil, errors.New("unexpected )")
		default:
			if err := p.parseTerm(q); err != nil {
				return nil, err
			}
		}
	}
}

func (p *Parser) parseGroup(q *Query) error {
	p.nextToken()
	for {
		p.skipCommas()
		switch p.curToken.Type {
		case TOKEN_RPAREN:
			p.nextToken()
			return nil
		case TOKEN_EOF:
			return errors.New("expected )")
		case TOKEN_LPAREN:
			return errors.New("nested ( not allowed")
		}
		if err := p.parseTerm(q); err != nil {
			return err
		}
	}
}

func (p *Parser) skipCommas() {
	for p.curToken.Type == TOKEN_COMMA {
		p.nextToken()
	}
}

func (p *Parser) parseTerm(q *Query) error {
	if p.curToken.Type != TOKEN_IDENT {
		return fmt.Errorf("expected identifier, got %s", tokenName(p.curToken.Type))
	}
	name := p.curToken.Literal
	p.nextToken()

	switch name {
	case "raw":
		q.Raw = true
		return nil
	case "nobuffer":
		q.NoBuffer = true
		return nil
	case "limit":
		if p.curToken.Type != TOKEN_EQUALS {
			return fmt.Errorf("expected = after limit, got %s", tokenName(p.curToken.Type))
		}
		p.nextToken()
		if p.curToken.Type != TOKEN_IDENT {
			return fmt.Errorf("expected number as limit, got %s", tokenName(p.curToken.Type))
		}
		n, err := strconv.Atoi(p.curToken.Literal)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid limit %q", p.curToken.Literal)
		}
		if q.Limit != 0 {
			return errors.New("limit specified twice")
		}
		q.Limit = n
		p.nextToken()
		return nil
	case "key":
	default:
		return fmt.Errorf("unknown term %q", name)
	}

	operator := p.curToken.Type
	switch operator {
	case TOKEN_LESS, TOKEN_LESS_EQUAL, TOKEN_GREATER, TOKEN_GREATER_EQUAL, TOKEN_PREFIX:
	default:
		return fmt.Errorf("expected <, <=, >, >= or ^ after key, got %s", tokenName(operator))
	}
	p.nextToken()

	if p.curToken.Type != TOKEN_IDENT && p.curToken.Type != TOKEN_STRING {
		return fmt.Errorf("expected identifier or string as value, got %s", tokenName(p.curToken.Type))
	}
	value := p.curToken.Literal
	p.nextToken()

	lower := q.Gt != nil || q.Gte != nil || q.Prefix != nil
	upper := q.Lt != nil || q.Lte != nil || q.Prefix != nil

	switch operator {
	case TOKEN_GREATER, TOKEN_GREATER_EQUAL:
		if lower {
			return errors.New("lower bound specified twice")
		}
		if operator == TOKEN_GREATER {
			q.Gt = &value
		} else {
			q.Gte = &value
		}
	case TOKEN_LESS, TOKEN_LESS_EQUAL:
		if upper {
			return errors.New("upper bound specified twice")
		}
		if operator == TOKEN_LESS {
			q.Lt = &value
		} else {
			q.Lte = &value
		}
	case TOKEN_PREFIX:
		if lower || upper {
			return errors.New("prefix cannot be combined with other bounds")
		}
		q.Prefix = &value
	}
	return nil
}

func Parse(input string) (*Query, error) {
	l := NewLexer(input)
	p := NewParser(l)
	return p.ParseQuery()
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}
