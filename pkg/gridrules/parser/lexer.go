package parser

import (
	"fmt"
	"iter"
	"strings"
)

type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Literals
	IDENT  // variable names
	NUMBER // integers and decimals
	STRING // "quoted" or 'quoted' text
	ARRAY  // unparsed interior of [ ... ]

	// Keywords
	TRUE
	FALSE

	// Operators
	EQ     // == or =
	NOT_EQ // !=
	LT     // <
	GT     // >
	LTE    // <=
	GTE    // >=
	AND    // && or AND
	OR     // || or OR
	NOT    // ! or NOT
	IN     // IN
	MINUS  // -

	// Delimiters
	COMMA  // ,
	LPAREN // (
	RPAREN // )
)

// TokenClass is the coarse category of a token. The parser works on
// TokenType; tooling and error messages report the class.
type TokenClass string

const (
	ClassNumber     TokenClass = "NUMBER"
	ClassString     TokenClass = "STRING_LITERAL"
	ClassIdentifier TokenClass = "IDENTIFIER"
	ClassKeyword    TokenClass = "KEYWORD"
	ClassOperator   TokenClass = "OPERATOR"
	ClassSeparator  TokenClass = "SEPARATOR"
	ClassArray      TokenClass = "ARRAY"
	ClassGrouping   TokenClass = "GROUPING"
	ClassEnd        TokenClass = "END"
	ClassIllegal    TokenClass = "ILLEGAL"
)

type Token struct {
	Type     TokenType
	Literal  string
	Position int
	Line     int
	Column   int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Type, t.Literal, t.Position)
}

var keywords = map[string]TokenType{
	"and":   AND,
	"or":    OR,
	"not":   NOT,
	"in":    IN,
	"true":  TRUE,
	"false": FALSE,
}

// Lexer turns a rule expression into tokens. A Lexer is single use; the
// first error is sticky and returned by every later call to NextToken.
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int
	column       int
	err          error
}

func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
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
	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}

// atEnd reports whether the whole input has been consumed. A NUL byte in
// the input is an ordinary character, not the end.
func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken returns the next token. At the end of input it returns an EOF
// token; on malformed input it returns an ILLEGAL token and a *LexError.
func (l *Lexer) NextToken() (Token, error) {
	if l.err != nil {
		return Token{Type: ILLEGAL, Position: l.position, Line: l.line, Column: l.column}, l.err
	}

	l.skipWhitespace()

	tok := Token{Position: l.position, Line: l.line, Column: l.column}

	if l.atEnd() {
		tok.Type, tok.Literal = EOF, ""
		return tok, nil
	}

	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = EQ, "=="
		} else {
			tok.Type, tok.Literal = EQ, "="
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = NOT_EQ, "!="
		} else {
			tok.Type, tok.Literal = NOT, "!"
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = LTE, "<="
		} else {
			tok.Type, tok.Literal = LT, "<"
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = GTE, ">="
		} else {
			tok.Type, tok.Literal = GT, ">"
		}
	case '&':
		if l.peekChar() != '&' {
			return l.fail(tok, "unexpected '&', expected '&&'")
		}
		l.readChar()
		tok.Type, tok.Literal = AND, "&&"
	case '|':
		if l.peekChar() != '|' {
			return l.fail(tok, "unexpected '|', expected '||'")
		}
		l.readChar()
		tok.Type, tok.Literal = OR, "||"
	case '-':
		tok.Type, tok.Literal = MINUS, "-"
	case ',':
		tok.Type, tok.Literal = COMMA, ","
	case '(':
		tok.Type, tok.Literal = LPAREN, "("
	case ')':
		tok.Type, tok.Literal = RPAREN, ")"
	case '"', '\'':
		literal, ok := l.readString(l.ch)
		if !ok {
			return l.fail(tok, "unterminated string literal")
		}
		tok.Type, tok.Literal = STRING, literal
	case '[':
		literal, ok := l.readArray()
		if !ok {
			return l.fail(tok, "unterminated array literal")
		}
		tok.Type, tok.Literal = ARRAY, literal
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			tok.Type = lookupIdent(tok.Literal)
			return tok, nil
		} else if isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())) {
			tok.Type, tok.Literal = NUMBER, l.readNumber()
			return tok, nil
		}
		return l.fail(tok, fmt.Sprintf("unexpected character %q", l.ch))
	}

	l.readChar()
	return tok, nil
}

func (l *Lexer) fail(at Token, message string) (Token, error) {
	l.err = &LexError{
		Position: at.Position,
		Line:     at.Line,
		Column:   at.Column,
		Message:  message,
	}
	at.Type = ILLEGAL
	if at.Position < len(l.input) {
		at.Literal = string(l.input[at.Position])
	}
	return at, l.err
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readNumber() string {
	position := l.position

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	return l.input[position:l.position]
}

// readString leaves the lexer on the closing quote.
func (l *Lexer) readString(quote byte) (string, bool) {
	position := l.position + 1
	for {
		l.readChar()
		if l.atEnd() {
			return "", false
		}
		if l.ch == quote {
			return l.input[position:l.position], true
		}
	}
}

// readArray leaves the lexer on the closing bracket. Brackets inside quoted
// text do not count towards nesting.
func (l *Lexer) readArray() (string, bool) {
	position := l.position + 1
	depth := 1
	var quote byte
	for {
		l.readChar()
		if l.atEnd() {
			return "", false
		}
		if quote != 0 {
			if l.ch == quote {
				quote = 0
			}
			continue
		}
		switch l.ch {
		case '"', '\'':
			quote = l.ch
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return l.input[position:l.position], true
			}
		}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func lookupIdent(ident string) TokenType {
	if tok, ok := keywords[strings.ToLower(ident)]; ok {
		return tok
	}
	return IDENT
}

// Tokens lexes input lazily. Each range over the returned sequence starts
// again from the beginning of input. The sequence ends after the last token
// (EOF is not yielded) or after yielding the first error.
func Tokens(input string) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		l := NewLexer(input)
		for {
			tok, err := l.NextToken()
			if err != nil {
				yield(tok, err)
				return
			}
			if tok.Type == EOF {
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
	}
}

// Tokenize lexes the whole input.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	for tok, err := range Tokens(input) {
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// Class reports the coarse category of the token type.
func (t TokenType) Class() TokenClass {
	switch t {
	case NUMBER:
		return ClassNumber
	case STRING:
		return ClassString
	case IDENT:
		return ClassIdentifier
	case TRUE, FALSE:
		return ClassKeyword
	case EQ, NOT_EQ, LT, GT, LTE, GTE, AND, OR, NOT, IN, MINUS:
		return ClassOperator
	case COMMA:
		return ClassSeparator
	case ARRAY:
		return ClassArray
	case LPAREN, RPAREN:
		return ClassGrouping
	case EOF:
		return ClassEnd
	default:
		return ClassIllegal
	}
}

func (t TokenType) String() string {
	switch t {
	case ILLEGAL:
		return "ILLEGAL"
	case EOF:
		return "EOF"
	case IDENT:
		return "IDENT"
	case NUMBER:
		return "NUMBER"
	case STRING:
		return "STRING"
	case ARRAY:
		return "ARRAY"
	case TRUE:
		return "TRUE"
	case FALSE:
		return "FALSE"
	case EQ:
		return "=="
	case NOT_EQ:
		return "!="
	case LT:
		return "<"
	case GT:
		return ">"
	case LTE:
		return "<="
	case GTE:
		return ">="
	case AND:
		return "AND"
	case OR:
		return "OR"
	case NOT:
		return "NOT"
	case IN:
		return "IN"
	case MINUS:
		return "-"
	case COMMA:
		return ","
	case LPAREN:
		return "("
	case RPAREN:
		return ")"
	default:
		return "UNKNOWN"
	}
}
