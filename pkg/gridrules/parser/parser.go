package parser

import (
	"fmt"
	"strconv"
)

const (
	_ int = iota
	LOWEST
	LOGICAL_OR  // OR
	LOGICAL_AND // AND
	EQUALS      // == !=
	LESSGREATER // > < >= <= IN
	PREFIX      // -X or NOT X
)

var precedences = map[TokenType]int{
	OR:     LOGICAL_OR,
	AND:    LOGICAL_AND,
	EQ:     EQUALS,
	NOT_EQ: EQUALS,
	LT:     LESSGREATER,
	GT:     LESSGREATER,
	LTE:    LESSGREATER,
	GTE:    LESSGREATER,
	IN:     LESSGREATER,
}

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

type Parser struct {
	l *Lexer

	curToken  Token
	peekToken Token

	lexErr error
	errors []error

	prefixParseFns map[TokenType]prefixParseFn
	infixParseFns  map[TokenType]infixParseFn
}

func New(l *Lexer) *Parser {
	p := &Parser{
		l: l,
	}

	p.prefixParseFns = make(map[TokenType]prefixParseFn)
	p.registerPrefix(IDENT, p.parseIdentifier)
	p.registerPrefix(NUMBER, p.parseNumberLiteral)
	p.registerPrefix(STRING, p.parseStringLiteral)
	p.registerPrefix(TRUE, p.parseBooleanLiteral)
	p.registerPrefix(FALSE, p.parseBooleanLiteral)
	p.registerPrefix(ARRAY, p.parseArrayLiteral)
	p.registerPrefix(NOT, p.parsePrefixExpression)
	p.registerPrefix(MINUS, p.parsePrefixExpression)
	p.registerPrefix(LPAREN, p.parseGroupedExpression)

	p.infixParseFns = make(map[TokenType]infixParseFn)
	for tokenType := range precedences {
		p.registerInfix(tokenType, p.parseInfixExpression)
	}

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// Parse lexes and parses a complete rule expression.
func Parse(expression string) (Expression, error) {
	p := New(NewLexer(expression))
	exp := p.ParseExpression()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return exp, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	if p.lexErr != nil {
		p.peekToken = Token{Type: EOF, Position: p.curToken.Position}
		return
	}
	tok, err := p.l.NextToken()
	if err != nil {
		p.lexErr = err
		tok.Type = EOF
	}
	p.peekToken = tok
}

// ParseExpression parses one expression that must span the whole input.
func (p *Parser) ParseExpression() Expression {
	if p.curTokenIs(EOF) {
		p.errors = append(p.errors, fmt.Errorf("empty expression"))
		return nil
	}

	exp := p.parseExpression(LOWEST)

	if !p.peekTokenIs(EOF) {
		p.errors = append(p.errors, fmt.Errorf("unexpected %s %q at offset %d",
			p.peekToken.Type, p.peekToken.Literal, p.peekToken.Position))
		return nil
	}

	return exp
}

func (p *Parser) parseExpression(precedence int) Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken)
		return nil
	}
	leftExp := prefix()

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}

		p.nextToken()

		leftExp = infix(leftExp)
	}

	return leftExp
}

func (p *Parser) parseIdentifier() Expression {
	return &Identifier{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseNumberLiteral() Expression {
	lit := &NumberLiteral{Token: p.curToken}

	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.errors = append(p.errors, fmt.Errorf("could not parse %q as number", p.curToken.Literal))
		return nil
	}

	lit.Value = value
	return lit
}

func (p *Parser) parseStringLiteral() Expression {
	return &StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBooleanLiteral() Expression {
	return &BooleanLiteral{Token: p.curToken, Value: p.curTokenIs(TRUE)}
}

func (p *Parser) parseArrayLiteral() Expression {
	elements, err := Separate(p.curToken)
	if err != nil {
		p.errors = append(p.errors, err)
		return nil
	}
	return &ArrayLiteral{Token: p.curToken, Elements: elements}
}

func (p *Parser) parsePrefixExpression() Expression {
	expression := &PrefixExpression{
		Token:    p.curToken,
		Operator: canonicalOperator(p.curToken),
	}

	p.nextToken()

	expression.Right = p.parseExpression(PREFIX)
	if expression.Right == nil {
		return nil
	}

	return expression
}

func (p *Parser) parseInfixExpression(left Expression) Expression {
	expression := &InfixExpression{
		Token:    p.curToken,
		Left:     left,
		Operator: canonicalOperator(p.curToken),
	}

	precedence := p.curPrecedence()
	p.nextToken()
	expression.Right = p.parseExpression(precedence)
	if expression.Left == nil || expression.Right == nil {
		return nil
	}

	return expression
}

func (p *Parser) parseGroupedExpression() Expression {
	p.nextToken()

	exp := p.parseExpression(LOWEST)

	if !p.expectPeek(RPAREN) {
		return nil
	}

	return exp
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

// Err returns the lexing error if there was one, otherwise a *SyntaxError
// holding every parse problem, or nil.
func (p *Parser) Err() error {
	if p.lexErr != nil {
		return p.lexErr
	}
	if len(p.errors) > 0 {
		return &SyntaxError{Expression: p.l.input, Errors: p.errors}
	}
	return nil
}

func (p *Parser) Errors() []string {
	msgs := make([]string, 0, len(p.errors))
	for _, err := range p.errors {
		msgs = append(msgs, err.Error())
	}
	return msgs
}

func (p *Parser) peekError(t TokenType) {
	p.errors = append(p.errors, fmt.Errorf("expected next token to be %s, got %s instead",
		t, p.peekToken.Type))
}

func (p *Parser) noPrefixParseFnError(tok Token) {
	if tok.Type == EOF {
		p.errors = append(p.errors, fmt.Errorf("unexpected end of expression"))
		return
	}
	p.errors = append(p.errors, fmt.Errorf("no prefix parse function for %s found at offset %d", tok.Type, tok.Position))
}

func (p *Parser) peekPrecedence() int {
	if p, ok := precedences[p.peekToken.Type]; ok {
		return p
	}

	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if p, ok := precedences[p.curToken.Type]; ok {
		return p
	}

	return LOWEST
}

func (p *Parser) registerPrefix(tokenType TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}
